package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const flagConfig = "config"

func main() {
	cobra.EnableCommandSorting = false
	log.Logger = log.With().Caller().Logger()

	rootCmd := &cobra.Command{
		Use:   "submitter",
		Short: "Validator deposit batch submitter",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			viper.SetEnvPrefix("SUBMITTER")
			viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			viper.AutomaticEnv()

			viper.SetConfigFile(viper.GetString(flagConfig))
			if err := viper.ReadInConfig(); err != nil {
				// commands that need the file fail later on validation
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		RunCommand(),
		ReconcileCommand(),
		LedgerCommand(),
		WalletCommand(),
		ConfigCommand(),
	)

	rootCmd.PersistentFlags().String(flagConfig, "config.yaml", "config file path")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Send()
	}
}
