package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Blockshard-io/validator-submitter/config"
)

func ConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(configInitCommand())
	return cmd
}

func configInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with every default filled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return configInit(viper.GetString(flagConfig))
		},
	}
}

func configInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := config.WriteExample(path); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("Config file written, edit it before the first run")
	return nil
}
