package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Blockshard-io/validator-submitter/config"
	"github.com/Blockshard-io/validator-submitter/types"
)

const (
	flagImportCount = "count"
	flagImportAll   = "all"
)

func LedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and seed the deposit ledger",
	}
	cmd.AddCommand(ledgerListCommand(), ledgerImportCommand())
	return cmd
}

func ledgerListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every recorded pubkey",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ledgerList()
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag(config.KeyLedgerPath, cmd.Flags().Lookup(flagLedger))
		},
	}
	cmd.Flags().String(flagLedger, "", "ledger path, overrides ledger.path")
	return cmd
}

func ledgerList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	for _, pubkey := range led.Confirmed() {
		fmt.Println(pubkey)
	}
	return nil
}

func ledgerImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Mark pubkeys from a deposit data file as already submitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ledgerImport(viper.GetInt(flagImportCount), viper.GetBool(flagImportAll))
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for _, pair := range [][2]string{
				{config.KeyDepositDataFile, flagInput},
				{config.KeyLedgerPath, flagLedger},
			} {
				if err := viper.BindPFlag(pair[0], cmd.Flags().Lookup(pair[1])); err != nil {
					return err
				}
			}
			if err := viper.BindPFlag(flagImportCount, cmd.Flags().Lookup(flagImportCount)); err != nil {
				return err
			}
			return viper.BindPFlag(flagImportAll, cmd.Flags().Lookup(flagImportAll))
		},
	}
	cmd.Flags().String(flagInput, "", "deposit data file, overrides deposit.data_file")
	cmd.Flags().String(flagLedger, "", "ledger path, overrides ledger.path")
	cmd.Flags().Int(flagImportCount, 0, "number of leading entries to import")
	cmd.Flags().Bool(flagImportAll, false, "import every entry")
	return cmd
}

func ledgerImport(count int, all bool) error {
	if all == (count > 0) {
		return errors.New("exactly one of --count and --all must be given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Deposit.DataFile == "" {
		return errors.New("deposit.data_file (or --input) must be set")
	}

	entries, err := types.LoadEntries(cfg.Deposit.DataFile)
	if err != nil {
		return err
	}
	if !all && count < len(entries) {
		entries = entries[:count]
	}

	pubkeys := make([]string, 0, len(entries))
	for _, entry := range entries {
		pubkeys = append(pubkeys, entry.Pubkey)
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	added, err := led.Import(pubkeys)
	if err != nil {
		return err
	}
	log.Info().
		Int("added", added).
		Int("given", len(pubkeys)).
		Int("total", led.Size()).
		Msg("Ledger import finished")
	return nil
}
