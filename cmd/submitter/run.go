package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Blockshard-io/validator-submitter/batch"
	"github.com/Blockshard-io/validator-submitter/chain"
	"github.com/Blockshard-io/validator-submitter/config"
	"github.com/Blockshard-io/validator-submitter/fees"
	"github.com/Blockshard-io/validator-submitter/submitter"
	"github.com/Blockshard-io/validator-submitter/types"
)

const (
	flagInput  = "input"
	flagLedger = "ledger"
	flagDryRun = "dry-run"
)

func RunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit every deposit in the data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), viper.GetBool(flagDryRun))
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag(config.KeyDepositDataFile, cmd.Flags().Lookup(flagInput)); err != nil {
				return err
			}
			return viper.BindPFlag(config.KeyLedgerPath, cmd.Flags().Lookup(flagLedger))
		},
	}
	cmd.Flags().String(flagInput, "", "deposit data file, overrides deposit.data_file")
	cmd.Flags().String(flagLedger, "", "ledger path, overrides ledger.path")
	cmd.Flags().Bool(flagDryRun, false, "log what would be submitted without sending")
	return cmd
}

func run(ctx context.Context, dryRun bool) error {
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
	if len(entries) == 0 {
		return fmt.Errorf("no deposit entries in %s", cfg.Deposit.DataFile)
	}

	client, err := chain.Dial(ctx, cfg.Chain.Endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Chain.Endpoint, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	signer, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	sub := submitter.New(
		client,
		signer,
		fees.NewEstimator(client, cfg.Fees),
		chainID,
		cfg.DepositContractAddress(),
		cfg.Submission,
	)
	orch := batch.NewOrchestrator(client, led, sub, signer.Address(), batch.Options{
		AmountGwei:  cfg.Deposit.AmountGwei,
		VerifyRoots: cfg.Deposit.VerifyRoots,
		DryRun:      dryRun,
	})

	summary, err := orch.Run(ctx, entries)
	if err != nil {
		return err
	}
	if !summary.Success() {
		done := summary.Submitted + summary.AlreadyDone
		return fmt.Errorf("%d of %d deposits not confirmed", summary.Total()-done, summary.Total())
	}
	return nil
}
