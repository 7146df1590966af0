package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Blockshard-io/validator-submitter/batch"
	"github.com/Blockshard-io/validator-submitter/chain"
)

func ReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve journaled broadcasts against the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reconcile(cmd.Context())
		},
	}
}

func reconcile(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, cfg.Chain.Endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Chain.Endpoint, err)
	}
	defer client.Close()

	signer, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	orch := batch.NewOrchestrator(client, led, nil, signer.Address(), batch.Options{})
	return orch.Reconcile(ctx)
}
