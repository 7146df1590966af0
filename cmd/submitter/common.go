package main

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Blockshard-io/validator-submitter/chain"
	"github.com/Blockshard-io/validator-submitter/config"
	"github.com/Blockshard-io/validator-submitter/db/badgerdb"
	"github.com/Blockshard-io/validator-submitter/ledger"
)

// loadConfig builds the validated Config from the viper state the root
// command prepared.
func loadConfig() (*config.Config, error) {
	return config.New(viper.GetViper())
}

// buildSigner resolves the funding account from the configured wallet
// source. The private key stays inside the signer.
func buildSigner(cfg *config.Config) (chain.Signer, error) {
	if cfg.Wallet.PrivateKey != "" {
		return chain.NewHexKeySigner(cfg.Wallet.PrivateKey)
	}
	passphrase, err := cfg.WalletPassphrase()
	if err != nil {
		return nil, err
	}
	return chain.NewKeystoreSigner(cfg.Wallet.Keystore, passphrase)
}

// openLedger opens the configured ledger backend. A corrupt ledger refuses
// to open; running without the dedup record could double-spend deposits.
func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	var store ledger.Store
	switch cfg.Ledger.Backend {
	case config.LedgerBackendBadger:
		database, err := badgerdb.NewDB(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger db: %w", err)
		}
		store = ledger.NewDBStore(database)
	default:
		store = ledger.NewFileStore(cfg.Ledger.Path)
	}

	led, err := ledger.Open(store)
	if err != nil {
		if errors.Is(err, ledger.ErrCorrupt) {
			return nil, fmt.Errorf("refusing to run with unreadable ledger %s: %w", cfg.Ledger.Path, err)
		}
		return nil, err
	}
	return led, nil
}
