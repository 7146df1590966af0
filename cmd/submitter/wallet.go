package main

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Blockshard-io/validator-submitter/chain"
)

const (
	flagWalletDir            = "dir"
	flagWalletPassphrase     = "passphrase"
	flagWalletPassphraseFile = "passphrase-file"
)

func WalletCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the funding account",
	}
	cmd.AddCommand(walletNewCommand())
	return cmd
}

func walletNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a funding key and write an encrypted keystore file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return walletNew(
				viper.GetString(flagWalletDir),
				viper.GetString(flagWalletPassphrase),
				viper.GetString(flagWalletPassphraseFile),
			)
		},
	}
	cmd.Flags().String(flagWalletDir, "wallet", "directory for the keystore file")
	cmd.Flags().String(flagWalletPassphrase, "", "keystore passphrase")
	cmd.Flags().String(flagWalletPassphraseFile, "", "file holding the keystore passphrase")
	return cmd
}

// walletNew creates the key inside the keystore and reports only the address
// and the file path. The private key is never printed or logged.
func walletNew(dir, passphrase, passphraseFile string) error {
	if (passphrase == "") == (passphraseFile == "") {
		return errors.New("exactly one of --passphrase and --passphrase-file must be given")
	}
	if passphraseFile != "" {
		raw, err := os.ReadFile(passphraseFile)
		if err != nil {
			return err
		}
		passphrase = strings.TrimRight(string(raw), "\r\n")
	}

	address, path, err := chain.GenerateKeystore(dir, passphrase)
	if err != nil {
		return err
	}
	log.Info().
		Str("address", address.Hex()).
		Str("keystore", path).
		Msg("Wallet created, fund this address before running the batch")
	return nil
}
