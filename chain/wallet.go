package chain

import (
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// GenerateKeystore creates a fresh funding account as an encrypted keystore
// file under dir and returns its address and file path. The private key
// stays inside the keystore.
func GenerateKeystore(dir string, passphrase string) (common.Address, string, error) {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := ks.NewAccount(passphrase)
	if err != nil {
		return common.Address{}, "", err
	}
	return account.Address, account.URL.Path, nil
}
