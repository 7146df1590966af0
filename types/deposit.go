package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
)

// Field sizes of a validator deposit, in bytes.
const (
	PubkeyLength                = 48
	WithdrawalCredentialsLength = 32
	SignatureLength             = 96
	RootLength                  = 32
)

// DefaultAmountGwei is the deposit value required to activate a validator.
const DefaultAmountGwei uint64 = 32_000_000_000

// GweiPerEth converts between the two denominations used around deposits.
const GweiPerEth uint64 = 1_000_000_000

var (
	ErrInvalidPubkeyLen = errors.New("invalid pubkey: expect 48 bytes hex encoded")
	ErrInvalidWCLen     = errors.New("invalid withdrawal credentials: expect 32 bytes hex encoded")
	ErrInvalidSigLen    = errors.New("invalid signature: expect 96 bytes hex encoded")
	ErrInvalidRootLen   = errors.New("invalid deposit data root: expect 32 bytes hex encoded")
	ErrRootMismatch     = errors.New("deposit data root does not match the entry fields")
)

// DepositEntry is one record of a deposit data file as the staking tooling
// emits it. Hex fields come with or without a 0x prefix. Amount is in gwei
// and optional; absent means the standard 32 ETH.
type DepositEntry struct {
	Pubkey                string `json:"pubkey"`
	WithdrawalCredentials string `json:"withdrawal_credentials"`
	Signature             string `json:"signature"`
	DepositDataRoot       string `json:"deposit_data_root"`
	Amount                uint64 `json:"amount,omitempty"`
}

// DepositData is the decoded, length-checked form of an entry.
type DepositData struct {
	Pubkey                [PubkeyLength]byte
	WithdrawalCredentials [WithdrawalCredentialsLength]byte
	Amount                uint64
	Signature             [SignatureLength]byte
	Root                  [RootLength]byte
}

func decodeHexField(s string, want int, lenErr error) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lenErr, err)
	}
	if len(b) != want {
		return nil, fmt.Errorf("%w, got %d bytes", lenErr, len(b))
	}
	return b, nil
}

// Decode parses every hex field and checks its length. The amount defaults
// to 32 ETH when the file does not carry one.
func (e *DepositEntry) Decode() (*DepositData, error) {
	var d DepositData

	pubkey, err := decodeHexField(e.Pubkey, PubkeyLength, ErrInvalidPubkeyLen)
	if err != nil {
		return nil, err
	}
	copy(d.Pubkey[:], pubkey)

	wc, err := decodeHexField(e.WithdrawalCredentials, WithdrawalCredentialsLength, ErrInvalidWCLen)
	if err != nil {
		return nil, err
	}
	copy(d.WithdrawalCredentials[:], wc)

	sig, err := decodeHexField(e.Signature, SignatureLength, ErrInvalidSigLen)
	if err != nil {
		return nil, err
	}
	copy(d.Signature[:], sig)

	root, err := decodeHexField(e.DepositDataRoot, RootLength, ErrInvalidRootLen)
	if err != nil {
		return nil, err
	}
	copy(d.Root[:], root)

	d.Amount = e.Amount
	if d.Amount == 0 {
		d.Amount = DefaultAmountGwei
	}

	return &d, nil
}

// Validate checks the entry without keeping the decoded form.
func (e *DepositEntry) Validate() error {
	_, err := e.Decode()
	return err
}

// NormalizedPubkey returns the canonical ledger key for the entry, lowercase
// hex without a 0x prefix. Call Decode first if the field may be malformed.
func (e *DepositEntry) NormalizedPubkey() string {
	return strings.ToLower(strings.TrimPrefix(e.Pubkey, "0x"))
}

// ValueWei returns the transaction value for the deposit.
func (d *DepositData) ValueWei() *big.Int {
	wei := new(big.Int).SetUint64(d.Amount)
	return wei.Mul(wei, new(big.Int).SetUint64(GweiPerEth))
}

// VerifyRoot recomputes the hash tree root of the deposit fields and
// compares it with the root carried by the file. A mismatching entry would
// be rejected by the deposit contract, so it fails validation here.
func (d *DepositData) VerifyRoot() error {
	if d.HashTreeRoot() != d.Root {
		return ErrRootMismatch
	}
	return nil
}

// LoadEntries reads a deposit data file, a JSON array of entries.
func LoadEntries(path string) ([]*DepositEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deposit data file: %w", err)
	}

	var entries []*DepositEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse deposit data file %s: %w", path, err)
	}
	return entries, nil
}
