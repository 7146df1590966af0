package ledger

import (
	"errors"
	"time"
)

// ErrCorrupt marks a ledger whose backing data exists but cannot be trusted.
// A corrupt ledger aborts the whole run before anything is submitted;
// guessing at its contents risks double deposits.
var ErrCorrupt = errors.New("ledger corrupt")

// PendingTx journals a deposit transaction that was broadcast but whose
// inclusion was never observed. Its pubkey is neither confirmed nor eligible
// for resubmission until reconciliation settles the outcome.
type PendingTx struct {
	Pubkey      string    `json:"pubkey"`
	TxHash      string    `json:"tx_hash"`
	Nonce       uint64    `json:"nonce"`
	BroadcastAt time.Time `json:"broadcast_at"`
}

// Store persists the confirmed set and the pending journal. Writes are
// durable before they return.
type Store interface {
	// LoadConfirmed returns every recorded pubkey, normalized. A missing
	// backing file or empty database is an empty ledger, not an error.
	LoadConfirmed() ([]string, error)
	// AppendConfirmed durably records one confirmed pubkey. Backends that
	// can keep the confirming transaction hash do so.
	AppendConfirmed(pubkey string, txHash string) error
	LoadPending() ([]*PendingTx, error)
	PutPending(tx *PendingTx) error
	DeletePending(pubkey string) error
	Close() error
}
