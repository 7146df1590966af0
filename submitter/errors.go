package submitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRetriesExhausted wraps the last transient failure after the
	// configured attempt budget is spent.
	ErrRetriesExhausted = errors.New("submission retries exhausted")

	// ErrInsufficientFunds reports that the node rejected the transaction
	// because the account cannot cover value plus gas. The batch halts on it.
	ErrInsufficientFunds = errors.New("insufficient funds for deposit")
)

// PermanentError is a submission failure no retry can fix: a malformed
// entry, a revert during gas estimation, or a mined transaction with a
// failed status.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// UnknownOutcomeError reports a broadcast whose inclusion was not confirmed
// before the receipt timeout. The transaction may still land. The caller
// journals the hash and nonce and must not rebuild the deposit under a
// fresh nonce until the hash is proven absent.
type UnknownOutcomeError struct {
	TxHash common.Hash
	Nonce  uint64
}

func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("transaction %s (nonce %d) broadcast but unconfirmed", e.TxHash.Hex(), e.Nonce)
}

type errClass int

const (
	classTransient errClass = iota
	classPermanent
	classInsufficientFunds
)

// Node rejections that a fresh attempt cannot change. Everything else,
// including plain transport trouble, is worth a bounded retry.
var permanentFragments = []string{
	"execution reverted",
	"invalid sender",
	"exceeds block gas limit",
	"intrinsic gas too low",
	"max fee per gas less than block base fee",
	"oversized data",
	"negative value",
}

// classify buckets a node or transport error by its message. geth and its
// forks expose these conditions as bare strings over JSON-RPC, so substring
// matching is the only portable signal.
func classify(err error) errClass {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient funds") {
		return classInsufficientFunds
	}
	for _, frag := range permanentFragments {
		if strings.Contains(msg, frag) {
			return classPermanent
		}
	}
	return classTransient
}

// alreadyKnown reports whether the pool rejected a re-broadcast of a
// transaction it is already holding. The send still counts as a broadcast;
// the caller waits for the hash it just signed.
func alreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
