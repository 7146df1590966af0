package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Blockshard-io/validator-submitter/log"
)

var logger = log.NewLogger("ledger")

// Ledger is the persistent record that keeps a restarted batch from paying
// for the same validator twice. It fronts a Store with an in-memory index;
// every mutation is durable in the store before it returns.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	confirmed map[string]struct{}
	order     []string
	pending   map[string]*PendingTx
}

// Open loads the confirmed set and the pending journal. A missing backing
// store yields an empty ledger; unreadable content fails with ErrCorrupt
// and nothing must be submitted afterwards.
func Open(store Store) (*Ledger, error) {
	confirmed, err := store.LoadConfirmed()
	if err != nil {
		return nil, err
	}
	pending, err := store.LoadPending()
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		store:     store,
		confirmed: make(map[string]struct{}, len(confirmed)),
		order:     confirmed,
		pending:   make(map[string]*PendingTx, len(pending)),
	}
	for _, pk := range confirmed {
		l.confirmed[pk] = struct{}{}
	}
	for _, tx := range pending {
		l.pending[tx.Pubkey] = tx
	}

	logger.Info().
		Int("confirmed", len(l.confirmed)).
		Int("pending", len(l.pending)).
		Msg("Ledger loaded")

	logger.Debug().Msgf("Pending journal: %v", log.DoLazyEval(func() string {
		parts := make([]string, 0, len(pending))
		for _, tx := range pending {
			parts = append(parts, fmt.Sprintf("%s nonce %d tx %s", tx.Pubkey, tx.Nonce, tx.TxHash))
		}
		return strings.Join(parts, "; ")
	}))

	return l, nil
}

// Contains reports whether the pubkey already has a confirmed deposit.
func (l *Ledger) Contains(pubkey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pk, err := normalizePubkey(pubkey)
	if err != nil {
		return false
	}
	_, ok := l.confirmed[pk]
	return ok
}

// Record durably marks a pubkey as confirmed. Recording an already-present
// pubkey is a no-op, so a retried confirmation cannot produce a duplicate.
func (l *Ledger) Record(pubkey string, txHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pk, err := normalizePubkey(pubkey)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}

	if _, ok := l.confirmed[pk]; ok {
		return nil
	}

	if err := l.store.AppendConfirmed(pk, txHash); err != nil {
		return fmt.Errorf("record %s: %w", pk, err)
	}

	l.confirmed[pk] = struct{}{}
	l.order = append(l.order, pk)

	logger.Debug().Str("pubkey", pk).Str("tx", txHash).Msg("Deposit recorded")
	return nil
}

// Pending returns the journaled broadcast for a pubkey, when one exists.
func (l *Ledger) Pending(pubkey string) (*PendingTx, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pk, err := normalizePubkey(pubkey)
	if err != nil {
		return nil, false
	}
	tx, ok := l.pending[pk]
	return tx, ok
}

// MarkPending journals a broadcast whose outcome is unknown. The entry keeps
// the pubkey out of resubmission until reconciliation clears it.
func (l *Ledger) MarkPending(tx *PendingTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pk, err := normalizePubkey(tx.Pubkey)
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	entry := *tx
	entry.Pubkey = pk

	if err := l.store.PutPending(&entry); err != nil {
		return fmt.Errorf("mark pending %s: %w", pk, err)
	}

	l.pending[pk] = &entry

	logger.Warn().
		Str("pubkey", pk).
		Str("tx", entry.TxHash).
		Uint64("nonce", entry.Nonce).
		Msg("Broadcast journaled with unknown outcome")
	return nil
}

// ResolvePending drops a journal entry once its outcome is settled.
func (l *Ledger) ResolvePending(pubkey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pk, err := normalizePubkey(pubkey)
	if err != nil {
		return fmt.Errorf("resolve pending: %w", err)
	}
	if _, ok := l.pending[pk]; !ok {
		return nil
	}

	if err := l.store.DeletePending(pk); err != nil {
		return fmt.Errorf("resolve pending %s: %w", pk, err)
	}

	delete(l.pending, pk)
	return nil
}

// PendingAll returns the journal in pubkey order.
func (l *Ledger) PendingAll() []*PendingTx {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*PendingTx, 0, len(l.pending))
	for _, tx := range l.pending {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out
}

// Confirmed returns the recorded pubkeys in recording order.
func (l *Ledger) Confirmed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.order...)
}

// Size is the number of confirmed deposits.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.confirmed)
}

// Import merges pubkeys recorded by other tooling into the ledger and
// returns how many were new. Malformed pubkeys fail the import before
// anything is written.
func (l *Ledger) Import(pubkeys []string) (int, error) {
	normalized := make([]string, 0, len(pubkeys))
	for _, pk := range pubkeys {
		n, err := normalizePubkey(pk)
		if err != nil {
			return 0, fmt.Errorf("import: %w", err)
		}
		normalized = append(normalized, n)
	}

	added := 0
	for _, pk := range normalized {
		if l.Contains(pk) {
			continue
		}
		if err := l.Record(pk, ""); err != nil {
			return added, err
		}
		added++
	}

	logger.Info().Int("added", added).Int("total", l.Size()).Msg("Ledger import finished")
	return added, nil
}

// Close releases the backing store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
