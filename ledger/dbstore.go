package ledger

import (
	"encoding/json"
	"fmt"

	submitterdb "github.com/Blockshard-io/validator-submitter/db"
)

// DBStore keeps the ledger in a key-value database, one namespace for the
// confirmed set (pubkey to tx hash) and one for the pending journal. Suits
// batches too large for whole-file rewrites.
type DBStore struct {
	db submitterdb.DB
}

func NewDBStore(db submitterdb.DB) *DBStore {
	return &DBStore{db: db}
}

func namespaceBounds(namespace []byte) ([]byte, []byte) {
	start := submitterdb.PrependNamespace(namespace, nil)
	end := append(append([]byte(nil), start...), 0xff)
	return start, end
}

func stripNamespace(namespace []byte, key []byte) []byte {
	prefixLen := len(namespace) + len(submitterdb.Separator)
	if len(key) < prefixLen {
		return key
	}
	return key[prefixLen:]
}

func (s *DBStore) LoadConfirmed() ([]string, error) {
	var pubkeys []string

	start, end := namespaceBounds(submitterdb.NamespaceConfirmedDeposit)
	for iter := s.db.Iterator(start, end); iter.Valid(); iter.Next() {
		key, err := iter.Key()
		if err != nil {
			return nil, fmt.Errorf("%w: iterate confirmed set: %v", ErrCorrupt, err)
		}
		pk, err := normalizePubkey(string(stripNamespace(submitterdb.NamespaceConfirmedDeposit, key)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		pubkeys = append(pubkeys, pk)
	}

	return pubkeys, nil
}

func (s *DBStore) AppendConfirmed(pubkey string, txHash string) error {
	return s.db.Set(submitterdb.NamespaceConfirmedDeposit, []byte(pubkey), []byte(txHash))
}

func (s *DBStore) LoadPending() ([]*PendingTx, error) {
	var pending []*PendingTx

	start, end := namespaceBounds(submitterdb.NamespacePendingBroadcast)
	for iter := s.db.Iterator(start, end); iter.Valid(); iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("%w: iterate pending journal: %v", ErrCorrupt, err)
		}
		var tx PendingTx
		if err := json.Unmarshal(value, &tx); err != nil {
			return nil, fmt.Errorf("%w: pending journal entry: %v", ErrCorrupt, err)
		}
		pending = append(pending, &tx)
	}

	return pending, nil
}

func (s *DBStore) PutPending(tx *PendingTx) error {
	value, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return s.db.Set(submitterdb.NamespacePendingBroadcast, []byte(tx.Pubkey), value)
}

func (s *DBStore) DeletePending(pubkey string) error {
	return s.db.Delete(submitterdb.NamespacePendingBroadcast, []byte(pubkey))
}

func (s *DBStore) Close() error {
	return s.db.Close()
}
