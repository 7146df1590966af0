package badgerdb

import (
	"bytes"
	"errors"

	"github.com/dgraph-io/badger/v2"

	submitterdb "github.com/Blockshard-io/validator-submitter/db"
)

type Iterator struct {
	start   []byte
	end     []byte
	reverse bool
	tx      *badger.Txn
	iter    *badger.Iterator
	closed  bool
}

func (db *DB) Iterator(start, end []byte) submitterdb.Iterator {
	badgerTx := db.db.NewTransaction(false)

	// a start key past the end key walks the range backwards
	reverse := bytes.Compare(start, end) == 1

	opt := badger.DefaultIteratorOptions
	opt.PrefetchValues = false
	opt.Reverse = reverse

	badgerIter := badgerTx.NewIterator(opt)
	badgerIter.Seek(start)

	return &Iterator{
		start:   start,
		end:     end,
		reverse: reverse,
		tx:      badgerTx,
		iter:    badgerIter,
	}
}

func (iter *Iterator) Next() error {
	if !iter.Valid() {
		return errors.New("invalid iterator")
	}
	iter.iter.Next()
	return nil
}

func (iter *Iterator) Valid() bool {
	if iter.closed {
		return false
	}

	if !iter.iter.Valid() {
		iter.close()
		return false
	}

	if iter.end != nil {
		if !iter.reverse {
			if bytes.Compare(iter.end, iter.iter.Item().Key()) <= 0 {
				iter.close()
				return false
			}
		} else {
			if bytes.Compare(iter.iter.Item().Key(), iter.end) <= 0 {
				iter.close()
				return false
			}
		}
	}

	return true
}

// close releases the underlying read transaction once the range is exhausted
func (iter *Iterator) close() {
	if iter.closed {
		return
	}
	iter.iter.Close()
	iter.tx.Discard()
	iter.closed = true
}

func (iter *Iterator) Key() ([]byte, error) {
	if iter.closed || !iter.iter.Valid() {
		return nil, errors.New("invalid iterator")
	}
	return iter.iter.Item().KeyCopy(nil), nil
}

func (iter *Iterator) Value() ([]byte, error) {
	if iter.closed || !iter.iter.Valid() {
		return nil, errors.New("invalid iterator")
	}
	return iter.iter.Item().ValueCopy(nil)
}
