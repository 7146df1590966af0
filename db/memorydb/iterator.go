package memorydb

import (
	"bytes"
	"errors"
	"sort"

	submitterdb "github.com/Blockshard-io/validator-submitter/db"
)

type Iterator struct {
	start   []byte
	end     []byte
	reverse bool
	keys    []string
	cursor  int
	db      *DB
}

func isKeyInRange(key []byte, start []byte, end []byte, reverse bool) bool {
	if reverse {
		if start != nil && bytes.Compare(start, key) < 0 {
			return false
		}
		if end != nil && bytes.Compare(key, end) <= 0 {
			return false
		}
		return true
	}

	if bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(end, key) <= 0 {
		return false
	}
	return true
}

func (db *DB) Iterator(start []byte, end []byte) submitterdb.Iterator {
	db.lock.Lock()
	defer db.lock.Unlock()

	// a start key past the end key walks the range backwards
	reverse := bytes.Compare(start, end) == 1

	var keys sort.StringSlice

	for key := range db.db {
		if isKeyInRange([]byte(key), start, end, reverse) {
			keys = append(keys, key)
		}
	}
	if reverse {
		sort.Sort(sort.Reverse(keys))
	} else {
		sort.Strings(keys)
	}

	return &Iterator{
		start:   start,
		end:     end,
		reverse: reverse,
		keys:    keys,
		cursor:  0,
		db:      db,
	}
}

func (iter *Iterator) Next() error {
	if !iter.Valid() {
		return errors.New("invalid iterator")
	}

	iter.cursor++
	return nil
}

func (iter *Iterator) Valid() bool {
	return 0 <= iter.cursor && iter.cursor < len(iter.keys)
}

func (iter *Iterator) Key() ([]byte, error) {
	if !iter.Valid() {
		return nil, errors.New("invalid iterator")
	}

	return []byte(iter.keys[iter.cursor]), nil
}

func (iter *Iterator) Value() ([]byte, error) {
	if !iter.Valid() {
		return nil, errors.New("invalid iterator")
	}

	key := []byte(iter.keys[iter.cursor])

	value, exists, err := iter.db.Get(nil, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return value, nil
}
