package memorydb

import (
	"container/list"
	"sync"

	submitterdb "github.com/Blockshard-io/validator-submitter/db"
)

// NewDB returns an empty in-memory database. It backs tests and dry runs
// where nothing may touch the disk.
func NewDB() *DB {
	return &DB{
		db: make(map[string][]byte),
	}
}

// Enforce database and transaction implements interfaces
var _ submitterdb.DB = (*DB)(nil)

type DB struct {
	lock sync.Mutex
	db   map[string][]byte
}

func (db *DB) Type() string {
	return "memorydb"
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = submitterdb.PrependNamespace(namespace, key)
	key = submitterdb.ConvNilToBytes(key)
	value = submitterdb.ConvNilToBytes(value)

	db.db[string(key)] = value
	return nil
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = submitterdb.PrependNamespace(namespace, key)
	key = submitterdb.ConvNilToBytes(key)

	delete(db.db, string(key))
	return nil
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = submitterdb.PrependNamespace(namespace, key)
	key = submitterdb.ConvNilToBytes(key)

	value, exists := db.db[string(key)]
	return value, exists, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = submitterdb.PrependNamespace(namespace, key)
	key = submitterdb.ConvNilToBytes(key)

	_, ok := db.db[string(key)]

	return ok, nil
}

func (db *DB) Close() error {
	return nil
}

func (db *DB) NewTx() submitterdb.Transaction {
	return &Transaction{
		db:     db,
		opList: list.New(),
	}
}

func (db *DB) NewBulk() submitterdb.Bulk {
	return &Bulk{
		db:     db,
		opList: list.New(),
	}
}
