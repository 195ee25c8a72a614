package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. Every backend also
// exposes a trie node database sharing the same keyspace so the state trie and
// the node metadata (head root, round counter) live in one place.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	nodes  ethdb.Database
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	nodes := rawdb.NewDatabase(memorydb.New())
	return &MemDB{
		data:   make(map[string][]byte),
		nodes:  nodes,
		trieDB: triedb.NewDatabase(nodes, triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

// TrieDB returns the trie node database backing the state trie.
func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store. Node metadata and trie nodes share
// a single LevelDB instance opened through go-ethereum's ethdb wrapper.
type LevelDB struct {
	db     *ethleveldb.Database
	trieDB *triedb.Database
}

// LevelDBOptions tunes the underlying goleveldb instance.
type LevelDBOptions struct {
	CacheMB  int
	Handles  int
	ReadOnly bool
}

// NewLevelDB creates or opens a LevelDB database at the specified path using
// default options.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens the database with explicit cache and handle
// limits.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	cache := opts.CacheMB
	if cache <= 0 {
		cache = 16
	}
	handles := opts.Handles
	if handles <= 0 {
		handles = 64
	}
	db, err := ethleveldb.NewCustom(path, "", func(options *opt.Options) {
		options.BlockCacheCapacity = cache / 2 * opt.MiB
		options.WriteBuffer = cache / 4 * opt.MiB
		options.OpenFilesCacheCapacity = handles
		options.ReadOnly = opts.ReadOnly
	})
	if err != nil {
		return nil, err
	}
	nodes := rawdb.NewDatabase(db)
	return &LevelDB{
		db:     db,
		trieDB: triedb.NewDatabase(nodes, triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key)
}

// TrieDB returns the trie node database backing the state trie.
func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}

// Close closes the trie database and the connection.
func (ldb *LevelDB) Close() {
	ldb.trieDB.Close()
	ldb.db.Close()
}
