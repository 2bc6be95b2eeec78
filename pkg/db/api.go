package db

// KVStore is the key-value storage consumed by the registry and claim
// layers. Implementations must be safe for concurrent use.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch groups writes and deletes so they commit atomically.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator walks a key range in ascending key order.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
