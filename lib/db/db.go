package db

//go:generate mockgen -destination=mocks/mock_db.go -package=mocks github.com/ValentinKolb/mKV/lib/db KVDB,Iterator

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplLevelDB Implementation = "leveldb"
	ImplPebble  Implementation = "pebble"
	ImplMemory  Implementation = "memory"
)

type DatabaseInfo struct {
	SizeBytes int64          `json:"size_bytes"`
	DbType    Implementation `json:"db_type"`
	Path      string         `json:"path"`
	Metadata  interface{}    `json:"metadata"`
}

// Factory opens or creates a database at path.
// Implementations that keep everything in memory ignore path.
type Factory func(path string) (KVDB, error)

// --------------------------------------------------------------------------
// Iterator Types
// --------------------------------------------------------------------------

// Direction is the order in which an iterator walks the key space.
type Direction int

const (
	Forward  Direction = iota // ascending key order
	Backward                  // descending key order
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Origin is where an iterator starts.
type Origin int

const (
	FromStart Origin = iota // smallest key, always Forward
	FromEnd                 // largest key, always Backward
	FromKey                 // the given key or its nearest neighbour in Direction
)

// IteratorMode describes where an iterator starts and in which direction it walks.
type IteratorMode struct {
	Origin    Origin
	Key       []byte
	Direction Direction
}

// ModeStart iterates ascending from the smallest key.
func ModeStart() IteratorMode {
	return IteratorMode{Origin: FromStart, Direction: Forward}
}

// ModeEnd iterates descending from the largest key.
func ModeEnd() IteratorMode {
	return IteratorMode{Origin: FromEnd, Direction: Backward}
}

// ModeFrom iterates from key in the given direction.
// The first pair is key itself if present, otherwise the nearest key in direction.
func ModeFrom(key []byte, direction Direction) IteratorMode {
	return IteratorMode{Origin: FromKey, Key: key, Direction: direction}
}

// Iterator is a forward-only, single-pass cursor over a database.
// It is not safe for concurrent use.
type Iterator interface {
	// Next advances the iterator to the next pair. The first call positions
	// the iterator on the first pair. It returns false once the iterator is
	// exhausted or an error occurred.
	Next() bool
	// Key returns a copy of the key of the current pair.
	Key() []byte
	// Value returns a copy of the value of the current pair.
	Value() []byte
	// Error returns the first error the iterator ran into, if any.
	Error() error
	// Release frees the resources held by the iterator. It is safe to call more than once.
	Release()
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for ordered key-value database implementations.
// Keys are compared bytewise. All methods must be safe for concurrent use,
// except that Close must not run concurrently with any other method.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value is overwritten.
	Set(key, value []byte) (err error)

	// Delete removes the entry with the specified key.
	// Deleting a key that does not exist is not an error.
	Delete(key []byte) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is owned by the caller.
	Get(key []byte) (value []byte, loaded bool, err error)

	// NewIterator returns an iterator positioned before the first pair of mode.
	// The iterator must be released by the caller.
	NewIterator(mode IteratorMode) (it Iterator)

	// --------------------------------------------------------------------------
	// Meta Operations
	// --------------------------------------------------------------------------

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
