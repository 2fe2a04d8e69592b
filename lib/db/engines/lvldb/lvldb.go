package lvldb

import (
	"bytes"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// --------------------------------------------------------------------------
// Core LevelDB database structure
// --------------------------------------------------------------------------

// levelImpl implements db.KVDB on top of goleveldb
type levelImpl struct {
	ldb    *leveldb.DB
	path   string
	dbType db.Implementation
	wo     *opt.WriteOptions
}

// DBOptions configures the leveldb engine
type DBOptions struct {
	// SyncWrites flushes every write to disk before returning
	SyncWrites bool
	// ReadOnly opens the database without write access
	ReadOnly bool
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewLevelDB opens or creates a leveldb database in the directory path.
// Only one process (and one instance) may have the directory open at a time.
func NewLevelDB(path string, opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}

	ldb, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", path)
	}

	return &levelImpl{
		ldb:    ldb,
		path:   path,
		dbType: db.ImplLevelDB,
		wo:     &opt.WriteOptions{Sync: opts.SyncWrites},
	}, nil
}

// NewMemoryDB creates a leveldb database that lives in memory only.
// Everything is lost on Close.
func NewMemoryDB() (db.KVDB, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory leveldb")
	}
	return &levelImpl{ldb: ldb, dbType: db.ImplMemory, wo: &opt.WriteOptions{}}, nil
}

// Factory returns a db.Factory opening a leveldb database per path
func Factory(opts *DBOptions) db.Factory {
	return func(path string) (db.KVDB, error) {
		return NewLevelDB(path, opts)
	}
}

// MemoryFactory returns a db.Factory creating a fresh in-memory database per call
func MemoryFactory() db.Factory {
	return func(string) (db.KVDB, error) {
		return NewMemoryDB()
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (l *levelImpl) Set(key, value []byte) error {
	return l.ldb.Put(key, value, l.wo)
}

func (l *levelImpl) Delete(key []byte) error {
	return l.ldb.Delete(key, l.wo)
}

func (l *levelImpl) Get(key []byte) ([]byte, bool, error) {
	// goleveldb already returns a copy owned by the caller
	value, err := l.ldb.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (l *levelImpl) NewIterator(mode db.IteratorMode) db.Iterator {
	return &levelIterator{it: l.ldb.NewIterator(nil, nil), mode: mode}
}

func (l *levelImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType: l.dbType,
		Path:   l.path,
	}
	if stats, err := l.ldb.GetProperty("leveldb.stats"); err == nil {
		info.Metadata = stats
	}
	return info
}

func (l *levelImpl) Close() error {
	return l.ldb.Close()
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// levelIterator adapts a goleveldb iterator to db.Iterator.
// The first call to Next positions the iterator according to mode.
type levelIterator struct {
	it       iterator.Iterator
	mode     db.IteratorMode
	started  bool
	released bool
}

func (i *levelIterator) Next() bool {
	if i.released {
		return false
	}
	if !i.started {
		i.started = true
		return i.seek()
	}
	if i.mode.Direction == db.Backward {
		return i.it.Prev()
	}
	return i.it.Next()
}

// seek positions the iterator on the first pair of the mode
func (i *levelIterator) seek() bool {
	switch i.mode.Origin {
	case db.FromStart:
		return i.it.First()
	case db.FromEnd:
		return i.it.Last()
	}

	// Seek finds the smallest key >= mode.Key
	found := i.it.Seek(i.mode.Key)
	if i.mode.Direction == db.Forward {
		return found
	}

	// Walking backwards the first pair is the largest key <= mode.Key
	if !found {
		return i.it.Last()
	}
	if bytes.Equal(i.it.Key(), i.mode.Key) {
		return true
	}
	return i.it.Prev()
}

func (i *levelIterator) Key() []byte {
	return bytes.Clone(i.it.Key())
}

func (i *levelIterator) Value() []byte {
	return bytes.Clone(i.it.Value())
}

func (i *levelIterator) Error() error {
	return i.it.Error()
}

func (i *levelIterator) Release() {
	if !i.released {
		i.released = true
		i.it.Release()
	}
}
