package pebbledb

import (
	"bytes"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// --------------------------------------------------------------------------
// Core Pebble database structure
// --------------------------------------------------------------------------

// pebbleImpl implements db.KVDB on top of pebble
type pebbleImpl struct {
	pdb    *pebble.DB
	path   string
	dbType db.Implementation
	wo     *pebble.WriteOptions
}

// DBOptions configures the pebble engine
type DBOptions struct {
	// SyncWrites flushes the WAL on every write before returning
	SyncWrites bool
	// InMemory keeps all files in an in-memory filesystem
	InMemory bool
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewPebbleDB opens or creates a pebble database in the directory path
func NewPebbleDB(path string, opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}

	pebbleOpts := &pebble.Options{}
	dbType := db.ImplPebble
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		dbType = db.ImplMemory
	}

	pdb, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", path)
	}

	wo := pebble.NoSync
	if opts.SyncWrites {
		wo = pebble.Sync
	}

	return &pebbleImpl{pdb: pdb, path: path, dbType: dbType, wo: wo}, nil
}

// Factory returns a db.Factory opening a pebble database per path
func Factory(opts *DBOptions) db.Factory {
	return func(path string) (db.KVDB, error) {
		return NewPebbleDB(path, opts)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (p *pebbleImpl) Set(key, value []byte) error {
	return p.pdb.Set(key, value, p.wo)
}

func (p *pebbleImpl) Delete(key []byte) error {
	return p.pdb.Delete(key, p.wo)
}

func (p *pebbleImpl) Get(key []byte) ([]byte, bool, error) {
	value, closer, err := p.pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	// value is only valid until closer is closed
	return bytes.Clone(value), true, nil
}

func (p *pebbleImpl) NewIterator(mode db.IteratorMode) db.Iterator {
	return &pebbleIterator{it: p.pdb.NewIter(nil), mode: mode}
}

func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	metrics := p.pdb.Metrics()
	return db.DatabaseInfo{
		SizeBytes: int64(metrics.DiskSpaceUsage()),
		DbType:    p.dbType,
		Path:      p.path,
		Metadata:  metrics.String(),
	}
}

func (p *pebbleImpl) Close() error {
	return p.pdb.Close()
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// pebbleIterator adapts a pebble iterator to db.Iterator.
// The first call to Next positions the iterator according to mode.
type pebbleIterator struct {
	it       *pebble.Iterator
	mode     db.IteratorMode
	started  bool
	released bool
	err      error
}

func (i *pebbleIterator) Next() bool {
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
func (i *pebbleIterator) seek() bool {
	switch i.mode.Origin {
	case db.FromStart:
		return i.it.First()
	case db.FromEnd:
		return i.it.Last()
	}

	if i.mode.Direction == db.Forward {
		return i.it.SeekGE(i.mode.Key)
	}

	// key+0x00 is the immediate successor of key, so the largest key
	// below it is the largest key <= mode.Key
	successor := append(bytes.Clone(i.mode.Key), 0)
	return i.it.SeekLT(successor)
}

func (i *pebbleIterator) Key() []byte {
	return bytes.Clone(i.it.Key())
}

func (i *pebbleIterator) Value() []byte {
	return bytes.Clone(i.it.Value())
}

func (i *pebbleIterator) Error() error {
	if i.err != nil {
		return i.err
	}
	return i.it.Error()
}

func (i *pebbleIterator) Release() {
	if !i.released {
		i.released = true
		i.err = i.it.Close()
	}
}
