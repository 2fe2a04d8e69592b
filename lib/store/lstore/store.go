package lstore

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/ValentinKolb/mKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

type storeImpl struct {
	name string
	db   db.KVDB

	// mu is held shared by every operation and every open cursor,
	// and exclusively by Close
	mu     sync.RWMutex
	closed bool
}

// NewLocalStore creates a new local store instance wrapping an already opened database.
// The store takes ownership of database and closes it on Close.
func NewLocalStore(name string, database db.KVDB) store.IStore {
	return &storeImpl{
		name: name,
		db:   database,
	}
}

// Open opens the database at path with factory and wraps it in a local store.
// Failures are reported as RetCOpenFailed.
func Open(name, path string, factory db.Factory) (store.IStore, error) {
	database, err := factory(path)
	if err != nil {
		return nil, store.NewError(store.RetCOpenFailed, err.Error())
	}
	return NewLocalStore(name, database), nil
}

// acquire takes the shared lock and fails if the store is already closed.
// On success the caller must call s.mu.RUnlock.
func (s *storeImpl) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.NewError(store.RetCClosed, "store "+s.name+" is closed")
	}
	return nil
}

// internal translates an engine error to a store error
func (s *storeImpl) internal(op string, err error) error {
	Logger.Warningf("%s on %s failed: %v", op, s.name, err)
	return store.NewError(store.RetCInternalError, op+" failed: "+err.Error())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Name() string {
	return s.name
}

func (s *storeImpl) Set(key, value []byte) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if err := s.db.Set(key, value); err != nil {
		return s.internal("set", err)
	}
	return nil
}

func (s *storeImpl) Delete(key []byte) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if err := s.db.Delete(key); err != nil {
		return s.internal("delete", err)
	}
	return nil
}

func (s *storeImpl) Get(key []byte) ([]byte, bool, error) {
	if err := s.acquire(); err != nil {
		return nil, false, err
	}
	defer s.mu.RUnlock()

	val, ok, err := s.db.Get(key)
	if err != nil {
		return nil, false, s.internal("get", err)
	}
	return val, ok, nil
}

func (s *storeImpl) Range(start store.RangeStart, direction db.Direction) store.Cursor {
	var mode db.IteratorMode
	switch {
	case start.Origin == db.FromStart:
		mode = db.ModeStart()
	case start.Origin == db.FromEnd:
		mode = db.ModeEnd()
	case start.Origin == db.FromKey && (direction == db.Forward || direction == db.Backward):
		mode = db.ModeFrom(start.Key, direction)
	default:
		err := store.NewError(store.RetCInvalidOperation, fmt.Sprintf("invalid range start %d in direction %d", start.Origin, direction))
		return &cursorImpl{err: err, done: true}
	}

	if err := s.acquire(); err != nil {
		return &cursorImpl{err: err, done: true}
	}

	// the shared lock is released by the cursor's Close
	return &cursorImpl{s: s, it: s.db.NewIterator(mode)}
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	if err := s.acquire(); err != nil {
		return db.DatabaseInfo{}, err
	}
	defer s.mu.RUnlock()

	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return s.internal("close", err)
	}
	Logger.Debugf("closed store %s", s.name)
	return nil
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// cursorImpl wraps a db.Iterator and holds the store's shared lock until closed
type cursorImpl struct {
	s    *storeImpl
	it   db.Iterator
	err  error
	done bool
}

func (c *cursorImpl) Next() (store.Pair, bool) {
	if c.done {
		return store.Pair{}, false
	}
	if !c.it.Next() {
		if err := c.it.Error(); err != nil {
			c.err = c.s.internal("iterate", err)
		}
		c.Close()
		return store.Pair{}, false
	}
	return store.Pair{Key: c.it.Key(), Value: c.it.Value()}, true
}

func (c *cursorImpl) Err() error {
	return c.err
}

func (c *cursorImpl) Close() {
	if c.done {
		return
	}
	c.done = true
	c.it.Release()
	c.s.mu.RUnlock()
}
