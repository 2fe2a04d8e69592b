package store

import (
	"fmt"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the storage handle of one named database.
// All methods return a *Error on failure and are safe for concurrent use.
type IStore interface {
	// Name returns the logical name of the database.
	Name() (name string)
	// Set inserts or updates a key–value pair.
	Set(key, value []byte) (err error)
	// Delete deletes a key–value pair. Deleting a missing key is not an error.
	Delete(key []byte) (err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, loaded bool, err error)
	// Range returns a lazy cursor over the key space starting at start and walking in direction.
	// The cursor must be closed by the caller.
	Range(start RangeStart, direction db.Direction) (cursor Cursor)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases the underlying database. Every later call fails with RetCClosed.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Range Types
// --------------------------------------------------------------------------

// RangeStart is where a range begins.
type RangeStart struct {
	Origin db.Origin
	Key    []byte
}

// FromBeginning starts at the smallest key.
func FromBeginning() RangeStart { return RangeStart{Origin: db.FromStart} }

// FromEnd starts at the largest key.
func FromEnd() RangeStart { return RangeStart{Origin: db.FromEnd} }

// From starts at key, inclusive.
func From(key []byte) RangeStart { return RangeStart{Origin: db.FromKey, Key: key} }

// Pair is one key/value pair produced by a Cursor.
type Pair struct {
	Key   []byte
	Value []byte
}

// Cursor is a forward-only, single-pass, lazily evaluated sequence of pairs.
// It is not safe for concurrent use.
type Cursor interface {
	// Next returns the next pair. ok is false once the cursor is exhausted or failed.
	Next() (pair Pair, ok bool)
	// Err returns the error that stopped the cursor, if any.
	Err() (err error)
	// Close releases the cursor. It is safe to call more than once.
	Close()
}

// Take pulls up to n pairs from c and closes it.
// It never pulls more than n pairs from the underlying engine.
func Take(c Cursor, n int) ([]Pair, error) {
	defer c.Close()

	pairs := make([]Pair, 0, min(n, 1024))
	for len(pairs) < n {
		pair, ok := c.Next()
		if !ok {
			break
		}
		pairs = append(pairs, pair)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Is matches another *Error with the same code, so errors.Is(err, store.NewError(code, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode reports whether err is or wraps a *Error with the given code.
func HasCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCOpenFailed                      // 2: The database could not be opened or created.
	RetCInvalidOperation                // 3: Invalid operation.
	RetCClosed                          // 4: The store was already closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCOpenFailed:
		return "OpenFailed"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
