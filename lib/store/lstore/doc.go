// Package lstore implements store.IStore on top of a single db.KVDB.
//
// Implementation Details:
//
//   - Ownership: the store owns the database it wraps and closes it on Close.
//     The registry decides when that happens, based on its reference counts.
//
//   - Closing: every operation holds a shared lock for its duration and every
//     open cursor holds it until it is closed. Close takes the lock exclusively,
//     so the engine is never closed under a running operation. Operations after
//     Close fail with store.RetCClosed.
//
//   - Errors: engine failures are logged on the "store" logger and returned as
//     store.RetCInternalError. Failing to open a database yields
//     store.RetCOpenFailed.
//
// Usage Example:
//
//	s, err := lstore.Open("users", "/var/lib/mkv/users", lvldb.Factory(nil))
//	err = s.Set([]byte("alice"), []byte("admin"))
//	pairs, err := store.Take(s.Range(store.FromBeginning(), db.Forward), 10)
package lstore
