// Package store provides the storage handle abstraction of mKV: one opened,
// named database with point operations, lazy range cursors and unified error
// reporting. It serves as an abstraction layer over the lower-level db.KVDB
// implementations.
//
// Key Components:
//
//   - IStore Interface: The operations the session handler performs against a
//     selected database. Implementations translate engine specific errors into
//     *Error values so callers never see engine types.
//
//   - Cursor and Take: Range returns a forward-only cursor over the engine's
//     sorted key space. Take pulls a bounded prefix from it, which is how every
//     range command is answered: the cursor is never drained further than the
//     requested page.
//
//   - Error System: A structured error reporting mechanism using typed return
//     codes (RetCInternalError, RetCOpenFailed, RetCInvalidOperation, RetCClosed)
//     and descriptive messages.
//
// Implementations:
//
//	- Local Store (lstore): wraps a db.KVDB opened through a db.Factory.
//	  Available in the "github.com/ValentinKolb/mKV/lib/store/lstore" package.
package store
