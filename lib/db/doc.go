// Package db provides a standardized interface for ordered key-value database
// implementations. It defines the KVDB interface that lets the store and the
// registry interact with different embedded engines while hiding their details.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides point operations (Set, Get, Delete), an ordered iterator
//     factory (NewIterator), metadata retrieval (GetInfo) and Close.
//
//   - Iterator: A lazily evaluated, single-pass cursor over the sorted key space.
//     Callers pull as many pairs as they need and release it; the whole key
//     space is never materialized.
//
//   - IteratorMode: Where an iterator starts (FromStart, FromEnd, FromKey) and in
//     which Direction it walks. FromKey is inclusive: the first pair is the key
//     itself if present, otherwise its nearest neighbour in Direction.
//
//   - Factory: Opens a database at a path. The registry uses one factory for all
//     databases, which decides the engine.
//
// Related Packages:
//
// The engines/lvldb package (github.com/ValentinKolb/mKV/lib/db/engines/lvldb)
// implements KVDB on top of goleveldb and also offers a purely in-memory
// variant. The engines/pebbledb package implements KVDB on top of pebble.
//
// The testing package (github.com/ValentinKolb/mKV/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
//
// The mocks package provides a gomock mock of KVDB for failure injection.
package db
