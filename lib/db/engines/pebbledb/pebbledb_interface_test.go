package pebbledb

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/mKV/lib/db"
	dbtesting "github.com/ValentinKolb/mKV/lib/db/testing"
)

func newTestDB(t testing.TB) db.KVDB {
	database, err := NewPebbleDB(filepath.Join(t.TempDir(), "db"), nil)
	if err != nil {
		t.Fatalf("NewPebbleDB failed: %v", err)
	}
	return database
}

func newTestMemoryDB(t testing.TB) db.KVDB {
	database, err := NewPebbleDB("mem", &DBOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewPebbleDB failed: %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "PebbleDB", newTestDB)
	dbtesting.RunKVDBTests(t, "PebbleMemoryDB", newTestMemoryDB)
	dbtesting.RunKVDBPersistenceTests(t, "PebbleDB", Factory(&DBOptions{SyncWrites: true}))
}

func TestInfo(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	info := database.GetInfo()
	if info.DbType != db.ImplPebble {
		t.Errorf("Expected db type %s, got %s", db.ImplPebble, info.DbType)
	}
	if info.Metadata == nil {
		t.Errorf("Expected metrics in metadata")
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "PebbleDB", newTestDB)
}
