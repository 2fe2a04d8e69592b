package lvldb

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/mKV/lib/db"
	dbtesting "github.com/ValentinKolb/mKV/lib/db/testing"
)

func newTestDB(t testing.TB) db.KVDB {
	database, err := NewLevelDB(filepath.Join(t.TempDir(), "db"), nil)
	if err != nil {
		t.Fatalf("NewLevelDB failed: %v", err)
	}
	return database
}

func newTestMemoryDB(t testing.TB) db.KVDB {
	database, err := NewMemoryDB()
	if err != nil {
		t.Fatalf("NewMemoryDB failed: %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "LevelDB", newTestDB)
	dbtesting.RunKVDBTests(t, "MemoryDB", newTestMemoryDB)
	dbtesting.RunKVDBPersistenceTests(t, "LevelDB", Factory(&DBOptions{SyncWrites: true}))
}

func TestDirectoryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked")

	first, err := NewLevelDB(path, nil)
	if err != nil {
		t.Fatalf("NewLevelDB failed: %v", err)
	}
	defer first.Close()

	if second, err := NewLevelDB(path, nil); err == nil {
		second.Close()
		t.Errorf("Opening the same directory twice should fail")
	}
}

func TestInfo(t *testing.T) {
	database := newTestMemoryDB(t)
	defer database.Close()

	if info := database.GetInfo(); info.DbType != db.ImplMemory {
		t.Errorf("Expected db type %s, got %s", db.ImplMemory, info.DbType)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "LevelDB", newTestDB)
	dbtesting.RunKVDBBenchmarks(b, "MemoryDB", newTestMemoryDB)
}
