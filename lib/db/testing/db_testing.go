package testing

import (
	"bytes"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/ValentinKolb/mKV/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a KVDB implementation.
// Implementations that need a directory should use t.TempDir().
type DBFactory func(t testing.TB) db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("IterateFromStart", func(t *testing.T) {
			testIterateFromStart(t, factory(t))
		})

		t.Run("IterateFromEnd", func(t *testing.T) {
			testIterateFromEnd(t, factory(t))
		})

		t.Run("IterateFromKeyForward", func(t *testing.T) {
			testIterateFromKeyForward(t, factory(t))
		})

		t.Run("IterateFromKeyBackward", func(t *testing.T) {
			testIterateFromKeyBackward(t, factory(t))
		})

		t.Run("IterateEmpty", func(t *testing.T) {
			testIterateEmpty(t, factory(t))
		})

		t.Run("IteratorCopies", func(t *testing.T) {
			testIteratorCopies(t, factory(t))
		})

		t.Run("IteratorRelease", func(t *testing.T) {
			testIteratorRelease(t, factory(t))
		})

		t.Run("BytewiseOrder", func(t *testing.T) {
			testBytewiseOrder(t, factory(t))
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory(t))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory(t))
		})
	})
}

// RunKVDBPersistenceTests checks that data written through one instance is
// visible after reopening the same path. Only for engines that write to disk.
func RunKVDBPersistenceTests(t *testing.T, name string, factory db.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// fill writes key-i -> value-i for the given keys
func fill(t testing.TB, database db.KVDB, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := database.Set([]byte(k), []byte("value-"+k)); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}
}

// collectKeys pulls up to n keys from a fresh iterator
func collectKeys(t testing.TB, database db.KVDB, mode db.IteratorMode, n int) []string {
	t.Helper()
	it := database.NewIterator(mode)
	defer it.Release()

	keys := make([]string, 0, n)
	for len(keys) < n && it.Next() {
		key := it.Key()
		if want := []byte("value-" + string(key)); !bytes.Equal(it.Value(), want) {
			t.Errorf("Value for key %s is %s, expected %s", key, it.Value(), want)
		}
		keys = append(keys, string(key))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("Iterator error: %v", err)
	}
	return keys
}

func expectKeys(t testing.TB, got []string, want ...string) {
	t.Helper()
	if len(want) == 0 {
		want = []string{}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected keys %q, got %q", want, got)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Set(testKey, testValue1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists, err := database.Get(testKey)
	if err != nil || !exists {
		t.Errorf("Expected key %s to exist after Set (err=%v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := database.Set(testKey, testValue2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists, err = database.Get(testKey)
	if err != nil || !exists {
		t.Errorf("Expected key %s to exist after overwrite (err=%v)", testKey, err)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, err = database.Get([]byte("nonexistent-key"))
	if err != nil || exists {
		t.Errorf("Expected nonexistent key to return exists=false (err=%v)", err)
	}

	retrievedValue, _, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := []byte("delete-test-key")

	if err := database.Set(testKey, []byte("delete-test-value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := database.Delete(testKey); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, exists, _ := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if err := database.Delete([]byte("nonexistent-key")); err != nil {
		t.Errorf("Deleting a nonexistent key should not fail: %v", err)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	// empty value
	if err := database.Set([]byte("empty"), []byte{}); err != nil {
		t.Fatalf("Set with empty value failed: %v", err)
	}
	value, exists, err := database.Get([]byte("empty"))
	if err != nil || !exists {
		t.Errorf("Expected key with empty value to exist (err=%v)", err)
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value, got %q", value)
	}

	// binary key and value
	binKey := []byte{0x00, 0xff, 0x10, 0x00}
	binValue := []byte{0xde, 0xad, 0x00, 0xbe, 0xef}
	if err := database.Set(binKey, binValue); err != nil {
		t.Fatalf("Set with binary key failed: %v", err)
	}
	value, exists, _ = database.Get(binKey)
	if !exists || !bytes.Equal(value, binValue) {
		t.Errorf("Expected binary value %x, got %x", binValue, value)
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1<<20)
	if err := database.Set([]byte("large"), large); err != nil {
		t.Fatalf("Set with large value failed: %v", err)
	}
	value, _, _ = database.Get([]byte("large"))
	if !bytes.Equal(value, large) {
		t.Errorf("Large value mismatch, got %d bytes", len(value))
	}
}

func testIterateFromStart(t *testing.T, database db.KVDB) {
	defer database.Close()
	fill(t, database, "c", "a", "d", "b", "e")

	expectKeys(t, collectKeys(t, database, db.ModeStart(), 100), "a", "b", "c", "d", "e")
	expectKeys(t, collectKeys(t, database, db.ModeStart(), 2), "a", "b")
}

func testIterateFromEnd(t *testing.T, database db.KVDB) {
	defer database.Close()
	fill(t, database, "c", "a", "d", "b", "e")

	expectKeys(t, collectKeys(t, database, db.ModeEnd(), 100), "e", "d", "c", "b", "a")
	expectKeys(t, collectKeys(t, database, db.ModeEnd(), 2), "e", "d")
}

func testIterateFromKeyForward(t *testing.T, database db.KVDB) {
	defer database.Close()
	fill(t, database, "b", "d", "f")

	testCases := []struct {
		from string
		want []string
	}{
		{from: "d", want: []string{"d", "f"}},  // exact match is included
		{from: "c", want: []string{"d", "f"}},  // absent key starts at the successor
		{from: "a", want: []string{"b", "d", "f"}},
		{from: "", want: []string{"b", "d", "f"}},
		{from: "g", want: []string{}}, // past the last key
	}

	for _, tc := range testCases {
		got := collectKeys(t, database, db.ModeFrom([]byte(tc.from), db.Forward), 100)
		expectKeys(t, got, tc.want...)
	}
}

func testIterateFromKeyBackward(t *testing.T, database db.KVDB) {
	defer database.Close()
	fill(t, database, "b", "d", "f")

	testCases := []struct {
		from string
		want []string
	}{
		{from: "d", want: []string{"d", "b"}}, // exact match is included
		{from: "e", want: []string{"d", "b"}}, // absent key starts at the predecessor
		{from: "z", want: []string{"f", "d", "b"}},
		{from: "a", want: []string{}}, // before the first key
		{from: "d\x00", want: []string{"d", "b"}},
	}

	for _, tc := range testCases {
		got := collectKeys(t, database, db.ModeFrom([]byte(tc.from), db.Backward), 100)
		expectKeys(t, got, tc.want...)
	}
}

func testIterateEmpty(t *testing.T, database db.KVDB) {
	defer database.Close()

	modes := []db.IteratorMode{
		db.ModeStart(),
		db.ModeEnd(),
		db.ModeFrom([]byte("k"), db.Forward),
		db.ModeFrom([]byte("k"), db.Backward),
	}
	for _, mode := range modes {
		expectKeys(t, collectKeys(t, database, mode, 10))
	}
}

func testIteratorCopies(t *testing.T, database db.KVDB) {
	defer database.Close()
	fill(t, database, "a", "b")

	it := database.NewIterator(db.ModeStart())
	defer it.Release()

	if !it.Next() {
		t.Fatalf("Expected a first pair")
	}
	key, value := it.Key(), it.Value()
	key[0], value[0] = 'X', 'X'

	if !bytes.Equal(it.Key(), []byte("a")) || !bytes.Equal(it.Value(), []byte("value-a")) {
		t.Errorf("Iterator should return copies, got %s=%s", it.Key(), it.Value())
	}

	// keys taken before advancing stay valid
	first := it.Key()
	if !it.Next() {
		t.Fatalf("Expected a second pair")
	}
	if !bytes.Equal(first, []byte("a")) {
		t.Errorf("Key changed after Next: %s", first)
	}
}

func testIteratorRelease(t *testing.T, database db.KVDB) {
	defer database.Close()
	fill(t, database, "a", "b")

	it := database.NewIterator(db.ModeStart())
	if !it.Next() {
		t.Fatalf("Expected a first pair")
	}
	it.Release()
	it.Release()

	if it.Next() {
		t.Errorf("Next should return false after Release")
	}
}

func testBytewiseOrder(t *testing.T, database db.KVDB) {
	defer database.Close()

	keys := [][]byte{{0xff}, {0x00}, {0x00, 0x00}, {0x01}, {0x7f, 0xff}, []byte("A"), []byte("a")}
	for _, k := range keys {
		if err := database.Set(k, []byte("value-"+string(k))); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	got := collectKeys(t, database, db.ModeStart(), 100)
	expectKeys(t, got, "\x00", "\x00\x00", "\x01", "A", "a", "\x7f\xff", "\xff")
}

func testConcurrentWriters(t *testing.T, database db.KVDB) {
	defer database.Close()

	const writers = 4
	const perWriter = 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				k := fmt.Sprintf("w%d-%04d", w, i)
				if err := database.Set([]byte(k), []byte("value-"+k)); err != nil {
					t.Errorf("Set(%s) failed: %v", k, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			k := fmt.Sprintf("w%d-%04d", w, i)
			if _, exists, _ := database.Get([]byte(k)); !exists {
				t.Fatalf("Key %s lost", k)
			}
		}
	}

	if got := collectKeys(t, database, db.ModeStart(), writers*perWriter+1); len(got) != writers*perWriter {
		t.Errorf("Expected %d keys, iterated %d", writers*perWriter, len(got))
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	// paginate through 25 keys with page size 4 using the last key as cursor
	var keys []string
	for i := 0; i < 25; i++ {
		keys = append(keys, fmt.Sprintf("user:%03d", i))
	}
	fill(t, database, keys...)

	var seen []string
	page := collectKeys(t, database, db.ModeStart(), 4)
	for len(page) > 0 {
		seen = append(seen, page...)
		last := page[len(page)-1]

		// exclusive continuation: fetch one more and drop the cursor key
		next := collectKeys(t, database, db.ModeFrom([]byte(last), db.Forward), 5)
		if len(next) > 0 && next[0] == last {
			next = next[1:]
		}
		if len(next) > 4 {
			next = next[:4]
		}
		page = next
	}
	expectKeys(t, seen, keys...)

	// delete every other key and walk backwards
	for i := 0; i < 25; i += 2 {
		if err := database.Delete([]byte(keys[i])); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	got := collectKeys(t, database, db.ModeEnd(), 3)
	expectKeys(t, got, "user:023", "user:021", "user:019")
}

func testReopen(t *testing.T, factory db.Factory) {
	path := filepath.Join(t.TempDir(), "reopen")

	database, err := factory(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	fill(t, database, "a", "b", "c")
	if err := database.Delete([]byte("b")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	database, err = factory(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer database.Close()

	expectKeys(t, collectKeys(t, database, db.ModeStart(), 10), "a", "c")
	if info := database.GetInfo(); info.Path != path {
		t.Errorf("Expected info path %s, got %s", path, info.Path)
	}
}
