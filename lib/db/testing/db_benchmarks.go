package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/mKV/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory(b))
		})

		b.Run("SetExisting", func(b *testing.B) {
			benchmarkSetExisting(b, factory(b))
		})

		b.Run("SetLargeValue", func(b *testing.B) {
			benchmarkSetLargeValue(b, factory(b))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory(b))
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, factory(b))
		})

		b.Run("RangePage", func(b *testing.B) {
			benchmarkRangePage(b, factory(b), db.Forward)
		})

		b.Run("RangePageBackward", func(b *testing.B) {
			benchmarkRangePage(b, factory(b), db.Backward)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory(b))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// prepare writes numKeys sequential keys and returns them
func prepare(b *testing.B, database db.KVDB, numKeys int) [][]byte {
	keys := make([][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = []byte(fmt.Sprintf("test-key-%08d", i))
		if err := database.Set(keys[i], []byte(fmt.Sprintf("test-value-%d", i))); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
	return keys
}

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := []byte(fmt.Sprintf("test-key-%d", i))
			value := []byte(fmt.Sprintf("test-value-%d", i))
			database.Set(key, value)
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	numKeys := 10000
	keys := prepare(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			database.Set(keys[counter%numKeys], value)
			counter++
		}
	})
}

// Benchmark for Set operation with large values
func benchmarkSetLargeValue(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	largeValue := make([]byte, 64*1024) // 64KB
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter.Add(1)))
			database.Set(key, largeValue)
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	numKeys := 10000
	keys := prepare(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(keys[counter%numKeys])
			counter++
		}
	})
}

// Benchmark for Delete operation, every iteration deletes a previously written key
func benchmarkDelete(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	keys := prepare(b, database, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Delete(keys[i])
	}
}

// Benchmark for pulling a page of 100 pairs from a random position
func benchmarkRangePage(b *testing.B, database db.KVDB, direction db.Direction) {
	b.Cleanup(func() {
		database.Close()
	})

	numKeys := 10000
	pageSize := 100
	keys := prepare(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			it := database.NewIterator(db.ModeFrom(keys[rnd.Intn(numKeys)], direction))
			for n := 0; n < pageSize && it.Next(); n++ {
				_, _ = it.Key(), it.Value()
			}
			it.Release()
		}
	})
}

// Benchmark for a mix of reads, writes, deletes and short scans
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	// Number of pre-populated keys
	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}
	keys := prepare(b, database, numKeys)

	// Counter for atomic access
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// Local counter for each goroutine
		localCounter := 0

		for pb.Next() {
			idx := int(counter.Add(1)-1) % numKeys

			// For every 10th operation, use a completely new key
			key := keys[idx]
			if localCounter%10 == 0 {
				key = []byte(fmt.Sprintf("new-key-%d", localCounter))
			}

			switch localCounter % 4 {
			case 0:
				database.Get(key)
			case 1:
				database.Set(key, []byte(fmt.Sprintf("mixed-value-%d", localCounter)))
			case 2:
				database.Delete(key)
			case 3:
				it := database.NewIterator(db.ModeFrom(key, db.Forward))
				for n := 0; n < 10 && it.Next(); n++ {
				}
				it.Release()
			}

			localCounter++
		}
	})
}
