package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/mKV/cmd/util"
	"github.com/ValentinKolb/mKV/rpc/client"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for mKV servers",
		Long:    "Runs parallel benchmarks against a server. Every worker opens its own connection and selects --db (default __perf).",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfDB               = "__perf"
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfPageSize         = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of parallel connections to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "page-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("Pairs per request of the range test"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfPageSize = min(max(viper.GetInt("page-size"), 1), math.MaxUint16)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	if name := viper.GetString("db"); name != "" {
		perfDB = name
	}

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for mKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Database: %s\n", perfDB)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// the shared client prepares and cleans up the test data
	if err := rpcClient.Use(perfDB); err != nil {
		return errors.Wrapf(err, "failed to select %s", perfDB)
	}

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	benchmarks := []struct {
		name    string
		prepare func(keys []string) error
		op      func(c *client.Client, key string) error
	}{
		{
			name: "set",
			op: func(c *client.Client, key string) error {
				return c.Set([]byte(key), []byte("test"))
			},
		},
		{
			name: "set-large",
			op: func(c *client.Client, key string) error {
				return c.Set([]byte(key), largeValue)
			},
		},
		{
			name:    "get",
			prepare: fillKeys,
			op: func(c *client.Client, key string) error {
				_, _, err := c.Get([]byte(key))
				return err
			},
		},
		{
			name:    "delete",
			prepare: fillKeys,
			op: func(c *client.Client, key string) error {
				return c.Delete([]byte(key))
			},
		},
		{
			name:    "range",
			prepare: fillKeys,
			op: func(c *client.Client, key string) error {
				_, err := c.Range(client.FromAsc([]byte(key)), uint16(perfPageSize), true)
				return err
			},
		},
		{
			name:    "mixed",
			prepare: fillKeys,
			op: func(c *client.Client, key string) error {
				if err := c.Set([]byte(key), []byte("mixed")); err != nil {
					return err
				}
				_, _, err := c.Get([]byte(key))
				return err
			},
		},
	}

	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, results[bm.name])
			continue
		}

		keys := getKeys(bm.name)
		if bm.prepare != nil {
			if err := bm.prepare(keys); err != nil {
				return errors.Wrapf(err, "failed to prepare %s", bm.name)
			}
		}

		results[bm.name] = runBenchmark(bm.name, keys, bm.op)
		printResult(bm.name, results[bm.name])

		if err := deleteKeys(keys); err != nil {
			log.Printf("(%s) - error deleting keys: %v\n", bm.name, err)
		}
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return err
		}
		fmt.Printf("\nResults written to %s\n", csvPath)
	}

	return nil
}

// runBenchmark runs op in parallel, every worker on its own connection
func runBenchmark(name string, keys []string, op func(c *client.Client, key string) error) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			c, err := util.Connect()
			if err == nil {
				err = c.Use(perfDB)
			}
			if err != nil {
				log.Printf("(%s) - error connecting: %v\n", name, err)
				return
			}
			defer c.Close()

			counter := 0
			for pb.Next() {
				if err := op(c, keys[counter%len(keys)]); err != nil {
					log.Printf("(%s) - error: %v\n", name, err)
				}
				counter++
			}
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// getKeys creates the test keys of one benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%06d", perfKeyPrefix, prefix, i)
	}
	return keys
}

// fillKeys writes every key in batches that fit one Write frame
func fillKeys(keys []string) error {
	return inBatches(keys, func(batch []string) error {
		pairs := make([]common.KV, len(batch))
		for i, key := range batch {
			pairs[i] = common.KV{Key: []byte(key), Value: []byte("value")}
		}
		return rpcClient.Write(pairs...)
	})
}

func deleteKeys(keys []string) error {
	return inBatches(keys, func(batch []string) error {
		return rpcClient.Delete(toTokens(batch)...)
	})
}

// inBatches calls fn with chunks of at most math.MaxUint16 keys, the largest count of a frame
func inBatches(keys []string, fn func(batch []string) error) error {
	for start := 0; start < len(keys); start += math.MaxUint16 {
		if err := fn(keys[start:min(start+math.MaxUint16, len(keys))]); err != nil {
			return err
		}
	}
	return nil
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return errors.Wrap(err, "failed to create CSV file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "Transport", "TimeoutSec",
		"Threads", "LargeValueSizeKB", "Keys Count", "PageSize",
	}
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	sort.Strings(tests)

	for _, test := range tests {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Endpoint,
			config.Transport,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfPageSize),
		}

		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write row for test %s", test)
		}
	}

	return nil
}
