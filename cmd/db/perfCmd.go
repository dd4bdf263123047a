package db

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foliodb/foliodb/cmd/util"
	"github.com/foliodb/foliodb/folio"
	"github.com/foliodb/foliodb/lib/filter"
	"github.com/foliodb/foliodb/lib/haystack"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for folio stores",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfMarker     = "perfTest"
	perfNumThreads = 10
	perfRecCount   = 1000
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. commit,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "recs"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How many records to create for the tests"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfRecCount = viper.GetInt("recs")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for folio stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	cfg := store.Config()
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d\nRecords: %d\n", perfNumThreads, perfRecCount)
	fmt.Println()

	fmt.Println("starting tests...")

	ids := make([]*haystack.Ref, perfRecCount)

	commitTimer := gometrics.NewTimer()
	if !shouldSkip("commit") {
		runParallel(perfRecCount, func(i int) {
			commitTimer.Time(func() {
				changes := haystack.NewDictBuilder().
					SetMarker(perfMarker).
					Set("dis", haystack.Str(fmt.Sprintf("perf-%d", i))).
					ToDict()
				rec, err := store.Commit(folio.NewAddDiff(changes, nil), nil)
				if err != nil {
					fmt.Printf("(commit) - error adding rec: %v\n", err)
					return
				}
				ids[i] = rec.ID()
			})
		})
	}
	printTimer("commit", commitTimer)

	readTimer := gometrics.NewTimer()
	if !shouldSkip("read") {
		runParallel(perfRecCount, func(i int) {
			if ids[i] == nil {
				return
			}
			readTimer.Time(func() {
				if _, err := store.ReadByID(ids[i]); err != nil {
					fmt.Printf("(read) - error reading rec: %v\n", err)
				}
			})
		})
	}
	printTimer("read", readTimer)

	queryTimer := gometrics.NewTimer()
	if !shouldSkip("query") {
		runParallel(perfNumThreads, func(int) {
			queryTimer.Time(func() {
				store.ReadCount(filter.Has(perfMarker), folio.ReadOpts{})
			})
		})
	}
	printTimer("query", queryTimer)

	removeTimer := gometrics.NewTimer()
	if !shouldSkip("remove") {
		runParallel(perfRecCount, func(i int) {
			if ids[i] == nil {
				return
			}
			removeTimer.Time(func() {
				rec, ok := store.Rec(ids[i])
				if !ok {
					return
				}
				if _, err := store.Commit(folio.NewRemoveDiff(rec), nil); err != nil {
					fmt.Printf("(remove) - error removing rec: %v\n", err)
				}
			})
		})
	}
	printTimer("remove", removeTimer)

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// runParallel spreads n calls of fn over the configured worker count.
func runParallel(n int, fn func(i int)) {
	var wg sync.WaitGroup
	next := make(chan int)

	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}

// printTimer prints one benchmark timer in a formatted way
func printTimer(test string, t gometrics.Timer) {
	snap := t.Snapshot()
	if snap.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	mean := time.Duration(int64(snap.Mean()))
	p95 := time.Duration(int64(snap.Percentile(0.95)))
	opsPerSec := 0.0
	if snap.Mean() > 0 {
		opsPerSec = 1e9 / snap.Mean()
	}

	fmt.Printf("%-20s%d ops\t%s/op (p95 %s)\t%.0f ops/sec\n",
		test, snap.Count(), mean, p95, opsPerSec)
}
