package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/loadtest"
	"github.com/termwork/tasksync/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "admin",
	Short:   "Load test synchronization against a memory remote",
	Long: `Run concurrent synchronization cycles for many users against an in-process
memory remote while readers query the cache, then check that every user's
cache matches the remote.

A throwaway database is used; the configured cache is not touched.

Examples:
  tasksync bench
  tasksync bench --users 50 --tasks 200 --rounds 3 --readers 20
  tasksync bench --latency 5ms --json`,
	Run: func(cmd *cobra.Command, args []string) {
		users, _ := cmd.Flags().GetInt("users")
		tasks, _ := cmd.Flags().GetInt("tasks")
		rounds, _ := cmd.Flags().GetInt("rounds")
		readers, _ := cmd.Flags().GetInt("readers")
		queries, _ := cmd.Flags().GetInt("queries")
		latency, _ := cmd.Flags().GetDuration("latency")

		if users <= 0 || tasks < 0 || rounds <= 0 || readers < 0 || queries <= 0 {
			fatal("--users, --rounds and --queries must be positive")
		}

		dir, err := os.MkdirTemp("", "tasksync-bench-*")
		if err != nil {
			fatal("%v", err)
		}
		defer os.RemoveAll(dir)

		env, err := loadtest.NewEnv(filepath.Join(dir, "bench.db"), loadtest.Config{
			Users:        users,
			TasksPerUser: tasks,
			Workers:      cfg.Sync.Workers,
			Latency:      latency,
		})
		if err != nil {
			fatal("%v", err)
		}
		defer env.Close()

		ctx := context.Background()
		start := time.Now()

		type readResult struct {
			stats *loadtest.LatencyStats
			err   error
		}
		readDone := make(chan readResult, 1)
		if readers > 0 {
			go func() {
				s, err := env.RunReaders(ctx, readers, queries)
				readDone <- readResult{s, err}
			}()
		} else {
			readDone <- readResult{}
		}

		cycles, cycleErr := env.RunCycles(rounds)
		reads := <-readDone
		elapsed := time.Since(start)
		consistency := env.VerifyConsistency(ctx)

		if jsonOutput {
			printJSON(map[string]any{
				"users":       users,
				"tasks":       users * tasks,
				"elapsed_ms":  elapsed.Milliseconds(),
				"cycles":      summarize(cycles),
				"reads":       summarize(reads.stats),
				"cycle_error": errString(cycleErr),
				"read_error":  errString(reads.err),
				"consistent":  consistency == nil,
			})
		} else {
			fmt.Printf("%s %d users × %d tasks, %d rounds in %v\n\n",
				ui.RenderAccent("⏱"), users, tasks, rounds, elapsed.Round(time.Millisecond))
			if cycles != nil {
				cycles.PrintStats(os.Stdout, "Cycle latency")
			}
			if reads.stats != nil {
				fmt.Println()
				reads.stats.PrintStats(os.Stdout, "Read latency")
			}
			fmt.Println()
			if consistency == nil {
				fmt.Printf("%s Every cache matches the remote\n", ui.RenderPass(ui.MarkPass))
			} else {
				fmt.Printf("%s %v\n", ui.RenderFail(ui.MarkFail), consistency)
			}
		}

		for _, err := range []error{cycleErr, reads.err, consistency} {
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

func summarize(s *loadtest.LatencyStats) map[string]any {
	if s == nil {
		return nil
	}
	return map[string]any{
		"total":   s.TotalQueries,
		"errors":  s.Errors,
		"min_us":  s.Min.Microseconds(),
		"p50_us":  s.P50.Microseconds(),
		"mean_us": s.Mean.Microseconds(),
		"p95_us":  s.P95.Microseconds(),
		"p99_us":  s.P99.Microseconds(),
		"max_us":  s.Max.Microseconds(),
	}
}

func init() {
	benchCmd.Flags().Int("users", 10, "Number of users to synchronize concurrently")
	benchCmd.Flags().Int("tasks", 50, "Remote tasks owned by each user")
	benchCmd.Flags().Int("rounds", 2, "Cycles per user")
	benchCmd.Flags().Int("readers", 10, "Concurrent cache readers (0 disables)")
	benchCmd.Flags().Int("queries", 20, "Queries per reader")
	benchCmd.Flags().Duration("latency", 0, "Latency added to every remote call")
	rootCmd.AddCommand(benchCmd)
}
