package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/daemon"
	"github.com/termwork/tasksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one synchronization cycle",
	Long: `Run one synchronization cycle for the configured user:
  1. Fulfil pending process-instance requests
  2. Push queued task actions
  3. Claim new tasks (when sync.claim_limit > 0)
  4. Fetch owned tasks into the local cache

Progress already committed is kept if the cycle fails part way.`,
	Run: func(cmd *cobra.Command, args []string) {
		userID := requireUser()
		wait, _ := cmd.Flags().GetDuration("wait")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		d, err := rt.newDaemon()
		if err != nil {
			fatal("creating daemon: %v", err)
		}
		defer d.Stop()

		if !jsonOutput {
			fmt.Printf("%s Synchronizing %s...\n", ui.RenderAccent("⟳"), userID)
		}
		start := time.Now()

		var timeout <-chan time.Time
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			timeout = timer.C
		}

		var res daemon.Result
		select {
		case res = <-d.SynchronizeWithRemote(userID):
		case <-timeout:
			_ = d.Stop()
			fatal("cycle did not finish within %v", wait)
		case <-ctx.Done():
			_ = d.Stop()
			fatal("interrupted")
		}

		if jsonOutput {
			printJSON(map[string]any{
				"user_id": userID,
				"report":  res.Report,
				"error":   errString(res.Err),
			})
			if res.Err != nil {
				os.Exit(1)
			}
			return
		}

		printCycleReport(res.Report)
		if res.Err != nil {
			fmt.Printf("%s Sync failed after %v: %v\n", ui.RenderFail(ui.MarkFail), time.Since(start).Round(time.Millisecond), res.Err)
			os.Exit(1)
		}
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass(ui.MarkPass), time.Since(start).Round(time.Millisecond))
	},
}

func printCycleReport(r *daemon.CycleReport) {
	if r == nil {
		return
	}
	if r.Requests != nil {
		fmt.Printf("   Requests: %s\n", ui.Summary(
			"created", r.Requests.Created,
			"rejected", r.Requests.Rejected,
			"deferred", r.Requests.Deferred))
	}
	if r.Actions != nil {
		fmt.Printf("   Actions:  %s\n", ui.Summary(
			"done", r.Actions.Done,
			"failed", r.Actions.Failed,
			"re-queued", r.Actions.Superseded))
	}
	if r.Claim != nil {
		fmt.Printf("   Claims:   %s\n", ui.Summary(
			"claimed", len(r.Claim.Claimed),
			"refused", r.Claim.Failed))
	}
	if r.Fetch != nil {
		fmt.Printf("   Tasks:    %s\n", ui.Summary(
			"created", r.Fetch.Created,
			"updated", r.Fetch.Updated,
			"unchanged", r.Fetch.Unchanged,
			"recovered", r.Fetch.Recovered,
			"skipped", r.Fetch.Skipped))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func init() {
	syncCmd.Flags().Duration("wait", 0, "Give up if the cycle takes longer than this (0 waits indefinitely)")
	rootCmd.AddCommand(syncCmd)
}
