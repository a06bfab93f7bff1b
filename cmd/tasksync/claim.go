package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/reconcile"
	"github.com/termwork/tasksync/internal/ui"
)

var claimCmd = &cobra.Command{
	Use:     "claim",
	GroupID: "work",
	Short:   "Claim tasks the user may work on",
	Long: `Claim up to --limit tasks the user is a potential owner of, then fetch
so the claimed tasks appear in the local cache.

Tasks another user claims first are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		userID := requireUser()
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			fatal("--limit must be positive")
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		report, err := rt.engine.ClaimBatch(ctx, userID, limit)
		if err != nil {
			fatal("claiming: %v", err)
		}
		fetch, err := rt.engine.FetchTasks(ctx, userID)
		if err != nil {
			fatal("fetching claimed tasks: %v", err)
		}

		if jsonOutput {
			printJSON(map[string]any{"claim": report, "fetch": fetch})
			return
		}
		if len(report.Claimed) == 0 {
			fmt.Printf("%s Nothing claimed (%d candidates)\n", ui.RenderWarn(ui.MarkWarn), report.Candidates)
			return
		}
		ids := make([]string, len(report.Claimed))
		for i, id := range report.Claimed {
			ids[i] = strconv.FormatInt(id, 10)
		}
		fmt.Printf("%s Claimed %d of %d candidates: %s\n", ui.RenderPass(ui.MarkPass), len(report.Claimed), report.Candidates, strings.Join(ids, ", "))
	},
}

var actionCmd = &cobra.Command{
	Use:     "action <task-id> <action>",
	GroupID: "work",
	Short:   "Queue an action on a cached task",
	Long: `Queue an action against a cached task. The action is pushed to the remote
by the next cycle (or immediately with --push).

Actions: ` + strings.Join(reconcile.Verbs(), ", ") + `
delegate and forward take one target user, nominate one or more:

  tasksync action 42 complete
  tasksync action 42 delegate:bob
  tasksync action 42 nominate:bob,carl --push`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		push, _ := cmd.Flags().GetBool("push")

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal("invalid task id %q", args[0])
		}
		action, err := reconcile.ParseAction(args[1])
		if err != nil {
			fatal("%v", err)
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		user := requireUser()
		if err := rt.engine.QueueAction(ctx, user, id, action.String()); err != nil {
			fatal("queueing action: %v", err)
		}
		if !push {
			if jsonOutput {
				printJSON(map[string]any{"task_id": id, "action": action.String(), "queued": true})
				return
			}
			fmt.Printf("%s Queued %s on task %d\n", ui.RenderPass(ui.MarkPass), action, id)
			return
		}

		report, err := rt.engine.PushActions(ctx, user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Push failed, action stays queued: %v\n", ui.RenderWarn(ui.MarkWarn), err)
			os.Exit(1)
		}
		task, err := rt.tasks.GetByID(ctx, id)
		if err != nil {
			fatal("reading task %d: %v", id, err)
		}
		if jsonOutput {
			printJSON(map[string]any{"push": report, "task": task})
			return
		}
		fmt.Printf("%s Task %d: %s %s\n", ui.RenderAccent("→"), id, task.Action, ui.RenderActionStatus(task.ActionStatus))
	},
}

func init() {
	claimCmd.Flags().IntP("limit", "n", 1, "Maximum number of tasks to claim")
	actionCmd.Flags().Bool("push", false, "Push queued actions to the remote right away")
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(actionCmd)
}
