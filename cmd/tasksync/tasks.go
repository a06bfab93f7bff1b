package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
	"github.com/termwork/tasksync/internal/ui"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: "work",
	Short:   "List tasks in the local cache",
	Long: `List cached tasks. By default only the configured user's open tasks are
shown; --all lists every cached task regardless of owner and status.

Examples:
  tasksync tasks
  tasksync tasks --status Reserved,InProgress
  tasksync tasks --owner bob --component c-17
  tasksync tasks --all --json`,
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")
		statuses, _ := cmd.Flags().GetStringSlice("status")
		component, _ := cmd.Flags().GetString("component")
		pending, _ := cmd.Flags().GetBool("pending")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		filter := store.TaskFilter{
			Owner:       owner,
			Statuses:    statuses,
			ComponentID: component,
			Limit:       limit,
		}
		if !all {
			if filter.Owner == "" {
				filter.Owner = requireUser()
			}
			if len(filter.Statuses) == 0 {
				filter.Statuses = schema.OpenStatuses()
				filter.IncludeUnknown = true
			}
		}
		if pending {
			filter.ActionStatus = schema.ActionPending
		}

		tasks, err := rt.tasks.ListTasks(ctx, filter)
		if err != nil {
			fatal("listing tasks: %v", err)
		}

		if jsonOutput {
			if tasks == nil {
				tasks = []*schema.LocalTask{}
			}
			printJSON(tasks)
			return
		}
		if len(tasks) == 0 {
			fmt.Println(ui.RenderMuted("No tasks"))
			return
		}

		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, []string{
				strconv.FormatInt(t.ID, 10),
				t.Name,
				ui.RenderStatus(t.Status),
				t.Owner,
				t.ComponentName,
				actionCell(t),
				t.UpdatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		if err := ui.Table(os.Stdout, []string{"ID", "NAME", "STATUS", "OWNER", "COMPONENT", "ACTION", "UPDATED"}, rows); err != nil {
			fatal("%v", err)
		}
	},
}

func actionCell(t *schema.LocalTask) string {
	if t.Action == "" {
		return ui.RenderActionStatus("")
	}
	return strings.TrimSpace(t.Action + " " + ui.RenderActionStatus(t.ActionStatus))
}

func init() {
	tasksCmd.Flags().String("owner", "", "Filter by owner (default: configured user)")
	tasksCmd.Flags().StringSlice("status", nil, "Filter by status (comma separated)")
	tasksCmd.Flags().String("component", "", "Filter by terminology component id")
	tasksCmd.Flags().Bool("pending", false, "Only tasks with a queued action not yet pushed")
	tasksCmd.Flags().Bool("all", false, "List every cached task")
	tasksCmd.Flags().Int("limit", 0, "Maximum number of tasks (0 = no limit)")
	rootCmd.AddCommand(tasksCmd)
}
