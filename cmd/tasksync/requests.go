package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
	"github.com/termwork/tasksync/internal/ui"
)

var requestsCmd = &cobra.Command{
	Use:     "requests",
	GroupID: "work",
	Short:   "Manage process-instance creation requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List process-instance creation requests",
	Long: `List requests recorded locally, oldest first.

--since accepts a timestamp, a duration, or a natural phrase:
  tasksync requests list --since 2026-03-01T00:00:00Z
  tasksync requests list --since 48h
  tasksync requests list --since "last monday"
  tasksync requests list --stale`,
	Run: func(cmd *cobra.Command, args []string) {
		sinceStr, _ := cmd.Flags().GetString("since")
		stale, _ := cmd.Flags().GetBool("stale")
		statuses, _ := cmd.Flags().GetStringSlice("status")
		mine, _ := cmd.Flags().GetBool("mine")

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		now := time.Now()
		filter := store.RequestFilter{}
		for _, s := range statuses {
			filter.Statuses = append(filter.Statuses, schema.RequestStatus(strings.ToUpper(s)))
		}
		if sinceStr != "" {
			since, err := parseSince(sinceStr, now)
			if err != nil {
				fatal("%v", err)
			}
			filter.Since = since
		}
		if stale {
			filter.Statuses = []schema.RequestStatus{schema.RequestRequested}
			filter.Before = now.Add(-cfg.Sync.StaleAfter)
		}
		if mine {
			filter.UserID = requireUser()
		}

		reqs, err := rt.requests.ListRequests(ctx, filter)
		if err != nil {
			fatal("listing requests: %v", err)
		}

		if jsonOutput {
			if reqs == nil {
				reqs = []*schema.ProcessInstanceCreationRequest{}
			}
			printJSON(reqs)
			return
		}
		if len(reqs) == 0 {
			fmt.Println(ui.RenderMuted("No requests"))
			return
		}

		rows := make([][]string, 0, len(reqs))
		for _, r := range reqs {
			status := ui.RenderRequestStatus(r.Status)
			if r.IsStale(now, cfg.Sync.StaleAfter) {
				status += " " + ui.RenderWarn("(stale)")
			}
			rows = append(rows, []string{
				strconv.FormatInt(r.ID, 10),
				r.ProcessName,
				r.UserID,
				status,
				r.WfID,
				r.RequestTime.Local().Format("2006-01-02 15:04"),
				r.SyncMessage,
			})
		}
		if err := ui.Table(os.Stdout, []string{"ID", "PROCESS", "USER", "STATUS", "WORKFLOW", "REQUESTED", "MESSAGE"}, rows); err != nil {
			fatal("%v", err)
		}
	},
}

var requestsCreateCmd = &cobra.Command{
	Use:   "create <process> [key=value...]",
	Short: "Record a request to start a process instance",
	Long: `Record a request to start a remote process instance and run a cycle.

The request is stored as REQUESTED before anything is sent, so it survives
an unreachable remote and is retried by later cycles. Values are parsed as
JSON when possible (numbers, booleans, quoted strings) and kept as plain
strings otherwise.

Examples:
  tasksync requests create review componentId=c-17 priority=2
  tasksync requests create onboarding --component c-17 --no-sync`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID := requireUser()
		component, _ := cmd.Flags().GetString("component")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		params, err := parseParams(args[1:])
		if err != nil {
			fatal("%v", err)
		}
		if component != "" {
			params[schema.VarComponentID] = component
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		req := schema.NewRequest(args[0], userID, params)
		req.ComponentID = component

		if noSync {
			if err := rt.requests.Save(ctx, req); err != nil {
				fatal("saving request: %v", err)
			}
		} else {
			d, err := rt.newDaemon()
			if err != nil {
				fatal("creating daemon: %v", err)
			}
			defer d.Stop()

			results, err := d.RequestProcessInstanceCreation(ctx, req)
			if err != nil {
				fatal("saving request: %v", err)
			}
			if res := <-results; res.Err != nil {
				fmt.Fprintf(os.Stderr, "%s Cycle failed, request stays queued: %v\n", ui.RenderWarn(ui.MarkWarn), res.Err)
			}
			if latest, err := rt.requests.GetByID(ctx, req.ID); err == nil {
				req = latest
			}
		}

		if jsonOutput {
			printJSON(req)
			return
		}
		fmt.Printf("%s Request %d for %s: %s\n", ui.RenderPass(ui.MarkPass), req.ID, req.ProcessName, ui.RenderRequestStatus(req.Status))
		if req.WfID != "" {
			fmt.Printf("   Workflow: %s\n", req.WfID)
		}
		if req.SyncMessage != "" {
			fmt.Printf("   Message: %s\n", req.SyncMessage)
		}
	},
}

// parseSince accepts RFC3339, a Go duration ("48h" meaning 48h ago) or a
// natural-language phrase ("yesterday", "last monday").
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", s)
	}
	return r.Time, nil
}

// parseParams turns key=value arguments into process parameters.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", arg)
		}
		var v any
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil || dec.More() {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}

func init() {
	requestsListCmd.Flags().String("since", "", "Only requests made at or after this time")
	requestsListCmd.Flags().Bool("stale", false, "Only requests still pending after sync.stale_after")
	requestsListCmd.Flags().StringSlice("status", nil, "Filter by status (REQUESTED, CREATED, REJECTED)")
	requestsListCmd.Flags().Bool("mine", false, "Only the configured user's requests")

	requestsCreateCmd.Flags().String("component", "", "Terminology component id for the new process")
	requestsCreateCmd.Flags().Bool("no-sync", false, "Only record the request; the next cycle sends it")

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsCreateCmd)
	rootCmd.AddCommand(requestsCmd)
}
