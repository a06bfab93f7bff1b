package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/config"
	"github.com/termwork/tasksync/internal/dashboard"
	"github.com/termwork/tasksync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run synchronization cycles on a schedule (foreground)",
	Long: `Run a synchronization cycle immediately and then every sync.interval.

While running, the daemon:
  - serves a status websocket on dashboard.host:dashboard.port (/ws, /health)
  - reloads sync.interval and sync.claim_limit when the config file changes

A datastore failure halts further cycles until the daemon is restarted.`,
	Run: func(cmd *cobra.Command, args []string) {
		userID := requireUser()
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

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

		if cfg.Dashboard.Enabled && !noDashboard {
			snapshot := dashboard.DaemonSnapshot(d, userID)
			server := dashboard.NewServer(&dashboard.Config{
				Host:   cfg.Dashboard.Host,
				Port:   cfg.Dashboard.Port,
				Status: func() any { return snapshot() },
				Logger: logs.Logger("dashboard"),
			})
			handler := dashboard.NewHandler(server, snapshot, logs.Logger("dashboard"))
			if err := server.Start(); err != nil {
				fatal("starting dashboard: %v", err)
			}
			defer server.Stop()

			events, unsubscribe := d.Subscribe()
			defer unsubscribe()
			go handler.Follow(ctx, events)

			fmt.Printf("   Dashboard: ws://%s/ws\n", server.GetAddr())
		}

		if path := watchedConfigPath(); path != "" {
			w, err := config.NewWatcher(path, 0, func(c *config.Config) {
				d.UpdateSchedule(c.Sync.Interval, c.Sync.ClaimLimit)
			}, logs.Logger("config"))
			if err != nil {
				fatal("watching config: %v", err)
			}
			if err := w.Start(); err != nil {
				fatal("watching config: %v", err)
			}
			defer w.Stop()
			fmt.Printf("   Watching: %s\n", path)
		}

		fmt.Printf("%s Starting sync daemon for %s (every %v)\n", ui.RenderAccent("▶"), userID, cfg.Sync.Interval)
		fmt.Printf("   Cache: %s\n", cfg.Database.Path)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

// watchedConfigPath returns the file whose edits should reach a running
// daemon: --config if given, otherwise the project file if it exists.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := config.ProjectConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func init() {
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not start the status websocket server")
	rootCmd.AddCommand(daemonCmd)
}
