// Command tasksync keeps a local cache of workflow tasks in step with a
// remote workflow server.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/config"
	"github.com/termwork/tasksync/internal/logging"
	"github.com/termwork/tasksync/internal/ui"
)

var version = "dev"

var (
	configPath string
	userFlag   string
	dbFlag     string
	remoteFlag string
	jsonOutput bool

	cfg  *config.Config
	logs *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:           "tasksync",
	Short:         "Synchronize workflow tasks with a local cache",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `tasksync mirrors the tasks a user owns on a remote workflow server into a
local SQLite cache, pushes queued task actions back, and fulfils queued
requests to start new process instances.

Configuration is read from ~/.tasksync/config.yaml and ./.tasksync/config.yaml
(or --config), with TASKSYNC_* environment overrides.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if userFlag != "" {
			loaded.User = userFlag
		}
		if dbFlag != "" {
			loaded.Database.Path = dbFlag
		}
		if remoteFlag != "" {
			loaded.Remote.URL = remoteFlag
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logs, err = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		if jsonOutput {
			ui.DisableColor()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
		&cobra.Group{ID: "work", Title: "Working with tasks:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: ~/.tasksync/config.yaml, ./.tasksync/config.yaml)")
	flags.StringVarP(&userFlag, "user", "u", "", "User to act as (overrides config)")
	flags.StringVar(&dbFlag, "db", "", "Local database path (overrides config)")
	flags.StringVar(&remoteFlag, "remote", "", "Remote RPC URL, ws:// or wss:// (overrides config)")
	flags.BoolVar(&jsonOutput, "json", false, "Output JSON")
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encoding JSON: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
