package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/config"
	"github.com/termwork/tasksync/internal/export"
	"github.com/termwork/tasksync/internal/store"
	"github.com/termwork/tasksync/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	GroupID: "admin",
	Short:   "Manage the local database schema",
}

var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local tables (idempotent)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		database, err := store.Open(cfg.Database.Path)
		if err != nil {
			fatal("opening database: %v", err)
		}
		defer database.Close()

		if err := database.CreateSchema(ctx); err != nil {
			fatal("creating schema: %v", err)
		}
		fmt.Printf("%s Schema ready at %s\n", ui.RenderPass(ui.MarkPass), cfg.Database.Path)
	},
}

var schemaDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the local tables, losing cached tasks and queued requests",
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := ui.Confirm(
				"Drop the local task cache?",
				fmt.Sprintf("%s will lose every cached task and every REQUESTED process request.", cfg.Database.Path),
			)
			if err != nil {
				fatal("%v", err)
			}
			if !ok {
				fmt.Println("Aborted (use --yes in scripts)")
				return
			}
		}

		ctx := context.Background()
		database, err := store.Open(cfg.Database.Path)
		if err != nil {
			fatal("opening database: %v", err)
		}
		defer database.Close()

		if err := database.DropSchema(ctx); err != nil {
			fatal("dropping schema: %v", err)
		}
		fmt.Printf("%s Schema dropped\n", ui.RenderWarn(ui.MarkWarn))
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "admin",
	Short:   "Export the local cache as JSONL",
	Long: `Write every cached task and process request as one JSON record per line.

  tasksync export                    # to stdout
  tasksync export -o audit.jsonl     # atomically to a file
  tasksync export --owner ann --tasks-only`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		owner, _ := cmd.Flags().GetString("owner")
		tasksOnly, _ := cmd.Flags().GetBool("tasks-only")

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		opts := export.Options{Owner: owner, SkipRequests: tasksOnly}
		if output == "" || output == "-" {
			if _, err := export.Export(ctx, rt.tasks, rt.requests, os.Stdout, opts); err != nil {
				fatal("%v", err)
			}
			return
		}

		result, err := export.ExportFile(ctx, rt.tasks, rt.requests, output, opts)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Fprintf(os.Stderr, "%s Exported %d tasks and %d requests to %s\n",
			ui.RenderPass(ui.MarkPass), result.Tasks, result.Requests, output)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "admin",
	Short:   "Restore an export into the local cache",
	Long: `Restore tasks and process requests from a JSONL export.

Tasks overwrite cached copies unless --keep-existing is set. Requests are
only added; a request already in the cache is never replaced.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		keep, _ := cmd.Flags().GetBool("keep-existing")

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer rt.Close()

		result, err := export.ImportFile(ctx, rt.tasks, rt.requests, args[0], export.ImportOptions{
			DryRun:       dryRun,
			KeepExisting: keep,
		})
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(result)
			return
		}
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d tasks and %d requests\n", ui.RenderPass(ui.MarkPass), verb, result.TasksImported, result.RequestsImported)
		if result.TasksSkipped > 0 || result.RequestsSkipped > 0 {
			fmt.Printf("   Skipped: %d tasks, %d requests already cached\n", result.TasksSkipped, result.RequestsSkipped)
		}
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "admin",
	Short:   "Show or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged configuration",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		if err := config.Render(os.Stdout, cfg, format); err != nil {
			fatal("%v", err)
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Run: func(cmd *cobra.Command, args []string) {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		path := config.ProjectConfigPath()
		if global {
			path = config.GlobalConfigPath()
		}
		if path == "" {
			fatal("cannot determine config location")
		}
		if err := config.WriteDefault(path, force); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass(ui.MarkPass), path)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file paths",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			fmt.Printf("Explicit: %s\n", configPath)
			return
		}
		fmt.Printf("Global:  %s\n", config.GlobalConfigPath())
		fmt.Printf("Project: %s\n", config.ProjectConfigPath())
	},
}

func init() {
	schemaDropCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	schemaCmd.AddCommand(schemaInitCmd)
	schemaCmd.AddCommand(schemaDropCmd)
	rootCmd.AddCommand(schemaCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().String("owner", "", "Only this user's tasks and requests")
	exportCmd.Flags().Bool("tasks-only", false, "Leave process requests out")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().Bool("dry-run", false, "Parse and count without writing")
	importCmd.Flags().Bool("keep-existing", false, "Do not overwrite tasks already cached")
	rootCmd.AddCommand(importCmd)

	configShowCmd.Flags().String("format", config.FormatYAML, "Output format: yaml or toml")
	configInitCmd.Flags().Bool("global", false, "Write ~/.tasksync/config.yaml instead of the project file")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
