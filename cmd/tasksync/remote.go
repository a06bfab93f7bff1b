package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/termwork/tasksync/internal/dashboard"
	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "admin",
	Short:   "Serve the workflow RPC protocol",
}

var remoteServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a workflow remote over websocket RPC",
	Long: `Serve the websocket RPC protocol at /rpc.

With --memory (or no remote.url configured) an in-process memory remote is
served, optionally seeded with Ready tasks and process definitions. This is
useful to try tasksync without a workflow server:

  tasksync remote serve --memory --tasks 5 --process review --port 8620
  TASKSYNC_REMOTE_URL=ws://localhost:8620/rpc tasksync sync -u ann

Otherwise the configured remote is relayed, so several machines can share
one upstream connection.`,
	Run: func(cmd *cobra.Command, args []string) {
		memory, _ := cmd.Flags().GetBool("memory")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		seed, _ := cmd.Flags().GetInt("tasks")
		owners, _ := cmd.Flags().GetStringSlice("owners")
		processes, _ := cmd.Flags().GetStringSlice("process")

		var gw gateway.Gateway
		mode := "memory"
		if memory || cfg.Remote.URL == "" {
			mem := gateway.NewMemory()
			mem.DefineProcess(processes...)
			for i := 1; i <= seed; i++ {
				mem.AddTask(schema.Task{
					Name:   fmt.Sprintf("task-%d", i),
					Status: schema.StatusReady,
					InputVariables: schema.Variables{
						{Key: schema.VarComponentID, Value: fmt.Sprintf("c-%d", i)},
					},
				}, owners...)
			}
			gw = mem
		} else {
			client := gateway.NewClient(cfg.Remote.URL, &gateway.ClientOptions{
				Header: cfg.Remote.Header,
				Logger: logs.Logger("gateway"),
			})
			defer client.Close()
			gw = gateway.WithTimeout(client, cfg.Remote.Timeout)
			mode = "relay to " + cfg.Remote.URL
		}

		server := dashboard.NewServer(&dashboard.Config{
			Host:   host,
			Port:   port,
			Status: func() any { return map[string]any{"mode": mode} },
			Logger: logs.Logger("remote"),
		})
		server.Handle("/rpc", gateway.NewHandler(gw, logs.Logger("rpc")))
		if err := server.Start(); err != nil {
			fatal("failed to start server: %v", err)
		}

		fmt.Printf("%s Serving workflow remote (%s)\n", ui.RenderAccent("▶"), mode)
		fmt.Printf("   RPC endpoint: ws://%s/rpc\n", server.GetAddr())
		fmt.Printf("   Health check: http://%s/health\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	remoteServeCmd.Flags().Bool("memory", false, "Serve an in-process memory remote")
	remoteServeCmd.Flags().String("host", "localhost", "Host to bind")
	remoteServeCmd.Flags().IntP("port", "p", 8620, "Port to listen on")
	remoteServeCmd.Flags().Int("tasks", 0, "Seed the memory remote with this many Ready tasks")
	remoteServeCmd.Flags().StringSlice("owners", nil, "Potential owners of seeded tasks (default: anyone)")
	remoteServeCmd.Flags().StringSlice("process", nil, "Process definitions the memory remote accepts")
	remoteCmd.AddCommand(remoteServeCmd)
	rootCmd.AddCommand(remoteCmd)
}
