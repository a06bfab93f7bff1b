package main

import (
	"context"
	"fmt"

	"github.com/termwork/tasksync/internal/daemon"
	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/reconcile"
	"github.com/termwork/tasksync/internal/store"
)

// runtime bundles the stores, remote and engine a command works with.
type runtime struct {
	db       *store.DB
	tasks    *store.TaskStore
	requests *store.RequestStore
	remote   gateway.Gateway
	client   *gateway.Client
	engine   reconcile.Reconciler
}

// openRuntime opens the local database (creating the schema if needed) and
// connects the configured remote. An empty remote URL falls back to an
// empty in-process memory remote.
func openRuntime(ctx context.Context) (*runtime, error) {
	database, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.CreateSchema(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	rt := &runtime{
		db:       database,
		tasks:    store.NewTaskStore(database),
		requests: store.NewRequestStore(database),
	}

	var base gateway.Gateway
	if cfg.Remote.URL != "" {
		rt.client = gateway.NewClient(cfg.Remote.URL, &gateway.ClientOptions{
			Header: cfg.Remote.Header,
			Logger: logs.Logger("gateway"),
		})
		base = rt.client
	} else {
		logs.Logger("gateway").Println("No remote.url configured, using an empty memory remote")
		base = gateway.NewMemory()
	}
	rt.remote = gateway.WithTimeout(base, cfg.Remote.Timeout)

	rt.engine = reconcile.New(rt.remote, rt.tasks, rt.requests, reconcile.Options{
		Locale: cfg.LanguageTag().String(),
		Logger: logs.Logger("sync"),
	})
	return rt, nil
}

// newDaemon builds the sync facade from the loaded config.
func (rt *runtime) newDaemon() (*daemon.Daemon, error) {
	return daemon.NewWithConfig(rt.engine, rt.requests, &daemon.Config{
		UserID:     cfg.User,
		Interval:   cfg.Sync.Interval,
		ClaimLimit: cfg.Sync.ClaimLimit,
		Workers:    cfg.Sync.Workers,
		Logger:     logs.Logger("daemon"),
	})
}

func (rt *runtime) Close() error {
	if rt.client != nil {
		_ = rt.client.Close()
	}
	return rt.db.Close()
}

// requireUser returns the configured user or exits.
func requireUser() string {
	if cfg.User == "" {
		fatal("no user configured (set user in config, TASKSYNC_USER, or --user)")
	}
	return cfg.User
}
