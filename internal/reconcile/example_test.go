package reconcile_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/reconcile"
	"github.com/termwork/tasksync/internal/store"
)

// This example runs one full cycle against a remote server.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	ctx := context.Background()

	database, err := store.Open(".tasksync/tasks.db")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := database.CreateSchema(ctx); err != nil {
		log.Fatal(err)
	}

	client := gateway.NewClient("ws://localhost:8600/rpc", nil)
	defer client.Close()

	r := reconcile.New(
		gateway.WithTimeout(client, 30*time.Second),
		store.NewTaskStore(database),
		store.NewRequestStore(database),
		reconcile.Options{Locale: "en-US"},
	)

	if _, err := r.FulfillRequests(ctx); err != nil {
		log.Fatal(err)
	}
	if _, err := r.PushActions(ctx, "ann"); err != nil {
		log.Fatal(err)
	}
	report, err := r.FetchTasks(ctx, "ann")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%d tasks listed, %d recovered\n", report.Remote, report.Recovered)
}

// This example queues an action for the next push.
func ExampleReconciler_QueueAction() {
	database, err := store.Open(".tasksync/tasks.db")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	r := reconcile.New(gateway.NewMemory(), store.NewTaskStore(database), store.NewRequestStore(database), reconcile.Options{})

	if err := r.QueueAction(context.Background(), "ann", 16, "delegate:bob"); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Queued")
}
