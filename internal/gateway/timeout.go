package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/termwork/tasksync/internal/schema"
)

// DefaultTimeout bounds each remote call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout returns a Gateway that runs every call of next under its own
// deadline. A call that hits the deadline fails with KindTimeout. A
// non-positive d uses DefaultTimeout.
func WithTimeout(next Gateway, d time.Duration) Gateway {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutGateway{next: next, timeout: d}
}

func (g *timeoutGateway) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return Wrap(op, KindTimeout, err)
	}
	return classify(op, err)
}

func (g *timeoutGateway) TaskByID(ctx context.Context, id int64) (*schema.Task, error) {
	var task *schema.Task
	err := g.do(ctx, OpTaskByID, func(ctx context.Context) error {
		var err error
		task, err = g.next.TaskByID(ctx, id)
		return err
	})
	return task, err
}

func (g *timeoutGateway) TasksOwnedByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error) {
	var out []schema.TaskSummary
	err := g.do(ctx, OpTasksOwned, func(ctx context.Context) error {
		var err error
		out, err = g.next.TasksOwnedByStatus(ctx, userID, statuses, locale)
		return err
	})
	return out, err
}

func (g *timeoutGateway) TasksAssignedAsPotentialOwnerByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error) {
	var out []schema.TaskSummary
	err := g.do(ctx, OpTasksPotential, func(ctx context.Context) error {
		var err error
		out, err = g.next.TasksAssignedAsPotentialOwnerByStatus(ctx, userID, statuses, locale)
		return err
	})
	return out, err
}

func (g *timeoutGateway) Claim(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpClaim, func(ctx context.Context) error { return g.next.Claim(ctx, id, userID) })
}

func (g *timeoutGateway) Complete(ctx context.Context, id int64, userID string, vars schema.Variables) error {
	return g.do(ctx, OpComplete, func(ctx context.Context) error { return g.next.Complete(ctx, id, userID, vars) })
}

func (g *timeoutGateway) Delegate(ctx context.Context, id int64, userID, targetUserID string) error {
	return g.do(ctx, OpDelegate, func(ctx context.Context) error { return g.next.Delegate(ctx, id, userID, targetUserID) })
}

func (g *timeoutGateway) Exit(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpExit, func(ctx context.Context) error { return g.next.Exit(ctx, id, userID) })
}

func (g *timeoutGateway) Fail(ctx context.Context, id int64, userID string, vars schema.Variables) error {
	return g.do(ctx, OpFail, func(ctx context.Context) error { return g.next.Fail(ctx, id, userID, vars) })
}

func (g *timeoutGateway) Forward(ctx context.Context, id int64, userID, targetUserID string) error {
	return g.do(ctx, OpForward, func(ctx context.Context) error { return g.next.Forward(ctx, id, userID, targetUserID) })
}

func (g *timeoutGateway) Release(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpRelease, func(ctx context.Context) error { return g.next.Release(ctx, id, userID) })
}

func (g *timeoutGateway) Resume(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpResume, func(ctx context.Context) error { return g.next.Resume(ctx, id, userID) })
}

func (g *timeoutGateway) Skip(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpSkip, func(ctx context.Context) error { return g.next.Skip(ctx, id, userID) })
}

func (g *timeoutGateway) Start(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpStart, func(ctx context.Context) error { return g.next.Start(ctx, id, userID) })
}

func (g *timeoutGateway) Stop(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpStop, func(ctx context.Context) error { return g.next.Stop(ctx, id, userID) })
}

func (g *timeoutGateway) Suspend(ctx context.Context, id int64, userID string) error {
	return g.do(ctx, OpSuspend, func(ctx context.Context) error { return g.next.Suspend(ctx, id, userID) })
}

func (g *timeoutGateway) Nominate(ctx context.Context, id int64, userID string, candidates []string) error {
	return g.do(ctx, OpNominate, func(ctx context.Context) error { return g.next.Nominate(ctx, id, userID, candidates) })
}

func (g *timeoutGateway) ContentByID(ctx context.Context, id int64) (*schema.Content, error) {
	var c *schema.Content
	err := g.do(ctx, OpContentByID, func(ctx context.Context) error {
		var err error
		c, err = g.next.ContentByID(ctx, id)
		return err
	})
	return c, err
}

func (g *timeoutGateway) AttachmentByID(ctx context.Context, id int64) (*schema.Content, error) {
	var c *schema.Content
	err := g.do(ctx, OpAttachmentByID, func(ctx context.Context) error {
		var err error
		c, err = g.next.AttachmentByID(ctx, id)
		return err
	})
	return c, err
}

func (g *timeoutGateway) StartProcess(ctx context.Context, processName string, params map[string]any) (*schema.ProcessInstance, error) {
	var pi *schema.ProcessInstance
	err := g.do(ctx, OpStartProcess, func(ctx context.Context) error {
		var err error
		pi, err = g.next.StartProcess(ctx, processName, params)
		return err
	})
	return pi, err
}
