package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
)

// Action verbs accepted by QueueAction. Verbs that need a target carry it
// after a colon: "delegate:bob", "forward:bob", "nominate:ann,bob".
const (
	VerbClaim    = "claim"
	VerbStart    = "start"
	VerbStop     = "stop"
	VerbRelease  = "release"
	VerbSuspend  = "suspend"
	VerbResume   = "resume"
	VerbSkip     = "skip"
	VerbExit     = "exit"
	VerbComplete = "complete"
	VerbFail     = "fail"
	VerbDelegate = "delegate"
	VerbForward  = "forward"
	VerbNominate = "nominate"
)

// Verbs lists every action verb in display order.
func Verbs() []string {
	return []string{
		VerbClaim, VerbStart, VerbStop, VerbRelease, VerbSuspend, VerbResume,
		VerbSkip, VerbExit, VerbComplete, VerbFail, VerbDelegate, VerbForward, VerbNominate,
	}
}

// Action is a parsed queued action.
type Action struct {
	Verb    string
	Targets []string
}

func (a Action) String() string {
	if len(a.Targets) == 0 {
		return a.Verb
	}
	return a.Verb + ":" + strings.Join(a.Targets, ",")
}

// ParseAction parses an action string.
func ParseAction(s string) (Action, error) {
	verb, arg, hasArg := strings.Cut(strings.TrimSpace(s), ":")
	verb = strings.ToLower(verb)

	var targets []string
	for _, t := range strings.Split(arg, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}

	switch verb {
	case VerbClaim, VerbStart, VerbStop, VerbRelease, VerbSuspend, VerbResume,
		VerbSkip, VerbExit, VerbComplete, VerbFail:
		if hasArg {
			return Action{}, fmt.Errorf("action %q takes no target", verb)
		}
		return Action{Verb: verb}, nil
	case VerbDelegate, VerbForward:
		if len(targets) != 1 {
			return Action{}, fmt.Errorf("action %q needs exactly one target user", verb)
		}
		return Action{Verb: verb, Targets: targets}, nil
	case VerbNominate:
		if len(targets) == 0 {
			return Action{}, fmt.Errorf("action %q needs at least one candidate", verb)
		}
		return Action{Verb: verb, Targets: targets}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", s)
}

// QueueAction implements Reconciler.QueueAction.
func (e *engine) QueueAction(ctx context.Context, userID string, taskID int64, action string) error {
	if userID == "" {
		return fmt.Errorf("queue action on task %d: user is required", taskID)
	}
	a, err := ParseAction(action)
	if err != nil {
		return err
	}
	batch := e.tasks.NewBatch()
	batch.QueueAction(taskID, userID, a.String())
	if err := batch.Commit(ctx); err != nil {
		return err
	}
	e.logger.Printf("Queued %s on task %d for %s", a, taskID, userID)
	return nil
}

// PushActions implements Reconciler.PushActions.
func (e *engine) PushActions(ctx context.Context, userID string) (*ActionReport, error) {
	report := &ActionReport{}

	queued, err := e.tasks.ListTasks(ctx, store.TaskFilter{ActionStatus: schema.ActionPending})
	if err != nil {
		return report, err
	}

	saveCtx := context.WithoutCancel(ctx)
	for _, task := range queued {
		if !task.ActionQueuedBy(userID) {
			continue
		}
		report.Attempted++

		outcome := schema.ActionDone
		a, err := ParseAction(task.Action)
		if err != nil {
			e.logger.Printf("Task %d: dropping action: %v", task.ID, err)
			outcome = schema.ActionFailed
		} else if err := e.apply(ctx, userID, task, a); err != nil {
			if !gateway.IsRejection(err) {
				return report, fmt.Errorf("failed to push %s on task %d: %w", a, task.ID, err)
			}
			e.logger.Printf("Task %d: %s rejected: %v", task.ID, a, err)
			outcome = schema.ActionFailed
		}

		resolved, err := e.tasks.ResolveAction(saveCtx, task.ID, task.ActionUser, task.Action, outcome)
		if err != nil {
			return report, err
		}
		if !resolved {
			e.logger.Printf("Task %d: %s was re-queued during the push, keeping the new action", task.ID, task.Action)
			report.Superseded++
			continue
		}
		report.Updated = append(report.Updated, task.ID)
		if outcome == schema.ActionDone {
			report.Done++
		} else {
			report.Failed++
		}
	}

	if report.Attempted > 0 {
		e.logger.Printf("Pushed %d actions for %s: %d done, %d failed", report.Attempted, userID, report.Done, report.Failed)
	}
	return report, nil
}

func (e *engine) apply(ctx context.Context, userID string, task *schema.LocalTask, a Action) error {
	id := task.ID
	switch a.Verb {
	case VerbClaim:
		return e.gw.Claim(ctx, id, userID)
	case VerbStart:
		return e.gw.Start(ctx, id, userID)
	case VerbStop:
		return e.gw.Stop(ctx, id, userID)
	case VerbRelease:
		return e.gw.Release(ctx, id, userID)
	case VerbSuspend:
		return e.gw.Suspend(ctx, id, userID)
	case VerbResume:
		return e.gw.Resume(ctx, id, userID)
	case VerbSkip:
		return e.gw.Skip(ctx, id, userID)
	case VerbExit:
		return e.gw.Exit(ctx, id, userID)
	case VerbComplete:
		return e.gw.Complete(ctx, id, userID, task.OutputVariables)
	case VerbFail:
		return e.gw.Fail(ctx, id, userID, task.OutputVariables)
	case VerbDelegate:
		return e.gw.Delegate(ctx, id, userID, a.Targets[0])
	case VerbForward:
		return e.gw.Forward(ctx, id, userID, a.Targets[0])
	case VerbNominate:
		return e.gw.Nominate(ctx, id, userID, a.Targets)
	}
	return fmt.Errorf("unknown action %q", a.Verb)
}
