package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitehq/girder/model"
)

// BlockingReason names one unsatisfied dependency holding a task back.
type BlockingReason struct {
	DependencyID  string               `json:"dependency_id"`
	PredecessorID string               `json:"predecessor_task_id"`
	Type          model.DependencyType `json:"type"`
	Detail        string               `json:"detail"`
}

// Readiness is the derived gate state of a task at one instant. It is never
// persisted; a task with no incoming edges is always ready.
type Readiness struct {
	TaskID     string           `json:"task_id"`
	Ready      bool             `json:"ready"`
	Overridden bool             `json:"overridden"`
	Reasons    []BlockingReason `json:"reasons,omitempty"`
}

// Readiness evaluates whether a task may start now. Only start-gating
// relations (finish_to_start, start_to_start) participate; an active override
// exempts the task from every veto but the unsatisfied reasons are still
// reported.
func (s *Service) Readiness(ctx context.Context, taskID string) (Readiness, error) {
	return s.evaluate(ctx, taskID, true)
}

// CanFinish evaluates whether a task may complete now. Only finish-gating
// relations (finish_to_finish, start_to_finish) participate.
func (s *Service) CanFinish(ctx context.Context, taskID string) (Readiness, error) {
	return s.evaluate(ctx, taskID, false)
}

func (s *Service) evaluate(ctx context.Context, taskID string, startGate bool) (Readiness, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return Readiness{}, err
	}

	incoming, err := s.store.Incoming(ctx, taskID)
	if err != nil {
		return Readiness{}, err
	}

	now := s.clock()
	var reasons []BlockingReason
	for _, dep := range incoming {
		if dep.Type.GatesStart() != startGate {
			continue
		}
		pred, err := s.store.GetTask(ctx, dep.PredecessorID)
		if err != nil {
			return Readiness{}, err
		}
		if detail := unsatisfied(dep, pred, now); detail != "" {
			reasons = append(reasons, BlockingReason{
				DependencyID:  dep.ID,
				PredecessorID: dep.PredecessorID,
				Type:          dep.Type,
				Detail:        detail,
			})
		}
	}

	result := Readiness{TaskID: taskID, Ready: len(reasons) == 0, Reasons: reasons}
	if !result.Ready {
		if _, ok, err := s.store.ActiveOverride(ctx, taskID); err != nil {
			return Readiness{}, err
		} else if ok {
			result.Ready = true
			result.Overridden = true
		}
	}
	return result, nil
}

// unsatisfied returns a human-readable reason when the dependency still gates
// its successor, or "" when it is satisfied. The predecessor event (start or
// finish, by relation type) must have occurred regardless of lag sign, and
// with a positive lag the required wall-clock offset after the event must
// also have elapsed.
func unsatisfied(dep model.Dependency, pred model.Task, now time.Time) string {
	var event *time.Time
	var eventName string
	switch dep.Type {
	case model.FinishToStart, model.FinishToFinish:
		event = pred.CompletedAt
		eventName = "completed"
	case model.StartToStart, model.StartToFinish:
		event = pred.ActualStart
		eventName = "started"
	}

	if event == nil {
		return fmt.Sprintf("predecessor %q has not %s", pred.ID, eventName)
	}
	if dep.Lag > 0 {
		if gateAt := event.Add(dep.Lag); now.Before(gateAt) {
			return fmt.Sprintf("lag of %s after predecessor %q %s has not elapsed (gate opens %s)",
				dep.Lag, pred.ID, eventName, gateAt.Format(time.RFC3339))
		}
	}
	return ""
}

func blockedError(taskID string, reasons []BlockingReason) error {
	details := make([]string, len(reasons))
	for i, r := range reasons {
		details[i] = r.Detail
	}
	return model.NewTaskBlockedError(
		fmt.Sprintf("task %q is blocked: %s", taskID, strings.Join(details, "; ")))
}
