package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sitehq/girder/model"
)

// ScheduleAnalysis is the outcome of a critical-path calculation over one
// project. All quantities are offsets from the project start.
type ScheduleAnalysis struct {
	ProjectID       string                     `json:"project_id"`
	ProjectDuration time.Duration              `json:"project_duration"`
	Tasks           map[string]model.CPMResult `json:"tasks"`
	// CriticalPath lists the zero-float tasks in schedule order.
	CriticalPath []string `json:"critical_path"`
}

// CriticalPath runs the classical forward/backward pass over a project's
// tasks and dependencies. The project lock is held so the pass sees a
// consistent snapshot. Tasks use their estimated duration; lag shifts the
// constraint by its signed amount, with early starts clamped at the project
// start.
func (s *Service) CriticalPath(ctx context.Context, projectID string) (ScheduleAnalysis, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	tasks, err := s.store.TasksByProject(ctx, projectID)
	if err != nil {
		return ScheduleAnalysis{}, err
	}
	deps, err := s.store.DependenciesByProject(ctx, projectID)
	if err != nil {
		return ScheduleAnalysis{}, err
	}

	analysis := ScheduleAnalysis{
		ProjectID: projectID,
		Tasks:     make(map[string]model.CPMResult, len(tasks)),
	}
	if len(tasks) == 0 {
		return analysis, nil
	}

	byID := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, d := range deps {
		if _, ok := byID[d.PredecessorID]; !ok {
			return ScheduleAnalysis{}, model.NewMalformedGraphError(
				fmt.Sprintf("dependency %q references unknown task %q", d.ID, d.PredecessorID))
		}
		if _, ok := byID[d.SuccessorID]; !ok {
			return ScheduleAnalysis{}, model.NewMalformedGraphError(
				fmt.Sprintf("dependency %q references unknown task %q", d.ID, d.SuccessorID))
		}
	}

	order, err := topoOrder(tasks, deps)
	if err != nil {
		return ScheduleAnalysis{}, err
	}

	incoming := make(map[string][]model.Dependency)
	outgoing := make(map[string][]model.Dependency)
	for _, d := range deps {
		incoming[d.SuccessorID] = append(incoming[d.SuccessorID], d)
		outgoing[d.PredecessorID] = append(outgoing[d.PredecessorID], d)
	}

	// Forward pass: earliest start honoring every incoming constraint,
	// clamped at the project start.
	es := make(map[string]time.Duration, len(tasks))
	ef := make(map[string]time.Duration, len(tasks))
	for _, taskID := range order {
		dur := byID[taskID].EstimatedDuration
		var earliest time.Duration
		for _, d := range incoming[taskID] {
			var bound time.Duration
			switch d.Type {
			case model.FinishToStart:
				bound = ef[d.PredecessorID] + d.Lag
			case model.StartToStart:
				bound = es[d.PredecessorID] + d.Lag
			case model.FinishToFinish:
				bound = ef[d.PredecessorID] + d.Lag - dur
			case model.StartToFinish:
				bound = es[d.PredecessorID] + d.Lag - dur
			}
			if bound > earliest {
				earliest = bound
			}
		}
		es[taskID] = earliest
		ef[taskID] = earliest + dur
	}

	var projectFinish time.Duration
	for _, taskID := range order {
		if ef[taskID] > projectFinish {
			projectFinish = ef[taskID]
		}
	}

	// Backward pass in reverse order: latest finish honoring every outgoing
	// constraint, starting from the project finish.
	lf := make(map[string]time.Duration, len(tasks))
	ls := make(map[string]time.Duration, len(tasks))
	for i := len(order) - 1; i >= 0; i-- {
		taskID := order[i]
		dur := byID[taskID].EstimatedDuration
		latest := projectFinish
		for _, d := range outgoing[taskID] {
			var bound time.Duration
			switch d.Type {
			case model.FinishToStart:
				bound = ls[d.SuccessorID] - d.Lag
			case model.StartToStart:
				bound = ls[d.SuccessorID] - d.Lag + dur
			case model.FinishToFinish:
				bound = lf[d.SuccessorID] - d.Lag
			case model.StartToFinish:
				bound = lf[d.SuccessorID] - d.Lag + dur
			}
			if bound < latest {
				latest = bound
			}
		}
		lf[taskID] = latest
		ls[taskID] = latest - dur
	}

	for _, taskID := range order {
		result := model.CPMResult{
			EarlyStart:  es[taskID],
			EarlyFinish: ef[taskID],
			LateStart:   ls[taskID],
			LateFinish:  lf[taskID],
			Float:       ls[taskID] - es[taskID],
		}
		analysis.Tasks[taskID] = result
		if result.Float == 0 {
			analysis.CriticalPath = append(analysis.CriticalPath, taskID)
		}
	}
	analysis.ProjectDuration = projectFinish
	return analysis, nil
}

// topoOrder produces a deterministic topological order via Kahn's algorithm,
// breaking ties by task ID. A starved queue before all tasks are placed means
// the stored graph contains a cycle, which the insert-time check should have
// made impossible.
func topoOrder(tasks []model.Task, deps []model.Dependency) ([]string, error) {
	indegree := make(map[string]int, len(tasks))
	successors := make(map[string][]string)
	for _, t := range tasks {
		indegree[t.ID] = 0
	}
	for _, d := range deps {
		indegree[d.SuccessorID]++
		successors[d.PredecessorID] = append(successors[d.PredecessorID], d.SuccessorID)
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var freed []string
		for _, succ := range successors[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				freed = append(freed, succ)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
	}

	if len(order) != len(tasks) {
		return nil, model.NewMalformedGraphError(
			fmt.Sprintf("project graph contains a cycle among %d of %d tasks",
				len(tasks)-len(order), len(tasks)))
	}
	return order, nil
}
