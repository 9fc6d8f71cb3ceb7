package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitehq/girder/internal/graph"
	"github.com/sitehq/girder/model"
)

func handleTaskCreate(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")

		var body struct {
			ID                string        `json:"id"`
			Name              string        `json:"name"`
			PlannedStart      time.Time     `json:"planned_start"`
			PlannedEnd        time.Time     `json:"planned_end"`
			EstimatedDuration time.Duration `json:"estimated_duration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		task, err := svc.CreateTask(r.Context(), model.Task{
			ID:                body.ID,
			ProjectID:         projectID,
			Name:              body.Name,
			PlannedStart:      body.PlannedStart,
			PlannedEnd:        body.PlannedEnd,
			EstimatedDuration: body.EstimatedDuration,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, task)
	}
}

func handleDependencyAdd(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := model.ActorFrom(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing actor"))
			return
		}
		projectID := chi.URLParam(r, "projectID")

		var body struct {
			PredecessorID string        `json:"predecessor_task_id"`
			SuccessorID   string        `json:"successor_task_id"`
			Type          string        `json:"type"`
			Lag           time.Duration `json:"lag"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		dep, err := svc.AddDependency(r.Context(), actor, graph.AddDependencyRequest{
			ProjectID:     projectID,
			PredecessorID: body.PredecessorID,
			SuccessorID:   body.SuccessorID,
			Type:          body.Type,
			Lag:           body.Lag,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, dep)
	}
}

func handleDependencyList(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps, err := svc.Dependencies(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"dependencies": deps})
	}
}

func handleDependencyRemove(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := model.ActorFrom(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing actor"))
			return
		}

		if err := svc.RemoveDependency(r.Context(), actor, chi.URLParam(r, "dependencyID")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

func handleTaskReadiness(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness, err := svc.Readiness(r.Context(), chi.URLParam(r, "taskID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, readiness)
	}
}

func handleTaskStart(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := model.ActorFrom(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing actor"))
			return
		}

		task, err := svc.StartTask(r.Context(), actor, chi.URLParam(r, "taskID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, task)
	}
}

func handleTaskComplete(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := model.ActorFrom(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing actor"))
			return
		}

		task, newlyReady, err := svc.CompleteTask(r.Context(), actor, chi.URLParam(r, "taskID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"task":        task,
			"newly_ready": newlyReady,
		})
	}
}

func handleOverrideGrant(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := model.ActorFrom(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing actor"))
			return
		}

		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		override, err := svc.GrantOverride(r.Context(), actor, chi.URLParam(r, "taskID"), body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, override)
	}
}

func handleTaskAudit(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.TaskAudit(r.Context(), chi.URLParam(r, "taskID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

func handleCriticalPath(svc *graph.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysis, err := svc.CriticalPath(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, analysis)
	}
}
