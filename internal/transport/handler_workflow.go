package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitehq/girder/internal/workflow"
	"github.com/sitehq/girder/model"
)

func entityFromURL(r *http.Request) (model.EntityType, string, error) {
	entityType, err := model.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		return "", "", err
	}
	return entityType, chi.URLParam(r, "entityID"), nil
}

func handleInstanceCreate(executor *workflow.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType, entityID, err := entityFromURL(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		inst, err := executor.CreateInstance(r.Context(), entityType, entityID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, inst)
	}
}

func handleTransition(executor *workflow.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := model.ActorFrom(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing actor"))
			return
		}
		entityType, entityID, err := entityFromURL(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		var body struct {
			ToState         string         `json:"to_state"`
			ExpectedVersion int            `json:"expected_version"`
			Reason          string         `json:"reason"`
			Attributes      map[string]any `json:"attributes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.ToState == "" {
			WriteError(w, model.NewBadRequestError("to_state is required"))
			return
		}

		inst, err := executor.Transition(r.Context(), actor, workflow.TransitionRequest{
			EntityType:      entityType,
			EntityID:        entityID,
			ToState:         body.ToState,
			ExpectedVersion: body.ExpectedVersion,
			Reason:          body.Reason,
			Attributes:      body.Attributes,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceGet(executor *workflow.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType, entityID, err := entityFromURL(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		inst, err := executor.Get(r.Context(), entityType, entityID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceAudit(executor *workflow.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType, entityID, err := entityFromURL(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		entries, err := executor.AuditTrail(r.Context(), entityType, entityID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}
