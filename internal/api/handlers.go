package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/anvilops/flowline/internal/service"
	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/pkg/schema"
)

// --- Workflows ---

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req service.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	wf, err := s.workflows.CreateWorkflow(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkflowFilter{
		Tag:    r.URL.Query().Get("tag"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active := v == "true"
		filter.Active = &active
	}
	wfs, err := s.workflows.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": wfs, "count": len(wfs)})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflows.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var update store.WorkflowUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	wf, err := s.workflows.UpdateWorkflow(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.DeleteWorkflow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Input    map[string]any `json:"input,omitempty"`
		TenantID string         `json:"tenant_id,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
			return
		}
	}

	exec, err := s.workflows.ExecuteWorkflow(r.Context(), service.ExecuteRequest{
		Workflow:      chi.URLParam(r, "id"),
		Input:         body.Input,
		TriggerType:   schema.TriggerAPI,
		TriggerSource: r.RemoteAddr,
		TenantID:      body.TenantID,
	})
	if err != nil {
		// A failed execution still produced a persisted record; return both.
		if exec != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"execution": exec,
				"error":     err.Error(),
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (s *Server) handleExecutionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.workflows.CountExecutionsByStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// --- Executions ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := store.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		TenantID:   r.URL.Query().Get("tenant_id"),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := schema.ExecutionStatus(v)
		filter.Status = &status
	}
	execs, err := s.workflows.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.workflows.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleListExecutionSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.workflows.ListExecutionSteps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps, "count": len(steps)})
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.workflows.CancelExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- Scheduled triggers ---

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	trig, err := s.workflows.CreateScheduledTrigger(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trig)
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	trigs, err := s.workflows.ListScheduledTriggers(r.Context(), enabledOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggers": trigs, "count": len(trigs)})
}

func (s *Server) handleUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	if body.Enabled == nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "enabled is required"))
		return
	}
	if err := s.workflows.SetTriggerEnabled(r.Context(), chi.URLParam(r, "id"), *body.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.DeleteScheduledTrigger(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
