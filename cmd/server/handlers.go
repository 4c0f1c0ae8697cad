package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"plan-agent/internal/app"
	"plan-agent/pkg/execution"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/plan"
	"plan-agent/pkg/planner"
)

// API carries the wired engine into the HTTP handlers.
type API struct {
	config ServerConfig
	engine *app.App
	logger logger.Logger
}

// errorResponse is the uniform error payload: a stable kind, a human
// message and, for planning failures, the full diagnostic list.
type errorResponse struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func (api *API) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.logger.Warnf("failed to encode response: %v", err)
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, kind, message string, diagnostics []string) {
	api.writeJSON(w, status, errorResponse{Error: message, Kind: kind, Diagnostics: diagnostics})
}

func (api *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range api.config.CORSOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"model":  api.engine.Config.Model,
	})
}

func (api *API) handleGetTools(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": api.engine.Tools.Catalog(),
	})
}

// planRequest feeds both the plan and execute endpoints: execute accepts
// either a query to plan first or a ready-made plan to run directly.
type planRequest struct {
	Query string     `json:"query"`
	Plan  *plan.Plan `json:"plan,omitempty"`
}

func (api *API) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "malformed_json", "invalid request body", nil)
		return
	}
	if req.Query == "" {
		api.writeError(w, http.StatusBadRequest, "missing_required_field", "query is required", nil)
		return
	}

	p, err := api.engine.Planner.Plan(r.Context(), req.Query)
	if err != nil {
		api.writePlannerError(w, err)
		return
	}
	api.writeJSON(w, http.StatusOK, p)
}

func (api *API) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "malformed_json", "invalid request body", nil)
		return
	}

	p := req.Plan
	if p == nil {
		if req.Query == "" {
			api.writeError(w, http.StatusBadRequest, "missing_required_field", "either query or plan is required", nil)
			return
		}
		planned, err := api.engine.Planner.Plan(r.Context(), req.Query)
		if err != nil {
			api.writePlannerError(w, err)
			return
		}
		p = planned
	} else {
		// Client-supplied plans get the same structural gate as planner output.
		errs := plan.Validate(p, api.engine.ValidateOptions())
		if fatal := plan.Fatal(errs); len(fatal) > 0 {
			api.writeError(w, http.StatusBadRequest, "schema_violation", "plan failed validation", plan.Messages(fatal))
			return
		}
	}

	rec := api.engine.Executions.Launch(p, req.Query)
	api.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"execution_id": rec.ID(),
		"status":       string(execution.StatusStarting),
	})
}

func (api *API) writePlannerError(w http.ResponseWriter, err error) {
	var perr *planner.PlanError
	if errors.As(err, &perr) {
		api.writeError(w, http.StatusUnprocessableEntity, perr.Kind, perr.Message, perr.Diagnostics)
		return
	}
	api.logger.Errorf("planning failed: %v", err)
	api.writeError(w, http.StatusBadGateway, "llm_network", err.Error(), nil)
}

func (api *API) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": api.engine.Executions.List(),
	})
}

func (api *API) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	rec, ok := api.lookup(w, r)
	if !ok {
		return
	}

	body := map[string]interface{}{
		"execution": rec.Snapshot(),
	}
	if r.URL.Query().Get("include_events") == "true" {
		body["events"] = rec.Events()
	}
	if r.URL.Query().Get("include_plan") == "true" {
		body["plan"] = rec.Plan()
	}
	api.writeJSON(w, http.StatusOK, body)
}

func (api *API) handleStopExecution(w http.ResponseWriter, r *http.Request) {
	rec, ok := api.lookup(w, r)
	if !ok {
		return
	}
	rec.Cancel()
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": rec.ID(),
		"stopping":     true,
	})
}

// lookup resolves the {id} path variable, writing the 404 itself.
func (api *API) lookup(w http.ResponseWriter, r *http.Request) (*execution.Record, bool) {
	id := mux.Vars(r)["id"]
	rec, err := api.engine.Executions.Get(id)
	if err != nil {
		api.writeError(w, http.StatusNotFound, "execution_not_found", err.Error(), nil)
		return nil, false
	}
	return rec, true
}
