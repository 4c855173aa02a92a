package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nairaflow/connect/internal/classify"
	"github.com/nairaflow/connect/internal/core"
	"github.com/nairaflow/connect/internal/factory"
	"github.com/nairaflow/connect/internal/health"
)

type server struct {
	connectors *factory.Factory
	engine     *classify.Engine
	monitor    *health.Monitor
}

func newServer(connectors *factory.Factory, engine *classify.Engine, monitor *health.Monitor) *server {
	return &server{connectors: connectors, engine: engine, monitor: monitor}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindConfig, core.KindValidation:
		status = http.StatusBadRequest
	case core.KindAuth:
		status = http.StatusUnauthorized
	case core.KindRateLimit:
		status = http.StatusTooManyRequests
	case core.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     s.monitor.Overall().String(),
		"service":    "connectd",
		"connectors": len(s.connectors.ConnectorIDs()),
	})
}

func (s *server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ids := s.connectors.TemplateIDs()
	out := make([]*factory.Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.connectors.Template(id))
	}
	writeJSON(w, http.StatusOK, out)
}

type createConnectorBody struct {
	TemplateID string         `json:"template_id"`
	Overrides  map[string]any `json:"overrides"`
	AutoInit   bool           `json:"auto_init"`
}

func (s *server) handleCreateConnector(w http.ResponseWriter, r *http.Request) {
	var body createConnectorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	cfg, err := s.connectors.CreateConnectorConfig(body.TemplateID, body.Overrides)
	if err != nil {
		writeError(w, err)
		return
	}
	rt, err := s.connectors.CreateConnector(r.Context(), cfg, body.AutoInit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt.Health())
}

func (s *server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.connectors.HealthCheckAll(r.Context()))
}

func (s *server) handleDestroyConnector(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.connectors.DestroyConnector(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rt := s.connectors.Connector(id)
	if rt == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connector " + id})
		return
	}

	var req core.ConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	resp, err := rt.Execute(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleConnectorHealth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rt := s.connectors.Connector(id)
	if rt == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connector " + id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"health":  rt.Health(),
		"metrics": rt.Metrics(),
	})
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Classify(r.Context(), &req))
}

type feedbackBody struct {
	RequestID  string `json:"request_id"`
	WasCorrect bool   `json:"was_correct"`
}

func (s *server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	found := s.engine.UpdateFeedback(r.Context(), body.RequestID, body.WasCorrect)
	writeJSON(w, http.StatusOK, map[string]bool{"cache_entry_updated": found})
}

func (s *server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Usage().Aggregate())
}
