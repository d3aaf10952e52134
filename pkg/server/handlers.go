package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/playbook"
)

// defaultEmissionsWindow applies when the emissions query omits start
const defaultEmissionsWindow = 30 * 24 * time.Hour

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type handler struct {
	deps   Dependencies
	logger *logrus.Logger
	now    func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

// ComplianceScoreResponse is returned by the compliance score route
type ComplianceScoreResponse struct {
	Framework  models.Framework `json:"framework"`
	ResourceID string           `json:"resource_id,omitempty"`
	Score      float64          `json:"score"`
}

// GapsResponse is returned by the compliance gaps route
type GapsResponse struct {
	Framework models.Framework `json:"framework"`
	Gaps      []string         `json:"gaps"`
}

// EmissionsResponse is returned by the emissions route
type EmissionsResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	models.EmissionsTotals
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) complianceScore(w http.ResponseWriter, r *http.Request) {
	framework, ok := h.framework(w, r)
	if !ok {
		return
	}
	resourceID := r.URL.Query().Get("resource_id")

	score, err := h.deps.Compliance.ComplianceScore(r.Context(), framework, resourceID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ComplianceScoreResponse{Framework: framework, ResourceID: resourceID, Score: score})
}

func (h *handler) complianceGaps(w http.ResponseWriter, r *http.Request) {
	framework, ok := h.framework(w, r)
	if !ok {
		return
	}

	gaps, err := h.deps.Compliance.IdentifyGaps(r.Context(), framework)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if gaps == nil {
		gaps = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, GapsResponse{Framework: framework, Gaps: gaps})
}

func (h *handler) emissions(w http.ResponseWriter, r *http.Request) {
	end := h.now()
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid end %q: expected RFC3339", v))
			return
		}
		end = t
	}
	start := end.Add(-defaultEmissionsWindow)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid start %q: expected RFC3339", v))
			return
		}
		start = t
	}
	if start.After(end) {
		h.writeError(w, r, http.StatusBadRequest, errors.New("start must not be after end"))
		return
	}

	totals, err := h.deps.Sustainability.CalculateEmissions(r.Context(), start, end)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, EmissionsResponse{Start: start, End: end, EmissionsTotals: totals})
}

func (h *handler) opportunities(w http.ResponseWriter, r *http.Request) {
	opportunities, err := h.deps.Sustainability.IdentifySavingsOpportunities(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if opportunities == nil {
		opportunities = []models.SavingsOpportunity{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{"opportunities": opportunities})
}

func (h *handler) sustainabilityScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.deps.Sustainability.SustainabilityScore(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]float64{"score": score})
}

func (h *handler) regions(w http.ResponseWriter, r *http.Request) {
	shares, err := h.deps.Sustainability.RegionalEmissions(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if shares == nil {
		shares = map[string]float64{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{"regions": shares})
}

func (h *handler) buildPlaybook(w http.ResponseWriter, r *http.Request) {
	var req playbook.BuildRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	pb, err := h.deps.Builder.Build(r.Context(), req)
	switch {
	case err == nil:
		h.writeJSON(w, r, http.StatusOK, pb)
	case playbook.IsProducerError(err):
		h.writeError(w, r, http.StatusBadGateway, err)
	case playbook.IsRequestError(err):
		h.writeError(w, r, http.StatusBadRequest, err)
	default:
		h.writeError(w, r, http.StatusInternalServerError, err)
	}
}

// executePlaybook always answers 200 once the playbook decodes; failures are in the report
func (h *handler) executePlaybook(w http.ResponseWriter, r *http.Request) {
	var pb models.Playbook
	if err := decodeBody(w, r, &pb); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	report := h.deps.Executor.Execute(r.Context(), &pb)
	h.writeJSON(w, r, http.StatusOK, report)
}

func (h *handler) listProviders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{"providers": h.deps.Providers.GetProviderInfo()})
}

func (h *handler) framework(w http.ResponseWriter, r *http.Request) (models.Framework, bool) {
	framework, err := models.ParseFramework(chi.URLParam(r, "framework"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return "", false
	}
	return framework, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("Failed to encode response")
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := h.logger.WithError(err).WithFields(logrus.Fields{"path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Debug("Request rejected")
	}
	h.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}
