package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

type submitCaseRequest struct {
	OwnerID  string `json:"owner_id"`
	FilePath string `json:"file_path"`
}

// caseView is the wire shape of a case. State is the single-field value the
// dashboard filters on; the rest carries the structured status.
type caseView struct {
	ID              string                 `json:"id"`
	OwnerID         string                 `json:"owner_id"`
	FilePath        string                 `json:"file_path"`
	State           string                 `json:"state"`
	Status          domain.PipelineStatus  `json:"status"`
	Verdict         *domain.TrafficLight   `json:"verdict"`
	FailureStage    *domain.FailureStage   `json:"failure_stage"`
	Title           *string                `json:"title"`
	Observations    string                 `json:"observations"`
	Details         *domain.VerdictDetails `json:"details"`
	VerdictFallback bool                   `json:"verdict_fallback"`
	MandatePath     *string                `json:"mandate_path,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func newCaseView(rec domain.CaseRecord) caseView {
	view := caseView{
		ID:              rec.ID,
		OwnerID:         rec.OwnerID,
		FilePath:        rec.FilePath,
		State:           rec.LegacyState(),
		Status:          rec.Status,
		Verdict:         rec.Verdict,
		Title:           rec.Title,
		Observations:    rec.Observations,
		Details:         rec.Details,
		VerdictFallback: rec.VerdictFallback,
		MandatePath:     rec.MandatePath,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.FailureStage != "" {
		stage := rec.FailureStage
		view.FailureStage = &stage
	}
	return view
}

func (rt *Router) submitCase(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Submitter == nil {
		writeError(w, r, http.StatusNotImplemented, "case submission is not configured")
		return
	}

	var req submitCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := rt.deps.Submitter.Submit(r.Context(), req.OwnerID, req.FilePath)
	if err != nil {
		rt.writeDomainError(w, r, "submit_case", err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordCaseSubmitted(serviceName, "http")
	}
	w.Header().Set("Location", "/v1/cases/"+rec.ID)
	writeJSON(w, http.StatusAccepted, newCaseView(*rec))
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := rt.deps.Reader.GetByID(r.Context(), caseID)
	if err != nil {
		rt.writeDomainError(w, r, "get_case", err)
		return
	}
	writeJSON(w, http.StatusOK, newCaseView(*rec))
}

func (rt *Router) listCases(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}

	records, err := rt.deps.Reader.ListByOwner(r.Context(), ownerID)
	if err != nil {
		rt.writeDomainError(w, r, "list_cases", err)
		return
	}
	views := make([]caseView, 0, len(records))
	for _, rec := range records {
		views = append(views, newCaseView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": views})
}

func (rt *Router) deleteCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}

	if err := rt.deps.Remover.Delete(r.Context(), ownerID, caseID); err != nil {
		rt.writeDomainError(w, r, "delete_case", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) exportCases(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Exporter == nil {
		writeError(w, r, http.StatusNotImplemented, "case export is not configured")
		return
	}
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}

	report, err := rt.deps.Exporter.ExportCases(r.Context(), ownerID)
	if err != nil {
		rt.writeDomainError(w, r, "export_cases", err)
		return
	}
	w.Header().Set("Content-Type", rt.deps.Exporter.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="expedientes.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var caseID string
	err := runtime.BindStyledParameterWithOptions("simple", "case_id", chi.URLParam(r, "case_id"), &caseID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid case_id: "+err.Error())
		return "", false
	}
	return caseID, true
}

func ownerIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var ownerID string
	if err := runtime.BindQueryParameter("form", true, true, "owner_id", r.URL.Query(), &ownerID); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid owner_id: "+err.Error())
		return "", false
	}
	return ownerID, true
}
