package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/services"
)

// runService is the subset of services.RunService used by the handlers.
type runService interface {
	Catalog() *models.CatalogResponse
	Create(ctx context.Context, req *models.CreateRunRequest) (*models.CreateRunResponse, error)
	Generate(ctx context.Context, req *models.CreateRunRequest) (*models.RunStatusResponse, error)
	Get(ctx context.Context, runID uuid.UUID) (*models.RunStatusResponse, error)
	OpenArtifact(ctx context.Context, runID uuid.UUID, name string) (io.ReadCloser, *models.RunArtifact, error)
}

// progressSource streams live events of a run.
type progressSource interface {
	Subscribe(runID uuid.UUID) (<-chan models.Event, func())
}

// Handler contains all HTTP handlers
type Handler struct {
	runs     runService
	progress progressSource
	health   func(ctx context.Context) error
}

// NewHandler creates a new handler. health may be nil.
func NewHandler(runs runService, progress progressSource, health func(ctx context.Context) error) *Handler {
	return &Handler{runs: runs, progress: progress, health: health}
}

// Router registers every route on a new mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/generate", h.GenerateForm).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}", h.ViewRun).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/catalog", h.GetCatalog).Methods(http.MethodGet)
	api.HandleFunc("/runs", h.CreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}", h.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/podcast", h.GetPodcast).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/artifacts/{name}", h.GetArtifact).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/ws", h.RunProgressWS).Methods(http.MethodGet)
	return r
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetCatalog handles GET /v1/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runs.Catalog())
}

// CreateRun handles POST /v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.runs.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to create run")
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// GetRun handles GET /v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	resp, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		writeServiceError(w, err, "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPodcast handles GET /v1/runs/{id}/podcast
func (h *Handler) GetPodcast(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, models.ArtifactPodcast)
}

// GetArtifact handles GET /v1/runs/{id}/artifacts/{name}
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, mux.Vars(r)["name"])
}

func (h *Handler) serveArtifact(w http.ResponseWriter, r *http.Request, name string) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	rc, a, err := h.runs.OpenArtifact(r.Context(), runID, name)
	if err != nil {
		writeServiceError(w, err, "Failed to open artifact")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", a.MimeType)
	// ServeContent needs a seeker for range requests; local files have one.
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", a.UpdatedAt, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Debug().Err(err).Str("run_id", runID.String()).Str("artifact", name).Msg("Artifact stream interrupted")
	}
}

func parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return runID, true
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInputIncomplete):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrEnqueueFailed):
		log.Error().Err(err).Msg(msg)
		writeJSONError(w, http.StatusServiceUnavailable, "run could not be queued")
	default:
		log.Error().Err(err).Msg(msg)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
