// Package server exposes validation and promotion as a small JSON HTTP API
// for automation. Transport only; all semantics live in the validation
// service.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rpattn/exportval/internal/domain"
	"github.com/rpattn/exportval/internal/validation"
)

// Handler routes the automation endpoints.
type Handler struct {
	service *validation.Service
	logger  *zap.Logger
}

// New builds the HTTP handler stack: routes, request logging, CORS.
func New(service *validation.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{service: service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /validate", h.handleValidate)
	mux.HandleFunc("POST /promote", h.handlePromote)
	mux.HandleFunc("GET /versions", h.handleVersions)

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return corsHandler.Handler(loggingMiddleware(logger, mux))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	file, header, entityType, instanceID, ok := h.exportForm(w, r)
	if !ok {
		return
	}
	defer file.Close()

	report, err := h.service.Validate(r.Context(), validation.ValidateRequest{
		EntityType: entityType,
		InstanceID: instanceID,
		FileName:   header,
		Data:       file,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	file, header, entityType, instanceID, ok := h.exportForm(w, r)
	if !ok {
		return
	}
	defer file.Close()

	req := validation.PromoteRequest{
		EntityType: entityType,
		InstanceID: instanceID,
		FileName:   header,
		Data:       file,
	}
	if raw := strings.TrimSpace(r.FormValue("expectedVersion")); raw != "" {
		expected, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid expectedVersion: %v", err), http.StatusBadRequest)
			return
		}
		req.ExpectedVersion = &expected
	}

	promoted, err := h.service.Promote(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, versionInfo(promoted))
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request) {
	entityType := strings.TrimSpace(r.URL.Query().Get("entityType"))
	instanceID := strings.TrimSpace(r.URL.Query().Get("instanceId"))
	if entityType == "" || instanceID == "" {
		http.Error(w, "entityType and instanceId are required", http.StatusBadRequest)
		return
	}

	versions, err := h.service.ListVersions(r.Context(), entityType, instanceID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	infos := make([]VersionInfo, len(versions))
	for i, version := range versions {
		infos[i] = versionInfo(version)
	}
	writeJSON(w, http.StatusOK, infos)
}

// exportForm reads the shared multipart fields of /validate and /promote.
func (h *Handler) exportForm(w http.ResponseWriter, r *http.Request) (file multipart.File, fileName, entityType, instanceID string, ok bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return nil, "", "", "", false
	}

	upload, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return nil, "", "", "", false
	}

	entityType = strings.TrimSpace(r.FormValue("entityType"))
	instanceID = strings.TrimSpace(r.FormValue("instanceId"))
	if entityType == "" || instanceID == "" {
		upload.Close()
		http.Error(w, "entityType and instanceId are required", http.StatusBadRequest)
		return nil, "", "", "", false
	}

	return upload, header.Filename, entityType, instanceID, true
}

// VersionInfo is the version metadata returned by the API; document
// snapshots stay server-side.
type VersionInfo struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entityType"`
	InstanceID string    `json:"instanceId"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	Records    int       `json:"records"`
}

func versionInfo(v domain.BaselineVersion) VersionInfo {
	return VersionInfo{
		ID:         v.ID.String(),
		EntityType: v.EntityType,
		InstanceID: v.InstanceID,
		Version:    v.Version,
		CreatedAt:  v.CreatedAt,
		Records:    len(v.Document.Records),
	}
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var conflict *domain.ConflictError
	var notFound *domain.BaselineNotFoundError
	var parse *domain.ParseError
	var mismatch *domain.SchemaMismatchError
	var duplicate *domain.DuplicateKeyError
	var configuration *domain.ConfigurationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &parse), errors.As(err, &mismatch), errors.As(err, &duplicate), errors.As(err, &configuration):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
