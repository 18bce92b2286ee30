// Package handler exposes the import flow over HTTP with JSON bodies.
// Requests carry the authenticated owner in the X-User-ID header.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/FACorreiaa/echo-import/internal/domain/categorization"
	"github.com/FACorreiaa/echo-import/internal/domain/import/gate"
	"github.com/FACorreiaa/echo-import/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-import/internal/domain/import/service"
)

const (
	ownerHeader = "X-User-ID"

	// multipart overhead allowed on top of the file itself
	uploadOverhead = 1 << 20
)

type errorResponse struct {
	Error   string           `json:"error"`
	Session *service.Session `json:"session,omitempty"`
}

type commitResponse struct {
	Result  service.CommitResult `json:"result"`
	Session service.Session      `json:"session"`
}

type selectAllRequest struct {
	Selected bool `json:"selected"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type suggestResponse struct {
	Categories []string `json:"categories"`
}

// ImportHandler serves the import endpoints
type ImportHandler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(registry *Registry, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		registry: registry,
		logger:   logger,
	}
}

// Routes registers the import endpoints on a new mux
func (h *ImportHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /import", h.GetSession)
	mux.HandleFunc("DELETE /import", h.CloseSession)
	mux.HandleFunc("POST /import/file", h.UploadFile)
	mux.HandleFunc("POST /import/rows/{index}/toggle", h.ToggleRow)
	mux.HandleFunc("PUT /import/rows/{index}/category", h.SetCategory)
	mux.HandleFunc("POST /import/select-all", h.SelectAll)
	mux.HandleFunc("POST /import/commit", h.Commit)
	mux.HandleFunc("GET /import/rejected.csv", h.RejectedRows)
	mux.HandleFunc("GET /categories/suggest", h.SuggestCategories)
	return mux
}

func (h *ImportHandler) orchestrator(w http.ResponseWriter, r *http.Request) (*service.Orchestrator, bool) {
	ownerID, err := uuid.Parse(r.Header.Get(ownerHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid " + ownerHeader})
		return nil, false
	}
	o, err := h.registry.Orchestrator(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to load import session", slog.String("owner_id", ownerID.String()), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load import session"})
		return nil, false
	}
	return o, true
}

// GetSession returns the current snapshot
func (h *ImportHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

// CloseSession discards the session
func (h *ImportHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Close())
}

// UploadFile accepts a multipart upload in the "file" field
func (h *ImportHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, gate.MaxFileSize+uploadOverhead)
	var upload *service.Upload
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		upload = &service.Upload{
			Name:      header.Filename,
			Size:      header.Size,
			Extension: filepath.Ext(header.Filename),
			Content:   file,
		}
	case errors.Is(err, http.ErrMissingFile):
		// left nil so the gate reports NO_FILE
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File is too large. The maximum size is 5 MB."})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart upload"})
		return
	}

	session, err := o.SelectFile(r.Context(), upload)
	if err != nil {
		h.writeSessionError(w, err, session)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ToggleRow flips the selection of one row
func (h *ImportHandler) ToggleRow(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid row index"})
		return
	}

	session, err := o.ToggleRow(index)
	if err != nil {
		h.writeSessionError(w, err, session)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SelectAll selects or deselects every valid row
func (h *ImportHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	var req selectAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	session, err := o.SelectAll(req.Selected)
	if err != nil {
		h.writeSessionError(w, err, session)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SetCategory overrides a row's category
func (h *ImportHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid row index"})
		return
	}
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	session, err := o.SetCategory(r.Context(), index, req.Category)
	if err != nil {
		h.writeSessionError(w, err, session)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Commit imports the selected rows
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}

	result := o.Commit(r.Context())
	snap := o.Snapshot()
	writeJSON(w, commitStatus(result, snap), commitResponse{Result: result, Session: snap})
}

// commitStatus maps a commit outcome to a status code. A failed insert is a
// 502; any other refusal is a 409.
func commitStatus(result service.CommitResult, snap service.Session) int {
	switch {
	case result.Success:
		return http.StatusOK
	case snap.Phase == service.PhaseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusConflict
	}
}

// RejectedRows downloads the invalid rows as CSV
func (h *ImportHandler) RejectedRows(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	out, err := o.RejectedRowsCSV()
	if err != nil {
		h.logger.Error("failed to export rejected rows", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to export rejected rows"})
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rejected.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// SuggestCategories ranks categories for the query in ?q=
func (h *ImportHandler) SuggestCategories(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.Header.Get(ownerHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid " + ownerHeader})
		return
	}
	c, err := h.registry.Classifier(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to load classifier", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load categories"})
		return
	}
	writeJSON(w, http.StatusOK, suggestResponse{Categories: c.SuggestCategories(r.URL.Query().Get("q"))})
}

func (h *ImportHandler) writeSessionError(w http.ResponseWriter, err error, session service.Session) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("import request failed", slog.Any("error", err))
	}
	msg := session.LastError
	if msg == "" {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Session: &session})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrCommitInProgress),
		errors.Is(err, service.ErrNotEditable),
		errors.Is(err, service.ErrSessionReset):
		return http.StatusConflict
	case errors.Is(err, service.ErrRowOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, categorization.ErrInvalidCategory),
		errors.Is(err, service.ErrReadFailed):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidFile),
		errors.Is(err, service.ErrMissingColumns),
		errors.Is(err, service.ErrNoTransactions),
		errors.Is(err, parser.ErrPDFNotSupported),
		errors.Is(err, parser.ErrImageNotSupported):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
