package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/echo-import/internal/domain/categorization"
	"github.com/FACorreiaa/echo-import/internal/domain/import/repository"
	"github.com/FACorreiaa/echo-import/internal/domain/import/service"
)

const statement = `Date,Amount,Description
2024-01-15,"$1,234.56",Coffee at Starbucks
2024-01-20,45.00,Uber trip
not-a-date,10.00,Broken row
2024-01-10,-5.00,Refund
2024-01-20,12.00,Lunch place
`

type testServer struct {
	handler http.Handler
	repo    *repository.MemoryImportRepository
	store   *categorization.MemoryStore
	owner   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryImportRepository()
	store := categorization.NewMemoryStore()
	registry := NewRegistry(repo, store, logger)
	return &testServer{
		handler: NewImportHandler(registry, logger).Routes(),
		repo:    repo,
		store:   store,
		owner:   uuid.New(),
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Header.Get(ownerHeader) == "" {
		req.Header.Set(ownerHeader, s.owner.String())
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) service.Session {
	t.Helper()
	var s service.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestImportHandler_RequiresOwner(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name  string
		owner string
	}{
		{name: "missing header", owner: ""},
		{name: "not a uuid", owner: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/import", nil)
			if tt.owner != "" {
				req.Header.Set(ownerHeader, tt.owner)
			}
			rec := httptest.NewRecorder()
			srv.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestImportHandler_GetEmptySession(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/import", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	s := decodeSession(t, rec)
	assert.Equal(t, service.PhaseCollecting, s.Phase)
	assert.Empty(t, s.Candidates)
}

func TestImportHandler_UploadPreview(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.upload(t, "statement.csv", statement)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s := decodeSession(t, rec)
	assert.Equal(t, service.PhasePreviewing, s.Phase)
	assert.Equal(t, "statement.csv", s.FileName)
	assert.Len(t, s.Candidates, 5)
	assert.Equal(t, 3, s.Summary.ValidCount)
	assert.Equal(t, 3, s.Summary.SelectedCount)
	assert.Equal(t, "$1,291.56", s.Summary.SelectedAmountDisplay)
}

func TestImportHandler_UploadRejected(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		wantStatus int
		wantError  string
	}{
		{
			name:       "unsupported extension",
			file:       "statement.docx",
			content:    "hello",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "Unsupported file type",
		},
		{
			name:       "empty file",
			file:       "statement.csv",
			content:    "",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "empty",
		},
		{
			name:       "missing columns",
			file:       "statement.csv",
			content:    "Foo,Bar\n1,2\n",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "",
		},
		{
			name:       "pdf statement",
			file:       "statement.pdf",
			content:    "%PDF-1.4",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "CSV",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			rec := srv.upload(t, tt.file, tt.content)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			e := decodeError(t, rec)
			assert.NotEmpty(t, e.Error)
			assert.Contains(t, e.Error, tt.wantError)
			require.NotNil(t, e.Session)
			assert.Equal(t, service.PhaseFailed, e.Session.Phase)
		})
	}
}

func TestImportHandler_UploadWithoutFile(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := srv.do(t, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "No file selected")
}

func TestImportHandler_EditRows(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)

	rec := srv.do(t, httptest.NewRequest(http.MethodPost, "/import/rows/0/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeSession(t, rec)
	assert.False(t, s.Candidates[0].IsSelected)
	assert.Equal(t, 2, s.Summary.SelectedCount)

	rec = srv.do(t, jsonRequest(http.MethodPost, "/import/select-all", `{"selected":false}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeSession(t, rec).Summary.SelectedCount)

	rec = srv.do(t, jsonRequest(http.MethodPost, "/import/select-all", `{"selected":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeSession(t, rec).Summary.SelectedCount)

	rec = srv.do(t, jsonRequest(http.MethodPut, "/import/rows/1/category", `{"category":"Travel"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	s = decodeSession(t, rec)
	assert.Equal(t, "Travel", s.Candidates[1].Category)
	assert.Equal(t, categorization.MethodCorrection, s.Candidates[1].Method)

	stored, err := srv.store.List(t.Context(), categorization.CorrectionsKey(srv.owner))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	for _, category := range stored {
		assert.Equal(t, "Travel", category)
	}
}

func TestImportHandler_EditErrors(t *testing.T) {
	tests := []struct {
		name       string
		upload     bool
		req        *http.Request
		wantStatus int
	}{
		{
			name:       "toggle without preview",
			req:        httptest.NewRequest(http.MethodPost, "/import/rows/0/toggle", nil),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "index not a number",
			upload:     true,
			req:        httptest.NewRequest(http.MethodPost, "/import/rows/abc/toggle", nil),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "index out of range",
			upload:     true,
			req:        httptest.NewRequest(http.MethodPost, "/import/rows/99/toggle", nil),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid category",
			upload:     true,
			req:        jsonRequest(http.MethodPut, "/import/rows/0/category", `{"category":"Gadgets"}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			upload:     true,
			req:        jsonRequest(http.MethodPost, "/import/select-all", `{`),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			if tt.upload {
				require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)
			}
			rec := srv.do(t, tt.req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestImportHandler_Commit(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)

	rec := srv.do(t, httptest.NewRequest(http.MethodPost, "/import/commit", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp commitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Success)
	assert.Equal(t, 3, resp.Result.InsertedCount)
	assert.Equal(t, service.PhaseCompleted, resp.Session.Phase)
	assert.Len(t, srv.repo.Records(srv.owner), 3)

	// the same file again is all duplicates
	require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)
	rec = srv.do(t, httptest.NewRequest(http.MethodPost, "/import/commit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Success)
	assert.Equal(t, 0, resp.Result.InsertedCount)
	assert.Equal(t, 3, resp.Result.DuplicateCount)
	assert.Len(t, srv.repo.Records(srv.owner), 3)
}

type failingInsertRepo struct {
	*repository.MemoryImportRepository
}

func (failingInsertRepo) InsertBatch(context.Context, uuid.UUID, []repository.LedgerRecord) (*repository.InsertResult, error) {
	return nil, errors.New("connection reset")
}

func TestImportHandler_CommitFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := categorization.NewMemoryStore()
	registry := NewRegistry(failingInsertRepo{repository.NewMemoryImportRepository()}, store, logger)
	srv := &testServer{
		handler: NewImportHandler(registry, logger).Routes(),
		store:   store,
		owner:   uuid.New(),
	}
	require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)

	rec := srv.do(t, httptest.NewRequest(http.MethodPost, "/import/commit", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())

	var resp commitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Result.Success)
	assert.Equal(t, service.PhaseFailed, resp.Session.Phase)
	assert.NotEmpty(t, resp.Session.LastError)
}

func TestCommitStatus(t *testing.T) {
	tests := []struct {
		name   string
		result service.CommitResult
		phase  service.Phase
		want   int
	}{
		{name: "success", result: service.CommitResult{Success: true}, phase: service.PhaseCompleted, want: http.StatusOK},
		{name: "insert failed", phase: service.PhaseFailed, want: http.StatusBadGateway},
		{name: "nothing selected", phase: service.PhaseCollecting, want: http.StatusConflict},
		{name: "reset while committing", phase: service.PhaseCollecting, result: service.CommitResult{Errors: []string{"cancelled"}}, want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commitStatus(tt.result, service.Session{Phase: tt.phase}))
		})
	}
}

func TestImportHandler_CommitNothing(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodPost, "/import/commit", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp commitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Result.Success)
	assert.NotEmpty(t, resp.Result.Errors)
	assert.Equal(t, service.PhaseCollecting, resp.Session.Phase)
}

func TestImportHandler_OwnersAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)

	req := httptest.NewRequest(http.MethodGet, "/import", nil)
	req.Header.Set(ownerHeader, uuid.NewString())
	rec := srv.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.PhaseCollecting, decodeSession(t, rec).Phase)
}

func TestImportHandler_CloseSession(t *testing.T) {
	srv := newTestServer(t)
	first := decodeSession(t, srv.upload(t, "statement.csv", statement))

	rec := srv.do(t, httptest.NewRequest(http.MethodDelete, "/import", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeSession(t, rec)
	assert.Equal(t, service.PhaseCollecting, s.Phase)
	assert.Empty(t, s.Candidates)
	assert.NotEqual(t, first.ID, s.ID)
}

func TestImportHandler_RejectedRows(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.upload(t, "statement.csv", statement).Code)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/import/rejected.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "Broken row")
	assert.Contains(t, body, "Refund")
	assert.NotContains(t, body, "Uber trip")
}

func TestImportHandler_SuggestCategories(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/categories/suggest?q=groc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp suggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Categories)
	assert.Equal(t, "Groceries", resp.Categories[0])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrCommitInProgress, http.StatusConflict},
		{service.ErrNotEditable, http.StatusConflict},
		{service.ErrSessionReset, http.StatusConflict},
		{service.ErrRowOutOfRange, http.StatusNotFound},
		{categorization.ErrInvalidCategory, http.StatusBadRequest},
		{service.ErrReadFailed, http.StatusBadRequest},
		{service.ErrInvalidFile, http.StatusUnprocessableEntity},
		{service.ErrMissingColumns, http.StatusUnprocessableEntity},
		{service.ErrNoTransactions, http.StatusUnprocessableEntity},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
