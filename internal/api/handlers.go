package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/siteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *siteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *siteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// urlParam returns a decoded path parameter. Supports encoded slashes and
// spaces from OpenAPI clients (e.g. Bone%20Carving).
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrLocked):
		writeJSON(w, http.StatusLocked, errorBody("locked: another publish is in progress"))
	case errors.Is(err, apperr.ErrInvalidFolder):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid folder name"))
	case errors.Is(err, apperr.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no thumbnail source available"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// GetMaster handles GET /api/master.
//
//	@Summary		Get the master document and its parsed cards
//	@Tags			master
//	@Produce		json
//	@Success		200	{object}	MasterDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/master [get]
func (h *Handler) GetMaster(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMaster(r.Context())
	if err != nil {
		writeError(w, "get master", err)
		return
	}
	w.Header().Set("ETag", `"`+m.Checksum+`"`)
	writeJSON(w, http.StatusOK, m)
}

// SaveMaster handles PUT /api/master.
//
//	@Summary		Replace the master document with optimistic concurrency
//	@Tags			master
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	SaveMasterRequest	true	"New document content"
//	@Success		200		{object}	MasterDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/master [put]
func (h *Handler) SaveMaster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req SaveMasterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	m, err := h.svc.SaveMaster(r.Context(), []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, "save master", err)
		return
	}
	w.Header().Set("ETag", `"`+m.Checksum+`"`)
	writeJSON(w, http.StatusOK, m)
}

// Publish handles POST /api/publish.
//
//	@Summary		Run one publish
//	@Tags			pipeline
//	@Produce		json
//	@Success		200	{object}	PublishResult
//	@Failure		423	{object}	PublishResult
//	@Failure		500	{object}	PublishResult
//	@Security		BearerAuth
//	@Router			/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	res := h.svc.Publish(r.Context())
	status := http.StatusOK
	switch {
	case res.Locked:
		status = http.StatusLocked
	case !res.Success:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

// Diff handles GET /api/diff.
//
//	@Summary		Compute the drift report without changing anything
//	@Tags			pipeline
//	@Produce		json
//	@Success		200	{object}	PruneReport
//	@Security		BearerAuth
//	@Router			/diff [get]
func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Diff(r.Context())
	if err != nil {
		writeError(w, "diff", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Prune handles POST /api/prune.
//
//	@Summary		Compute a fresh drift report and apply it
//	@Tags			pipeline
//	@Produce		json
//	@Param			delete_thumbs	query		bool	false	"Also delete orphan thumbnail files"
//	@Success		200				{object}	PruneOutcome
//	@Failure		404				{object}	errResponse
//	@Failure		423				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/prune [post]
func (h *Handler) Prune(w http.ResponseWriter, r *http.Request) {
	deleteThumbs, _ := strconv.ParseBool(r.URL.Query().Get("delete_thumbs"))
	out, err := h.svc.Prune(r.Context(), deleteThumbs)
	if err != nil {
		writeError(w, "prune", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RefreshThumbnail handles POST /api/thumbs/{folder}.
//
//	@Summary		Regenerate one folder's thumbnail
//	@Tags			pipeline
//	@Produce		json
//	@Param			folder	path		string	true	"Topic folder"
//	@Success		200		{object}	ThumbnailResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/thumbs/{folder} [post]
func (h *Handler) RefreshThumbnail(w http.ResponseWriter, r *http.Request) {
	folder := urlParam(r, "folder")
	kind, err := h.svc.RefreshThumbnail(r.Context(), folder)
	if err != nil {
		writeError(w, "refresh thumbnail", err)
		return
	}
	writeJSON(w, http.StatusOK, ThumbnailResponse{Folder: folder, SourceKind: string(kind)})
}

// Lock handles GET /api/lock.
//
//	@Summary		Report whether a publish is in progress
//	@Tags			pipeline
//	@Produce		json
//	@Success		200	{object}	LockStatus
//	@Security		BearerAuth
//	@Router			/lock [get]
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Lock(r.Context())
	if err != nil {
		writeError(w, "lock status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Registry handles GET /api/registry.
//
//	@Summary		List the consolidated registry
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	RegistryResponse
//	@Security		BearerAuth
//	@Router			/registry [get]
func (h *Handler) Registry(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Registry(r.Context())
	if err != nil {
		writeError(w, "registry", err)
		return
	}
	writeJSON(w, http.StatusOK, RegistryResponse{Items: items})
}

// GetCard handles GET /api/cards/{id}.
//
//	@Summary		Get one master document card by id
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		string	true	"Card id"
//	@Success		200	{object}	Card
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id} [get]
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.Card(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeError(w, "get card", err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across cards
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Runs handles GET /api/runs.
//
//	@Summary		List journaled runs, newest first
//	@Tags			pipeline
//	@Produce		json
//	@Param			kind	query		string	false	"Run kind"	Enums(publish, diff, prune)
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	RunsResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	runs, err := h.svc.Runs(r.Context(), q.Get("kind"), limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}
