package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/marketloom/search-service/pkg/errors"
	"github.com/marketloom/search-service/pkg/httputil"
	"github.com/marketloom/search-service/pkg/middleware"
	"github.com/marketloom/search-service/pkg/validator"

	"github.com/marketloom/search-service/internal/analytics"
	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/index"
	"github.com/marketloom/search-service/internal/service"
)

// attrParamPrefix marks query parameters carrying attribute filters,
// e.g. attr.color=red,blue.
const attrParamPrefix = "attr."

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.Service, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// callerIdentity maps the gateway-resolved caller onto the domain identity.
func callerIdentity(r *http.Request) domain.Identity {
	c := middleware.CallerFromContext(r.Context())
	return domain.Identity{
		Key:       c.Key,
		Role:      c.Role,
		Locale:    c.Locale,
		SessionID: c.SessionID,
	}
}

// --- Request DTOs ---

// BulkIndexRequest is the JSON request body for bulk indexing products.
type BulkIndexRequest struct {
	Products []*index.ProductRecord `json:"products" validate:"required,min=1,max=500"`
}

// TrackClickRequest is the JSON request body for recording a result click.
type TrackClickRequest struct {
	Query     string `json:"query"`
	ClickedID string `json:"clicked_id" validate:"required"`
	Position  int    `json:"position" validate:"required,min=1"`
	SessionID string `json:"session_id"`
}

// --- Handlers ---

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Search(r.Context(), req, callerIdentity(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, result)
}

// parseSearchRequest builds a search request from query parameters. Bounds
// and sort validation happen in the compiler; only malformed values are
// rejected here.
func parseSearchRequest(r *http.Request) (*domain.SearchRequest, error) {
	q := r.URL.Query()

	req := &domain.SearchRequest{
		Query:      strings.TrimSpace(q.Get("q")),
		CategoryID: q.Get("category"),
		SortBy:     domain.SortMode(q.Get("sort")),
	}

	for _, raw := range q["brand"] {
		req.BrandIDs = append(req.BrandIDs, splitParam(raw)...)
	}

	var err error
	if req.MinPrice, err = floatParam(q, "min_price"); err != nil {
		return nil, err
	}
	if req.MaxPrice, err = floatParam(q, "max_price"); err != nil {
		return nil, err
	}
	if req.MinRating, err = floatParam(q, "min_rating"); err != nil {
		return nil, err
	}
	if v := q.Get("in_stock"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return nil, apperrors.InvalidInput("in_stock must be a boolean")
		}
		req.InStock = &b
	}
	if v := q.Get("status"); v != "" {
		status := domain.DocumentStatus(v)
		req.Status = &status
	}
	if req.Page, err = intParam(q, "page"); err != nil {
		return nil, err
	}
	if req.Limit, err = intParam(q, "limit"); err != nil {
		return nil, err
	}

	for key, values := range q {
		name, ok := strings.CutPrefix(key, attrParamPrefix)
		if !ok || name == "" {
			continue
		}
		if req.Attributes == nil {
			req.Attributes = make(map[string][]string)
		}
		for _, raw := range values {
			req.Attributes[name] = append(req.Attributes[name], splitParam(raw)...)
		}
	}

	for _, f := range splitParam(q.Get("facets")) {
		if !domain.IsValidFacet(f) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown facet %q", f))
		}
		req.Facets = append(req.Facets, domain.FacetField(f))
	}

	return req, nil
}

// splitParam splits a comma-separated parameter value, dropping empties.
func splitParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func floatParam(q url.Values, name string) (*float64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, apperrors.InvalidInput(name + " must be a number")
	}
	return &f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.InvalidInput(name + " must be an integer")
	}
	return n, nil
}

// Suggest handles GET /api/v1/search/suggest
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	entries, err := h.service.Suggest(r.Context(), r.URL.Query().Get("q"), limit, callerIdentity(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if entries == nil {
		entries = []domain.SuggestionEntry{}
	}

	httputil.OK(w, map[string]any{"suggestions": entries})
}

// TrackClick handles POST /api/v1/search/track/click
func (h *SearchHandler) TrackClick(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req TrackClickRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	event := analytics.ClickEvent{
		Query:     req.Query,
		ClickedID: req.ClickedID,
		Position:  req.Position,
		SessionID: req.SessionID,
	}
	if err := h.service.TrackClick(r.Context(), event, callerIdentity(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Success: true,
		Data:    map[string]string{"status": "recorded"},
	})
}

// IndexProduct handles POST /api/v1/search/index
func (h *SearchHandler) IndexProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var rec index.ProductRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.Name) == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("id and name are required"), h.logger)
		return
	}

	if err := h.service.IndexProduct(r.Context(), &rec, callerIdentity(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, map[string]string{"id": rec.ID, "status": "indexed"})
}

// BulkIndex handles POST /api/v1/search/bulk
func (h *SearchHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20) // bulk bodies carry up to 500 records

	var req BulkIndexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.BulkIndexProducts(r.Context(), req.Products, callerIdentity(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, result)
}

// DeleteProduct handles DELETE /api/v1/search/{id}
func (h *SearchHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.RemoveProduct(r.Context(), id, callerIdentity(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, map[string]string{"id": id, "status": "deleted"})
}

// Reindex handles POST /api/v1/search/reindex
//
// The rebuild runs synchronously so a concurrent invocation can be answered
// with a conflict instead of silently piling up.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.FullReindex(r.Context(), callerIdentity(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, result)
}
