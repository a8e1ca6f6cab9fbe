// Package chi exposes the adapter's REST surface on a chi router.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kvecd/internal/domain"
	domainbatch "github.com/kailas-cloud/kvecd/internal/domain/batch"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	batchuc "github.com/kailas-cloud/kvecd/internal/usecase/batch"
	collectionuc "github.com/kailas-cloud/kvecd/internal/usecase/collection"
	pointuc "github.com/kailas-cloud/kvecd/internal/usecase/point"
	recommenduc "github.com/kailas-cloud/kvecd/internal/usecase/recommend"
	scrolluc "github.com/kailas-cloud/kvecd/internal/usecase/scroll"
	searchuc "github.com/kailas-cloud/kvecd/internal/usecase/search"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the use case services to HTTP handlers.
type Server struct {
	collections   *collectionuc.Service
	points        *pointuc.Service
	search        *searchuc.Service
	recommend     *recommenduc.Service
	scroll        *scrolluc.Service
	batch         *batchuc.Service
	bridge        kernel.Bridge
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	collections *collectionuc.Service,
	points *pointuc.Service,
	search *searchuc.Service,
	recommend *recommenduc.Service,
	scroll *scrolluc.Service,
	batch *batchuc.Service,
	bridge kernel.Bridge,
	logger *zap.Logger,
) *Server {
	s := &Server{
		collections: collections,
		points:      points,
		search:      search,
		recommend:   recommend,
		scroll:      scroll,
		batch:       batch,
		bridge:      bridge,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, codeCollectionNotFound),
		sentinelHandler(domain.ErrPointNotFound, http.StatusNotFound, codePointNotFound),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, codeSessionNotFound),
		sentinelHandler(domain.ErrCollectionExists, http.StatusConflict, codeCollectionExists),
		sentinelHandler(domain.ErrSessionBusy, http.StatusConflict, codeSessionBusy),
		sentinelHandler(domain.ErrSessionExpired, http.StatusGone, codeSessionExpired),
		sentinelHandler(domain.ErrDimension, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidDistance, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrFilterParse, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedStrategy, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(scrolluc.ErrBadOffset, http.StatusBadRequest, codeValidationFailed),
		deadlineHandler,
		deviceErrorHandler,
	}
	return s
}

// Routes mounts every endpoint on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", s.listCollections)
		r.Post("/search/parallel", s.parallelSearch)

		r.Route("/{name}", func(r chi.Router) {
			r.Put("/", s.createCollection)
			r.Get("/", s.getCollection)
			r.Delete("/", s.deleteCollection)

			r.Route("/points", func(r chi.Router) {
				r.Put("/", s.upsertPoints)
				r.Post("/", s.getPoints)
				r.Put("/stream", s.upsertPointsStream)
				r.Post("/delete", s.deletePoints)
				r.Post("/search", s.searchPoints)
				r.Post("/search/stream", s.searchPointsStream)
				r.Post("/search/batch", s.batchSearch)
				r.Post("/search/groups", s.groupedSearch)
				r.Post("/recommend", s.recommendPoints)
				r.Post("/discover", s.discoverPoints)
				r.Post("/scroll", s.scrollPoints)
			})

			r.Post("/scroll/sessions", s.createScrollSession)
		})
	})

	r.Route("/scroll/sessions/{id}", func(r chi.Router) {
		r.Post("/", s.continueScroll)
		r.Delete("/", s.closeScrollSession)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Ping(r.Context()); err != nil {
		s.logger.Error("device ping failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeDeviceError, "device unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// createCollection handles PUT /collections/{name}.
func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	col, err := s.collections.Create(r.Context(), chi.URLParam(r, "name"), req.Dimension, req.Distance)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, collectionToWire(col))
}

// getCollection handles GET /collections/{name}.
func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.collections.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionToWire(col))
}

// listCollections handles GET /collections.
func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.collections.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]collectionResponse, len(cols))
	for i, c := range cols {
		items[i] = collectionToWire(c)
	}
	writeJSON(w, http.StatusOK, collectionListResponse{Collections: items})
}

// deleteCollection handles DELETE /collections/{name}.
func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// upsertPoints handles PUT /collections/{name}/points. An optional
// batch_size query parameter switches to chunked loading that stops at
// the first failing chunk.
func (s *Server) upsertPoints(w http.ResponseWriter, r *http.Request) {
	var req upsertPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Points) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "points are required")
		return
	}

	inputs := inputsFromWire(req.Points)

	var written int
	var err error
	if chunkSize := queryInt(r, "batch_size"); chunkSize > 0 {
		written, err = s.batch.Upsert(r.Context(), chi.URLParam(r, "name"), inputs, chunkSize)
	} else {
		written, err = s.points.Upsert(r.Context(), chi.URLParam(r, "name"), inputs)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{Status: "ok", Upserted: written})
}

// getPoints handles POST /collections/{name}/points.
func (s *Server) getPoints(w http.ResponseWriter, r *http.Request) {
	var req getPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "ids are required")
		return
	}

	points, err := s.points.Get(r.Context(), chi.URLParam(r, "name"), idsFromWire(req.IDs), req.WithVector)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Points: pointsToWire(points)})
}

// deletePoints handles POST /collections/{name}/points/delete.
func (s *Server) deletePoints(w http.ResponseWriter, r *http.Request) {
	var req deletePointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "ids are required")
		return
	}

	if err := s.points.Delete(r.Context(), chi.URLParam(r, "name"), idsFromWire(req.IDs)); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{Status: "ok"})
}

// searchPoints handles POST /collections/{name}/points/search.
func (s *Server) searchPoints(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validateSearchRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	opts, err := searchOptionsFromWire(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hits, err := s.search.Search(r.Context(), chi.URLParam(r, "name"), req.Vector, req.Limit, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Result: scoredPointsToWire(hits)})
}

// recommendPoints handles POST /collections/{name}/points/recommend.
func (s *Server) recommendPoints(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Positive) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "at least one positive example is required")
		return
	}
	if req.Limit <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be positive")
		return
	}
	cond, err := filterFromWire(req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hits, err := s.recommend.Recommend(r.Context(), recommenduc.Request{
		Collection: chi.URLParam(r, "name"),
		Positive:   idsFromWire(req.Positive),
		Negative:   idsFromWire(req.Negative),
		Strategy:   req.Strategy,
		Limit:      req.Limit,
		Options: searchuc.Options{
			Filter:      cond,
			WithPayload: req.WithPayload,
			WithVector:  req.WithVector,
		},
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Result: scoredPointsToWire(hits)})
}

// discoverPoints handles POST /collections/{name}/points/discover.
func (s *Server) discoverPoints(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Limit <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be positive")
		return
	}

	hits, err := s.recommend.Discover(r.Context(), chi.URLParam(r, "name"),
		uint64(req.Target), req.Limit, req.ExplorationDepth)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Result: scoredPointsToWire(hits)})
}

// scrollPoints handles POST /collections/{name}/points/scroll.
func (s *Server) scrollPoints(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	cond, err := filterFromWire(req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	points, next, err := s.scroll.Scroll(r.Context(), chi.URLParam(r, "name"), req.Limit, req.Offset, scrolluc.Options{
		Filter:      cond,
		WithPayload: req.WithPayload,
		WithVector:  req.WithVector,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := scrollResponse{Points: pointsToWire(points)}
	if next != "" {
		resp.NextPageOffset = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// createScrollSession handles POST /collections/{name}/scroll/sessions.
func (s *Server) createScrollSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess, err := s.scroll.CreateSession(r.Context(), chi.URLParam(r, "name"), req.BatchSize)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:  sess.ID,
		Collection: sess.Collection,
		BatchSize:  sess.BatchSize,
		ExpiresAt:  sess.ExpiresAt,
	})
}

// continueScroll handles POST /scroll/sessions/{id}.
func (s *Server) continueScroll(w http.ResponseWriter, r *http.Request) {
	var req continueScrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	page, err := s.scroll.Continue(r.Context(), chi.URLParam(r, "id"), req.Limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scrollPageResponse{
		Points:  pointsToWire(page.Points),
		HasMore: page.HasMore,
	})
}

// closeScrollSession handles DELETE /scroll/sessions/{id}.
func (s *Server) closeScrollSession(w http.ResponseWriter, r *http.Request) {
	released, err := s.scroll.CloseSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closeSessionResponse{Released: released})
}

// batchSearch handles POST /collections/{name}/points/search/batch.
func (s *Server) batchSearch(w http.ResponseWriter, r *http.Request) {
	var req batchSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Searches) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "searches are required")
		return
	}

	queries := make([]batchuc.SearchQuery, len(req.Searches))
	for i, sr := range req.Searches {
		if err := validateSearchRequest(sr); err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
			return
		}
		opts, err := searchOptionsFromWire(sr)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		queries[i] = batchuc.SearchQuery{Vector: sr.Vector, Limit: sr.Limit, Options: opts}
	}

	ctx := r.Context()
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	results := s.batch.Search(ctx, chi.URLParam(r, "name"), queries)
	slots := make([]batchSlotResponse, len(results))
	for i, res := range results {
		slot := batchSlotResponse{Index: res.Index(), Status: string(res.Status())}
		switch res.Status() {
		case domainbatch.StatusOK:
			slot.Result = scoredPointsToWire(res.Value())
		case domainbatch.StatusError:
			slot.Error = &errorResponse{
				Code:    batchErrorCode(res.Err()),
				Message: safeDomainMessage(res.Err()),
			}
		}
		slots[i] = slot
	}
	writeJSON(w, http.StatusOK, batchSearchResponse{Results: slots})
}

// groupedSearch handles POST /collections/{name}/points/search/groups.
func (s *Server) groupedSearch(w http.ResponseWriter, r *http.Request) {
	var req groupedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Vector) == 0 || req.GroupBy == "" || req.Limit <= 0 || req.GroupSize <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"vector, group_by, limit and group_size are required")
		return
	}
	cond, err := filterFromWire(req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	groups, err := s.batch.GroupedSearch(r.Context(), chi.URLParam(r, "name"),
		req.Vector, req.GroupBy, req.Limit, req.GroupSize, searchuc.Options{
			Filter:      cond,
			WithPayload: req.WithPayload,
			WithVector:  req.WithVector,
		})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]groupResponse, len(groups))
	for i, g := range groups {
		out[i] = groupResponse{Key: g.Key, Points: scoredPointsToWire(g.Points)}
	}
	writeJSON(w, http.StatusOK, groupedSearchResponse{Groups: out})
}

// parallelSearch handles POST /collections/search/parallel.
func (s *Server) parallelSearch(w http.ResponseWriter, r *http.Request) {
	var req parallelSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Collections) == 0 || len(req.Vector) == 0 || req.Limit <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"collections, vector and limit are required")
		return
	}

	results := s.batch.CollectionSearch(r.Context(), req.Collections, req.Vector, req.Limit,
		searchuc.Options{WithPayload: req.WithPayload})

	out := make(map[string]parallelSlotResponse, len(results))
	for _, res := range results {
		if res.Err != nil {
			out[res.Collection] = parallelSlotResponse{
				Status: "error",
				Error: &errorResponse{
					Code:    batchErrorCode(res.Err),
					Message: safeDomainMessage(res.Err),
				},
			}
			continue
		}
		out[res.Collection] = parallelSlotResponse{Status: "ok", Result: scoredPointsToWire(res.Points)}
	}
	writeJSON(w, http.StatusOK, parallelSearchResponse{Results: out})
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage exposes sentinel text and hides everything else.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrCollectionNotFound,
		domain.ErrPointNotFound,
		domain.ErrCollectionExists,
		domain.ErrDimension,
		domain.ErrDimensionMismatch,
		domain.ErrInvalidDistance,
		domain.ErrFilterParse,
		domain.ErrUnsupportedStrategy,
		domain.ErrSessionNotFound,
		domain.ErrSessionExpired,
		domain.ErrSessionBusy,
		scrolluc.ErrBadOffset,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "device call timed out"
	}
	var kerr *kernel.Error
	if errors.As(err, &kerr) {
		return "device error"
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func deadlineHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	writeError(w, http.StatusGatewayTimeout, codeDeviceTimeout, msg)
	return true
}

// deviceErrorHandler catches device statuses with no sentinel mapping.
// It runs last so mapped statuses keep their specific responses.
func deviceErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var kerr *kernel.Error
	if !errors.As(err, &kerr) {
		return false
	}
	writeError(w, http.StatusBadGateway, codeDeviceError, msg)
	return true
}

func batchErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		return codeCollectionNotFound
	case errors.Is(err, domain.ErrPointNotFound):
		return codePointNotFound
	case errors.Is(err, domain.ErrDimension),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrFilterParse):
		return codeValidationFailed
	case errors.Is(err, context.DeadlineExceeded):
		return codeDeviceTimeout
	default:
		return codeInternalError
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
