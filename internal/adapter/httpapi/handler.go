// Package httpapi exposes the trainer over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/internal/usecase"
	"github.com/eslsoft/chordnet/internal/usecase/catalog"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
	"github.com/eslsoft/chordnet/internal/usecase/srs"
)

const (
	_maxBodyBytes = 1 << 20
	_maxPageSize  = 500
	_defaultLimit = 50
)

// RouteMiddleware wraps the handler of one route. route is the mux pattern.
type RouteMiddleware func(route string, h http.Handler) http.Handler

// Option customises the Handler.
type Option func(*Handler)

// WithRouteMiddleware wraps every route with mw.
func WithRouteMiddleware(mw RouteMiddleware) Option {
	return func(h *Handler) { h.middleware = mw }
}

// WithLogger sets the logger for internal errors.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler serves the HTTP API.
type Handler struct {
	progress   usecase.ProgressUsecase
	matcher    *chord.Matcher
	catalog    *catalog.Catalog
	middleware RouteMiddleware
	logger     logrus.FieldLogger
	mux        *http.ServeMux
}

// NewHandler registers every route.
func NewHandler(progress usecase.ProgressUsecase, matcher *chord.Matcher, cat *catalog.Catalog, opts ...Option) *Handler {
	h := &Handler{
		progress: progress,
		matcher:  matcher,
		catalog:  cat,
		logger:   logrus.StandardLogger(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.handle("GET /healthz", h.healthz)
	h.handle("POST /v1/attempts", h.recordAttempt)
	h.handle("POST /v1/match", h.match)
	h.handle("GET /v1/progress/{type}/{id}", h.getProgress)
	h.handle("GET /v1/progress", h.listProgress)
	h.handle("GET /v1/due", h.listDue)
	h.handle("GET /v1/weights", h.weights)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if h.middleware != nil {
		handler = h.middleware(pattern, handler)
	}
	h.mux.Handle(pattern, handler)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"unsaved": h.progress.Unsaved(),
	})
}

func (h *Handler) recordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	key := entity.ItemKey{ID: req.ItemID, Type: entity.ParseItemType(req.ItemType)}
	obs := srs.Observation{
		Matched:        req.Matched,
		ResponseTimeMs: req.ResponseTimeMs,
		AttemptNumber:  defaultAttempt(req.AttemptNumber),
		Revealed:       req.Revealed,
		TimedOut:       req.TimedOut,
	}
	res, err := h.progress.RecordAttempt(r.Context(), key, obs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAttemptResponse(res))
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	key := entity.ItemKey{ID: req.ItemID, Type: entity.ParseItemType(req.ItemType)}
	challenge, err := h.catalog.Lookup(key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	target := challenge.Target()
	if err := target.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	var decision chord.Decision
	if len(req.HeldKeys) > 0 {
		decision = h.matcher.MatchHeld(target, chord.HeldSnapshot{Keys: req.HeldKeys, AtMs: req.HeldAtMs}, req.PresentedAtMs)
	} else {
		burst, err := toBurst(req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		policy, err := parsePolicy(req.Policy)
		if err != nil {
			h.writeError(w, err)
			return
		}
		decision = h.matcher.MatchBurst(target, burst, policy)
	}

	resp := matchResponse{Decision: toDecisionJSON(decision)}
	if req.Record && decision.Scored() {
		res, err := h.progress.RecordAttempt(r.Context(), challenge.ItemKey(), srs.Observation{
			Matched:        decision.Matched,
			ResponseTimeMs: decision.ResponseTimeMs,
			AttemptNumber:  defaultAttempt(req.AttemptNumber),
			Revealed:       req.Revealed,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp.Attempt = toAttemptResponse(res)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	key := entity.ItemKey{ID: r.PathValue("id"), Type: entity.ParseItemType(r.PathValue("type"))}
	view, err := h.progress.GetProgress(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProgressJSON(*view))
}

func (h *Handler) listProgress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemType, err := parseOptionalItemType(q.Get("item_type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	pageNo, err := parseInt32(q.Get("page_no"), "page_no")
	if err != nil {
		h.writeError(w, err)
		return
	}
	pageSize, err := parseInt32(q.Get("page_size"), "page_size")
	if err != nil {
		h.writeError(w, err)
		return
	}
	query := &repository.ListProgressQuery{
		Pagination:  repository.Pagination{PageNo: pageNo, PageSize: pageSize},
		FilterOrder: repository.FilterOrder{Filter: q.Get("filter"), OrderBy: q.Get("order_by")},
		ItemType:    itemType,
	}
	query.Pagination.Normalize(20, _maxPageSize)

	views, total, err := h.progress.ListProgress(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Items: toProgressList(views), Total: total})
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemType, err := parseOptionalItemType(q.Get("item_type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit := _defaultLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
	}
	views, err := h.progress.ListDue(r.Context(), itemType, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Items: toProgressList(views), Total: int64(len(views))})
}

func (h *Handler) weights(w http.ResponseWriter, r *http.Request) {
	itemType, err := parseOptionalItemType(r.URL.Query().Get("item_type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	weights, err := h.progress.Weights(r.Context(), itemType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": toWeightList(weights)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := toStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	h.writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, _maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func toBurst(req matchRequest) (chord.Burst, error) {
	burst := chord.Burst{
		Text:              req.Text,
		BackspaceObserved: req.Backspace,
		PresentedAtMs:     req.PresentedAtMs,
		CompletedAtMs:     req.CompletedAtMs,
	}
	for i, a := range req.Arrivals {
		if utf8.RuneCountInString(a.Char) != 1 {
			return chord.Burst{}, fmt.Errorf("%w: arrival %d must hold exactly one character", errBadRequest, i)
		}
		r, _ := utf8.DecodeRuneInString(a.Char)
		burst.Arrivals = append(burst.Arrivals, chord.Arrival{Char: r, AtMs: a.AtMs})
	}
	// The request carries the finished text; a trailing delimiter is implied.
	burst.DelimiterSeen = strings.TrimSpace(req.Text) != "" || len(burst.Arrivals) > 0
	return burst, nil
}

func parsePolicy(raw string) (chord.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strict":
		return chord.PolicyStrict, nil
	case "lenient":
		return chord.PolicyLenient, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", errBadRequest, raw)
	}
}

func parseOptionalItemType(raw string) (entity.ItemType, error) {
	if strings.TrimSpace(raw) == "" {
		return entity.ItemTypeUnspecified, nil
	}
	itemType := entity.ParseItemType(raw)
	if itemType == entity.ItemTypeUnspecified {
		return "", entity.ErrInvalidItemType
	}
	return itemType, nil
}

func parseInt32(raw, name string) (int32, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s must be an int32", errBadRequest, name)
	}
	return int32(v), nil
}

func defaultAttempt(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

