package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/kvgateway/interfaces"
	"github.com/ruteri/kvgateway/metrics"
)

const (
	opGet    = "get"
	opSet    = "set"
	opDelete = "delete"
	opFlush  = "flush"
)

// Handler translates HTTP requests into KVStore operations.
type Handler struct {
	store   interfaces.KVStore
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHandler creates a handler serving store.
func NewHandler(store interfaces.KVStore, log *slog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log,
	}
}

// WithMetrics makes the handler record every operation in m.
func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

// HandleGet answers the value stored under the key.
//
// URL format: GET /keys/{key}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromRequest(r)
	if err != nil {
		h.fail(w, opGet, start, err)
		return
	}

	value, err := h.store.Get(r.Context(), key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		h.observe(opGet, metrics.OutcomeNotFound, start)
		http.Error(w, fmt.Sprintf("no %s key", key), http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, opGet, start, err)
		return
	}

	h.observe(opGet, metrics.OutcomeOK, start)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

// HandleSet stores the whole request body under the key.
//
// URL format: POST /keys/{key}
func (h *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromRequest(r)
	if err != nil {
		h.fail(w, opSet, start, err)
		return
	}

	value, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, opSet, start, fmt.Errorf("could not read body: %w", err))
		return
	}

	if err := h.store.Set(r.Context(), key, value); err != nil {
		h.fail(w, opSet, start, err)
		return
	}

	h.observe(opSet, metrics.OutcomeOK, start)
	w.WriteHeader(http.StatusOK)
}

// HandleDelete removes the key. Removing an absent key succeeds.
//
// URL format: DELETE /keys/{key}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromRequest(r)
	if err != nil {
		h.fail(w, opDelete, start, err)
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		h.fail(w, opDelete, start, err)
		return
	}

	h.observe(opDelete, metrics.OutcomeOK, start)
	w.WriteHeader(http.StatusOK)
}

// HandleFlush makes every acknowledged write durable.
//
// URL format: POST /flush
func (h *Handler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.store.Flush(r.Context()); err != nil {
		h.fail(w, opFlush, start, err)
		return
	}

	h.observe(opFlush, metrics.OutcomeOK, start)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, op string, start time.Time, err error) {
	h.observe(op, metrics.OutcomeError, start)
	h.log.Error("Key operation failed", "op", op, "err", err)
	http.Error(w, fmt.Sprintf("internal error: %v", err), http.StatusInternalServerError)
}

func (h *Handler) observe(op, outcome string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveOp(op, outcome, time.Since(start))
	}
}

// keyFromRequest returns the percent-decoded {key} segment. The router matches
// on the raw path whenever the request carries escapes the default encoding
// would not produce, and on the decoded path otherwise.
func keyFromRequest(r *http.Request) ([]byte, error) {
	param := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return []byte(param), nil
	}

	key, err := url.PathUnescape(param)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed key %q: %w", interfaces.ErrInvalidKey, param, err)
	}
	return []byte(key), nil
}
