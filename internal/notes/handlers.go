package notes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DefaultMaxBatchBytes caps the size of a sync request body.
const DefaultMaxBatchBytes int64 = 4 << 20

type Handlers struct {
	rec           Reconciler
	log           *zap.SugaredLogger
	maxBatchBytes int64
}

// Reconciler applies batches and reads the canonical snapshot.
// It allows unit-testing handlers without a real database.
type Reconciler interface {
	Reconcile(ctx context.Context, batch []Note) error
	Snapshot(ctx context.Context) ([]Note, error)
}

type Option func(*Handlers)

// WithMaxBatchBytes overrides DefaultMaxBatchBytes. Non-positive values are ignored.
func WithMaxBatchBytes(n int64) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBatchBytes = n
		}
	}
}

func NewHandlers(rec Reconciler, log *zap.SugaredLogger, opts ...Option) *Handlers {
	h := &Handlers{rec: rec, log: log, maxBatchBytes: DefaultMaxBatchBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, h.logRequests, middleware.Recoverer, cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", h.list)
	r.Post("/", h.sync)
	r.Options("/", h.preflight)

	return r
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rec.Snapshot(r.Context())
	if err != nil {
		// Reads fail open: clients get an empty list rather than an error.
		h.log.Errorw("list notes", "err", err, "request_id", middleware.GetReqID(r.Context()))
		snap = nil
	}
	if snap == nil {
		snap = []Note{}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) sync(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBatchBytes)

	var batch []Note
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "batch too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := h.rec.Reconcile(r.Context(), batch); err != nil {
		resp := map[string]any{"error": err.Error()}
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			resp["index"] = batchErr.Index
			resp["applied"] = batchErr.Applied
		}
		h.log.Errorw("apply batch", "err", err, "entries", len(batch), "request_id", reqID)
		writeJSON(w, storageStatus(err), resp)
		return
	}

	snap, err := h.rec.Snapshot(r.Context())
	if err != nil {
		h.log.Errorw("read snapshot after batch", "err", err, "request_id", reqID)
		writeJSON(w, storageStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if snap == nil {
		snap = []Note{}
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *Handlers) preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		h.log.Infow("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// cors allows any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "*")
		hdr.Set("Access-Control-Allow-Credentials", "true")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
