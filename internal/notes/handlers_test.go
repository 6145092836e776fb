package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubReconciler struct {
	reconcileFn func(context.Context, []Note) error
	snapshotFn  func(context.Context) ([]Note, error)
}

func (s stubReconciler) Reconcile(ctx context.Context, batch []Note) error {
	return s.reconcileFn(ctx, batch)
}
func (s stubReconciler) Snapshot(ctx context.Context) ([]Note, error) { return s.snapshotFn(ctx) }

func newTestRoutes(rec Reconciler, opts ...Option) http.Handler {
	return NewHandlers(rec, zap.NewNop().Sugar(), opts...).Routes()
}

func requireCORS(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHandlers_List(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			snapshotFn: func(context.Context) ([]Note, error) {
				return []Note{{ID: 2, Created: 1, Changed: 5, Title: "b"}, {ID: 1, Created: 1, Changed: 1, Title: "a"}}, nil
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		requireCORS(t, rr)
		require.JSONEq(t, `[
			{"operation":"","id":2,"created":1,"changed":5,"title":"b","content":""},
			{"operation":"","id":1,"created":1,"changed":1,"title":"a","content":""}
		]`, rr.Body.String())
	})

	t.Run("read failure fails open", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			snapshotFn: func(context.Context) ([]Note, error) { return nil, errors.New("boom") },
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.JSONEq(t, `[]`, rr.Body.String())
	})
}

func TestHandlers_Sync_Success(t *testing.T) {
	var got []Note
	h := newTestRoutes(stubReconciler{
		reconcileFn: func(_ context.Context, batch []Note) error {
			got = batch
			return nil
		},
		snapshotFn: func(context.Context) ([]Note, error) {
			return []Note{{ID: 1, Created: 3, Changed: 3, Title: "A", Content: "x"}}, nil
		},
	})

	body := `[
		{"operation":"CREATE","id":-1,"created":3,"changed":3,"title":"A","content":"x","tags":["t"]},
		{"operation":"","id":5},
		{"operation":"PATCH","id":6}
	]`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	requireCORS(t, rr)
	require.Len(t, got, 3)
	require.Equal(t, OpCreate, got[0].Operation)
	require.Equal(t, UnassignedID, got[0].ID)
	require.Equal(t, OpNone, got[1].Operation)
	require.Equal(t, OpUnknown, got[2].Operation)

	var snap []Note
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	require.Equal(t, []Note{{ID: 1, Created: 3, Changed: 3, Title: "A", Content: "x"}}, snap)
}

func TestHandlers_Sync_Errors(t *testing.T) {
	okSnapshot := func(context.Context) ([]Note, error) { return []Note{}, nil }

	t.Run("invalid json", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			reconcileFn: func(context.Context, []Note) error { t.Fatal("must not reconcile"); return nil },
			snapshotFn:  okSnapshot,
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			reconcileFn: func(context.Context, []Note) error { return nil },
			snapshotFn:  okSnapshot,
		}, WithMaxBatchBytes(16))
		big := `[{"operation":"CREATE","id":-1,"title":"` + strings.Repeat("x", 64) + `"}]`
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(big))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("storage failure mid batch", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			reconcileFn: func(context.Context, []Note) error {
				return &BatchError{Index: 2, ID: 9, Op: OpUpdate, Applied: 2, Err: errors.New("disk full")}
			},
			snapshotFn: okSnapshot,
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`[]`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equal(t, http.StatusInternalServerError, rr.Code)
		requireCORS(t, rr)
		var resp map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.Equal(t, float64(2), resp["index"]) // JSON numbers decode to float64
		require.Equal(t, float64(2), resp["applied"])
		require.Contains(t, resp["error"], "disk full")
	})

	t.Run("store unavailable", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			reconcileFn: func(context.Context, []Note) error {
				return &BatchError{Index: 0, Op: OpCreate, Err: sqlite3.Error{Code: sqlite3.ErrBusy}}
			},
			snapshotFn: okSnapshot,
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`[]`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("snapshot failure after batch", func(t *testing.T) {
		h := newTestRoutes(stubReconciler{
			reconcileFn: func(context.Context, []Note) error { return nil },
			snapshotFn:  func(context.Context) ([]Note, error) { return nil, errors.New("boom") },
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`[]`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestHandlers_Preflight_And_Health(t *testing.T) {
	h := newTestRoutes(stubReconciler{})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Body.String())
	requireCORS(t, rr)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
