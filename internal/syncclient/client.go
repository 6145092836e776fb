// Package syncclient pushes the local cache to the reconciliation server and
// replaces it with the server's snapshot.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/notes-sync/internal/notes"
)

const defaultTimeout = 10 * time.Second

var ErrSyncInFlight = errors.New("sync already in progress")

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Cache is the part of the local cache a sync needs.
type Cache interface {
	Snapshot() []notes.Note
	ReplaceAll(ctx context.Context, fresh []notes.Note) error
}

// Result is what the user is shown after a sync attempt.
type Result struct {
	Status string
	Notes  int
}

type Client struct {
	url      string
	http     *http.Client
	log      *zap.SugaredLogger
	newID    func() string
	inFlight atomic.Bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// WithRequestID replaces the X-Request-Id generator.
func WithRequestID(gen func() string) Option {
	return func(c *Client) { c.newID = gen }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		url:   baseURL,
		http:  &http.Client{Timeout: defaultTimeout},
		log:   zap.NewNop().Sugar(),
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func failed(err error) Result {
	return Result{Status: "Sync failed: " + err.Error()}
}

// Sync sends the whole cache as one batch and, on success, replaces it with
// the reconciled collection. On failure the cache is left as it was.
//
// Once started the request is not cancelled by ctx; the HTTP client timeout
// bounds it.
func (c *Client) Sync(ctx context.Context, cache Cache) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return failed(ErrSyncInFlight), ErrSyncInFlight
	}
	defer c.inFlight.Store(false)

	ctx = context.WithoutCancel(ctx)
	reqID := c.newID()
	start := time.Now()

	batch := cache.Snapshot()
	fresh, err := c.roundTrip(ctx, reqID, batch)
	if err != nil {
		c.log.Warnw("sync failed", "request_id", reqID, "sent", len(batch), "err", err)
		return failed(err), err
	}

	carryTags(batch, fresh)
	if err := cache.ReplaceAll(ctx, fresh); err != nil {
		err = fmt.Errorf("store reconciled notes: %w", err)
		return failed(err), err
	}

	c.log.Infow("sync complete",
		"request_id", reqID,
		"sent", len(batch),
		"received", len(fresh),
		"duration", time.Since(start),
	)
	return Result{Status: fmt.Sprintf("Synced %d notes", len(fresh)), Notes: len(fresh)}, nil
}

func (c *Client) roundTrip(ctx context.Context, reqID string, batch []notes.Note) ([]notes.Note, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var fresh []notes.Note
	if err := json.NewDecoder(resp.Body).Decode(&fresh); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if fresh == nil {
		return nil, errors.New("decode snapshot: response is not a note array")
	}
	return fresh, nil
}

type contentKey struct {
	created        int64
	title, content string
}

// carryTags copies client-local tags from the sent batch onto the server's
// notes. Synced notes match by id; notes sent for creation match by their
// created time, title and content, each at most once.
func carryTags(sent, fresh []notes.Note) {
	byID := map[int64][]string{}
	pending := map[contentKey][][]string{}
	for _, n := range sent {
		if n.Synced() {
			byID[n.ID] = n.Tags
			continue
		}
		if len(n.Tags) > 0 {
			k := contentKey{n.Created, n.Title, n.Content}
			pending[k] = append(pending[k], n.Tags)
		}
	}

	for i := range fresh {
		n := &fresh[i]
		if tags, ok := byID[n.ID]; ok {
			if len(tags) > 0 {
				n.Tags = append([]string(nil), tags...)
			}
			continue
		}
		k := contentKey{n.Created, n.Title, n.Content}
		if q := pending[k]; len(q) > 0 {
			n.Tags = append([]string(nil), q[0]...)
			pending[k] = q[1:]
		}
	}
}
