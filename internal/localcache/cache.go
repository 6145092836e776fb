// Package localcache holds the client's offline note collection and its
// pending operations, mirrored to a BlobStore after every change.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/notes-sync/internal/notes"
)

// StorageKey is the blob key the collection is persisted under.
const StorageKey = "notes.cache.v1"

var (
	ErrIndexOutOfRange = errors.New("note index out of range")
	ErrPendingDelete   = errors.New("note is pending deletion")
)

// Cache is the ordered local collection, newest first. Indices used by Edit
// and Delete refer to positions in the full collection, including notes
// pending deletion.
type Cache struct {
	mu    sync.Mutex
	notes []notes.Note
	store BlobStore
	now   func() time.Time
	log   *zap.SugaredLogger
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Cache) { c.log = log }
}

// Open restores the collection from store. A missing or unreadable blob
// yields an empty cache; only a failing store is an error.
func Open(ctx context.Context, store BlobStore, opts ...Option) (*Cache, error) {
	c := &Cache{store: store, now: time.Now, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(c)
	}

	data, err := store.Load(ctx, StorageKey)
	switch {
	case errors.Is(err, ErrBlobNotFound):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("load cache: %w", err)
	}

	var restored []notes.Note
	if err := json.Unmarshal(data, &restored); err != nil {
		c.log.Warnw("discarding unreadable cache blob", "err", err, "bytes", len(data))
		return c, nil
	}
	// every restored entry must encode again
	for i, n := range restored {
		if n.Operation == notes.OpUnknown {
			c.log.Warnw("discarding unreadable cache blob", "err", "unrecognized operation", "position", i, "bytes", len(data))
			return c, nil
		}
	}
	c.notes = restored
	return c, nil
}

// Create prepends a note that is pending creation.
func (c *Cache) Create(ctx context.Context, title, content string, tags []string) (notes.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().Unix()
	n := notes.Note{
		Operation: notes.OpCreate,
		ID:        notes.UnassignedID,
		Created:   ts,
		Changed:   ts,
		Title:     title,
		Content:   content,
	}
	if len(tags) > 0 {
		n.Tags = append([]string(nil), tags...)
	}

	c.notes = append([]notes.Note{n}, c.notes...)
	return n.Clone(), c.persist(ctx)
}

// Edit overwrites the title and content of the note at index. It reports
// false, and persists nothing, when both are unchanged.
func (c *Cache) Edit(ctx context.Context, index int, title, content string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.notes) {
		return false, ErrIndexOutOfRange
	}
	n := &c.notes[index]
	if n.Operation == notes.OpDelete {
		return false, ErrPendingDelete
	}
	if n.Title == title && n.Content == content {
		return false, nil
	}

	n.Changed = c.now().Unix()
	n.Title = title
	n.Content = content
	// a note the server has not seen yet stays pending creation
	if n.Operation != notes.OpCreate {
		n.Operation = notes.OpUpdate
	}
	return true, c.persist(ctx)
}

// Delete drops a never-synced note outright and marks any other note for
// deletion on the next sync.
func (c *Cache) Delete(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.notes) {
		return ErrIndexOutOfRange
	}
	n := &c.notes[index]
	switch {
	case !n.Synced():
		c.notes = append(c.notes[:index], c.notes[index+1:]...)
	case n.Operation == notes.OpDelete:
		return nil
	default:
		n.Operation = notes.OpDelete
	}
	return c.persist(ctx)
}

// Visible yields (index, note) for every note not pending deletion. The
// sequence reads the live collection one step at a time and can be ranged
// over any number of times.
func (c *Cache) Visible() iter.Seq2[int, notes.Note] {
	return func(yield func(int, notes.Note) bool) {
		for i := 0; ; i++ {
			c.mu.Lock()
			if i >= len(c.notes) {
				c.mu.Unlock()
				return
			}
			n := c.notes[i].Clone()
			c.mu.Unlock()

			if n.Operation == notes.OpDelete {
				continue
			}
			if !yield(i, n) {
				return
			}
		}
	}
}

// Snapshot returns a deep copy of the full collection, pending deletions included.
func (c *Cache) Snapshot() []notes.Note {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]notes.Note, len(c.notes))
	for i, n := range c.notes {
		out[i] = n.Clone()
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

// ReplaceAll swaps in a reconciled collection. Every operation is cleared.
func (c *Cache) ReplaceAll(ctx context.Context, fresh []notes.Note) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := make([]notes.Note, len(fresh))
	for i, n := range fresh {
		n = n.Clone()
		n.Operation = notes.OpNone
		replaced[i] = n
	}
	c.notes = replaced
	return c.persist(ctx)
}

// persist writes the whole collection. Callers hold c.mu.
func (c *Cache) persist(ctx context.Context) error {
	list := c.notes
	if list == nil {
		list = []notes.Note{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := c.store.Save(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}
