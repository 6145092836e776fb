// Package cli implements the notes terminal client.
package cli

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/notes-sync/internal/config"
	"example.com/notes-sync/internal/localcache"
	"example.com/notes-sync/internal/syncclient"
)

const redisPingTimeout = 2 * time.Second

type app struct {
	cfg config.ClientConfig
	log *zap.SugaredLogger

	store   localcache.BlobStore
	closers []func() error

	cache  *localcache.Cache
	client *syncclient.Client

	offline   bool
	ephemeral bool
}

type Option func(*app)

// WithStore makes every command use store instead of the configured one.
func WithStore(store localcache.BlobStore) Option {
	return func(a *app) { a.store = store }
}

// NewRootCmd returns the notes command tree.
func NewRootCmd(cfg config.ClientConfig, log *zap.SugaredLogger, opts ...Option) *cobra.Command {
	a := &app{cfg: cfg, log: log}
	for _, o := range opts {
		o(a)
	}

	root := &cobra.Command{
		Use:               "notes",
		Short:             "Offline-first notes that sync with a notes server",
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	f := root.PersistentFlags()
	f.BoolVar(&a.offline, "offline", false, "do not sync after changing notes")
	f.BoolVar(&a.ephemeral, "ephemeral", false, "keep notes in memory only for this run")
	f.StringVar(&a.cfg.ServerURL, "server", cfg.ServerURL, "notes server URL")

	root.AddCommand(
		newListCmd(a),
		newAddCmd(a),
		newEditCmd(a),
		newRemoveCmd(a),
		newSyncCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	a.cache, err = localcache.Open(ctx, store, localcache.WithLogger(a.log))
	if err != nil {
		return errors.Wrap(err, "opening local notes")
	}
	a.client = syncclient.New(a.cfg.ServerURL,
		syncclient.WithHTTPClient(&http.Client{Timeout: a.cfg.SyncTimeout}),
		syncclient.WithLogger(a.log),
	)
	return nil
}

func (a *app) openStore(ctx context.Context) (localcache.BlobStore, error) {
	switch {
	case a.store != nil:
		return a.store, nil
	case a.ephemeral:
		return localcache.NewMemoryStore(), nil
	case a.cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, errors.Wrapf(err, "connecting to redis at %s", a.cfg.RedisAddr)
		}
		a.closers = append(a.closers, rdb.Close)
		return localcache.NewRedisStore(rdb), nil
	default:
		store, err := localcache.NewFileStore(a.cfg.StateDir)
		if err != nil {
			return nil, errors.Wrap(err, "preparing state directory")
		}
		return store, nil
	}
}

func (a *app) close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// syncAfter pushes a local change unless --offline is set. A failed sync
// is reported but the local change stands.
func (a *app) syncAfter(cmd *cobra.Command) {
	if a.offline {
		return
	}
	res, _ := a.client.Sync(cmd.Context(), a.cache)
	printStatus(cmd.OutOrStdout(), res.Status)
}

func printStatus(w io.Writer, status string) {
	_, _ = io.WriteString(w, status+"\n")
}
