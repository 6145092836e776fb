package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"example.com/notes-sync/internal/config"
	"example.com/notes-sync/internal/db"
	"example.com/notes-sync/internal/logging"
	"example.com/notes-sync/internal/notes"
	"example.com/notes-sync/internal/service"
)

const usage = "usage: api [migrate up|down]"

func main() {
	cfg := config.Load()

	log, err := logging.New("notes-api", cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if len(os.Args) > 1 {
		err = migrateCmd(log, cfg, os.Args[1:])
	} else {
		err = run(log, cfg)
	}
	if err != nil {
		log.Errorw("startup", "ERROR", err)
		_ = log.Sync()
		os.Exit(1)
	}
}

func migrateCmd(log *zap.SugaredLogger, cfg config.Config, args []string) error {
	if len(args) != 2 || args[0] != "migrate" {
		return errors.New(usage)
	}
	switch args[1] {
	case "up":
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(cfg.DatabaseURL); err != nil {
			return err
		}
	default:
		return errors.New(usage)
	}
	log.Infow("migrate", "direction", args[1], "status", "done")
	return nil
}

func run(log *zap.SugaredLogger, cfg config.Config) error {
	if _, err := maxprocs.Set(); err != nil {
		return fmt.Errorf("maxprocs: %w", err)
	}
	log.Infow("startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	if cfg.MigrateOnStart {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		log.Infow("startup", "status", "migrations applied")
	}

	ctx := context.Background()

	dbConn, err := db.Open(ctx, cfg.DatabaseURL, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)
	if err != nil {
		return err
	}
	defer func() { _ = dbConn.SQL.Close() }()
	log.Infow("startup", "database", string(dbConn.Dialect))

	repo, err := notes.NewRepository(ctx, dbConn)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	h := notes.NewHandlers(service.New(repo, log), log, notes.WithMaxBatchBytes(cfg.MaxBatchBytes))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("startup", "status", "listening", "addr", cfg.HTTPAddr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}
