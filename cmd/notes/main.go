package main

import (
	"fmt"
	"os"

	"example.com/notes-sync/internal/cli"
	"example.com/notes-sync/internal/config"
	"example.com/notes-sync/internal/logging"
)

func main() {
	cfg := config.LoadClient()

	log, err := logging.New("notes-cli", cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cli.NewRootCmd(cfg, log).Execute(); err != nil {
		_ = log.Sync()
		os.Exit(1)
	}
}
