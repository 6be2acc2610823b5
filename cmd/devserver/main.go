// Package main starts the in-memory TaskDeck development backend, setting
// up configuration, logging and the HTTP router.
package main

import (
	"cmp"
	"fmt"
	"os"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/config"
	"github.com/atinyakov/taskdeck/internal/devserver"
	"github.com/atinyakov/taskdeck/internal/logger"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Addr

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		secret = "taskdeck-dev-secret"
	}

	server := devserver.NewServer(secret, zapLogger)

	zapLogger.Info("starting devserver", zap.String("addr", addr))
	if err := nethttp.ListenAndServe(addr, server.NewRouter()); err != nil {
		zapLogger.Fatal("failed to start devserver", zap.Error(err))
	}
}
