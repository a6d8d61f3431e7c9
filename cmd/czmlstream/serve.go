package main

import (
	"context"
	"czmlstream/internal/api"
	"czmlstream/internal/config"
	"czmlstream/internal/fetch"
	"czmlstream/internal/logger"
	"czmlstream/internal/network"
	"czmlstream/internal/session"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
)

var (
	configFile string
	listenAddr string
	logLevel   string
	logFormat  string

	serveFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path to the YAML config (default: built-in three-part demo)",
			Destination: &configFile,
		},
		cli.StringFlag{
			Name:        "listen, l",
			Usage:       "HTTP listen address (overrides the config)",
			Destination: &listenAddr,
		},
		cli.StringFlag{
			Name:        "log-level, L",
			Usage:       "log level (error, warn, info, debug)",
			Value:       "info",
			Destination: &logLevel,
		},
		cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (json, text)",
			Value:       "json",
			Destination: &logFormat,
		},
	}
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func newFetcher(log logger.Logger, src config.Source) (fetch.Fetcher, error) {
	if src.IsRemote() {
		return fetch.NewClient(log, src.Base, src.UserAgent)
	}
	return fetch.NewOsFileFetcher(log, src.Base)
}

func serve(ctx *cli.Context) error {
	// 1. Initialize logger
	log := logger.New(os.Stdout, logLevel, logFormat)
	log.Infof("Starting czmlstream %s...", version)
	log.Infof("Log level set to: %s", logLevel)

	// 2. Load configuration
	cfg, err := loadConfig(configFile)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	log.Infof("Configuration loaded successfully for: %s (%d parts from %s)", cfg.Name, len(cfg.Parts), cfg.Source.Base)

	// 3. Initialize the fetcher, session and device store
	fetcher, err := newFetcher(log, cfg.Source)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	sess, err := session.New(log, cfg, fetcher)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	store, err := network.NewStore(network.DefaultDevices())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	sess.Start()

	// 4. Set up and run the HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.New(log, sess, store),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Server starting on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
		log.Infof("Server is shutting down...")
	case err := <-serverErr:
		log.Errorf("Could not listen on %s: %v", cfg.Listen, err)
		sess.Stop()
		return cli.NewExitError(err.Error(), 1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
	sess.Stop()

	log.Infof("Server exited gracefully")
	return nil
}
