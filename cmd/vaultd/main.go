package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zhanglu0523/rifi-vault/services/vaultd"
	"github.com/zhanglu0523/rifi-vault/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to vaultd config (TOML)")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := vaultd.LoadConfig(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	var db storage.Database
	if cfg.DataDir == "" {
		logger.Warn("no data_dir configured, running with in-memory state")
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("open database", "path", cfg.DataDir, "error", err)
			os.Exit(1)
		}
	}

	node, err := vaultd.NewNode(cfg, db, logger)
	if err != nil {
		logger.Error("start node", "error", err)
		_ = db.Close()
		os.Exit(1)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Error("close node", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           vaultd.NewServer(node, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", "addr", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("VAULTD_LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
