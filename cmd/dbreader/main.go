// Command dbreader serves the read-only JSON-RPC façade (§6.4) over an
// already-indexed sqlite database, independent of the indexer process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brc20idx/indexer/internal/api"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/db"
	"github.com/brc20idx/indexer/internal/logging"
	"github.com/brc20idx/indexer/internal/store/sqlitestore"
)

var version = "dev"

func main() {
	logLevel := flag.String("log-level", "", "trace|debug|info|warn|error, overrides LOG_LEVEL")
	flag.Parse()

	if err := run(*logLevel); err != nil {
		slog.Error("dbreader exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logLevelOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}

	logCloser, err := logging.SetupWithPrefix(cfg.LogLevel, cfg.LogDir, "dbreader", "dbreader")
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	database, err := db.New(cfg.SqlitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	st := sqlitestore.New(database)
	defer st.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: api.Router(cfg, st, version),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dbreader listening", "addr", srv.Addr, "network", cfg.NetworkType)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
