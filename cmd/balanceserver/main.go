// Command balanceserver exposes a minimal HTTP endpoint for looking up a
// pkscript's BRC-20 balances, the "balance-lookup HTTP endpoint" external
// collaborator spec.md §1 lists separately from the JSON-RPC façade.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apimw "github.com/brc20idx/indexer/internal/api/middleware"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/db"
	"github.com/brc20idx/indexer/internal/logging"
	"github.com/brc20idx/indexer/internal/store"
	"github.com/brc20idx/indexer/internal/store/sqlitestore"
)

var version = "dev"

func main() {
	logLevel := flag.String("log-level", "", "trace|debug|info|warn|error, overrides LOG_LEVEL")
	flag.Parse()

	if err := run(*logLevel); err != nil {
		slog.Error("balanceserver exited with error", "error", err)
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

	logCloser, err := logging.SetupWithPrefix(cfg.LogLevel, cfg.LogDir, "balanceserver", "balanceserver")
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
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort+1),
		Handler: router(st, version),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("balanceserver listening", "addr", srv.Addr)
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

func router(s store.Store, version string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(apimw.RequestLogging)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})

	r.Get("/balance/{pkscript}", balanceHandler(s))

	return r
}

// balanceHandler returns every ticker balance held by a pkscript, keyed by
// lowercase ticker, matching the shape the façade's getUTXOInfo-adjacent
// balance lookups already use in §6.4.
func balanceHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkScript := chi.URLParam(r, "pkscript")
		if pkScript == "" {
			http.Error(w, "missing pkscript", http.StatusBadRequest)
			return
		}

		balances, err := s.BalancesForPkScript(r.Context(), pkScript)
		if err != nil {
			slog.Error("balanceserver: lookup failed", "pkscript", pkScript, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(balances); err != nil {
			slog.Error("balanceserver: encode response failed", "error", err)
		}
	}
}
