// Command indexer runs the BRC-20 content-indexing updater: it pulls raw
// blocks from a bitcoin node, tracks ordinal transfers, drives the BRC-20
// event engine, and commits the per-block hash chain (§1-§5).
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/btcrpc"
	"github.com/brc20idx/indexer/internal/commit"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/db"
	"github.com/brc20idx/indexer/internal/logging"
	"github.com/brc20idx/indexer/internal/progrpc"
	"github.com/brc20idx/indexer/internal/reporter"
	"github.com/brc20idx/indexer/internal/store/sqlitestore"
)

var version = "dev"

func main() {
	var (
		setupFlag  = flag.Bool("setup", false, "run migrations and exit")
		resetFlag  = flag.Bool("reset", false, "discard all indexed state and re-migrate")
		reorgFlag  = flag.Int("reorg", -1, "force a rollback to the given height and exit")
		reportFlag = flag.Int("report", -1, "print the block record at the given height and exit")
		logLevel   = flag.String("log-level", "", "trace|debug|info|warn|error, overrides LOG_LEVEL")
	)
	flag.Parse()

	if err := run(*setupFlag, *resetFlag, *reorgFlag, *reportFlag, *logLevel); err != nil {
		slog.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(setupOnly, reset bool, reorgHeight, reportHeight int, logLevelOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting brc20idx indexer",
		"version", version, "network", cfg.NetworkType, "operationMode", cfg.OperationMode)

	if reset {
		if err := os.Remove(cfg.SqlitePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset: remove %s: %w", cfg.SqlitePath, err)
		}
		slog.Info("reset: removed existing database", "path", cfg.SqlitePath)
	}

	database, err := db.New(cfg.SqlitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if storedVersion, err := database.GetSetting("db_version"); err == nil && storedVersion != "" {
		var v int
		fmt.Sscanf(storedVersion, "%d", &v)
		if v != 0 && v != config.DBVersion {
			return fmt.Errorf("%w: on-disk db_version %d != %d", config.ErrSchemaMismatch, v, config.DBVersion)
		}
	}
	if err := database.SetSetting("db_version", fmt.Sprintf("%d", config.DBVersion)); err != nil {
		return fmt.Errorf("set db_version: %w", err)
	}

	if setupOnly {
		slog.Info("setup complete, exiting")
		return nil
	}

	if cfg.OperationMode == "light" {
		return fmt.Errorf("%w: OPERATION_MODE=light has no UpstreamEventSource wired yet, run in \"full\" mode", config.ErrInvalidConfig)
	}

	st := sqlitestore.New(database)
	defer st.Close()

	network := config.Network(cfg.NetworkType)
	ctrl := commit.NewController(st, network)
	ctx := rootContext()

	if reorgHeight >= 0 {
		slog.Warn("forcing rollback", "height", reorgHeight)
		if err := ctrl.Rollback(ctx, int32(reorgHeight)); err != nil {
			return fmt.Errorf("forced reorg: %w", err)
		}
		slog.Info("rollback complete", "resumeFrom", reorgHeight)
		return nil
	}

	if reportHeight >= 0 {
		hdr, ok, err := st.GetBlockHeader(ctx, int32(reportHeight))
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if !ok {
			fmt.Printf("no block record at height %d\n", reportHeight)
			return nil
		}
		fmt.Printf("height=%d hash=%s blockEventHash=%s cumulativeEventHash=%s\n",
			hdr.Height, hex.EncodeToString(hdr.Hash[:]), hex.EncodeToString(hdr.BlockEventHash[:]), hex.EncodeToString(hdr.CumulativeHash[:]))
		return nil
	}

	node := btcrpc.New(cfg.BitcoinRPCURL, cfg.BitcoinRPCUser, cfg.BitcoinRPCPasswd, cfg.BitcoinRPCLimit)

	var prog brc20.ProgClient
	var progClient *progrpc.Client
	if cfg.BRC20ProgEnabled {
		pc, err := progrpc.Dial(ctx, cfg.BRC20ProgRPCURL)
		if err != nil {
			return fmt.Errorf("dial programmable module: %w", err)
		}
		defer pc.Close()
		progClient = pc
		prog = pc
	}

	var rep *reporter.Reporter
	if cfg.ReportToIndexer {
		rep = reporter.New(cfg.ReportURL, cfg.ReportName, cfg.ReportRetries)
	}

	u := &updater{
		cfg:        cfg,
		network:    network,
		activations: config.Activations(network),
		store:      st,
		node:       node,
		ctrl:       ctrl,
		prog:       progClient,
		reporter:   rep,
		engine:     brc20.NewEngine(config.Activations(network), prog),
	}
	u.resetTracker()

	return u.loop(ctx)
}

// rootContext returns a context cancelled on SIGINT/SIGTERM; the updater
// checks it between blocks and commits any partial work at the last block
// boundary before exiting (§5 cancellation).
func rootContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx
}
