package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/btcrpc"
	"github.com/brc20idx/indexer/internal/commit"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ordtrack"
	"github.com/brc20idx/indexer/internal/progrpc"
	"github.com/brc20idx/indexer/internal/reporter"
	"github.com/brc20idx/indexer/internal/store"
	"github.com/brc20idx/indexer/internal/store/sqlitestore"
)

// pollInterval is how often the updater checks for a new tip once it has
// caught up with the node, mirroring the teacher's scanner poll cadence.
const pollInterval = 10 * time.Second

// updater is the single owning value that drives the tracker and event
// engine one block at a time; the commit controller and store are the only
// durable collaborators it touches (§5, §9 "Global engine state").
type updater struct {
	cfg         *config.Config
	network     config.Network
	activations config.ActivationHeights

	store *sqlitestore.Store
	node  *btcrpc.Client
	ctrl  *commit.Controller
	prog  *progrpc.Client // nil when BRC20_PROG_ENABLED=false

	reporter *reporter.Reporter

	engine  *brc20.Engine
	tracker *ordtrack.Tracker
}

// resetTracker (re)builds the ordinal tracker over the current store and
// sequence state; called at startup and whenever the engine is reset after
// a reorg rollback.
func (u *updater) resetTracker() {
	u.tracker = ordtrack.NewTracker(u.store.UTXOs(), u.store.Inscriptions(), u.node, u.store.Sequences())
}

// loop resumes from the newest retained savepoint (or the network's first
// inscription height if none) and walks forward, committing each block in
// turn and polling for new blocks once it catches up with the node's tip
// (§4.4.4, §5). Engine caches are not persisted across process restarts;
// resuming from the newest savepoint and replaying forward gives a single
// recovery code path shared by both a cold start and a detected reorg
// (see DESIGN.md).
func (u *updater) loop(ctx context.Context) error {
	height, err := u.resumeHeight(ctx)
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			slog.Info("shutting down at block boundary", "height", height)
			return nil
		}

		tip, err := u.node.GetBlockCount(ctx)
		if err != nil {
			return err
		}
		if height > tip {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
			continue
		}

		nextHeight, err := u.processHeight(ctx, height, tip)
		if err != nil {
			return err
		}
		height = nextHeight
	}
}

// resumeHeight restores the store to the newest retained savepoint (if
// any) and returns the height processing should resume from.
func (u *updater) resumeHeight(ctx context.Context) (int32, error) {
	sps, err := u.store.Savepoints(ctx)
	if err != nil {
		return 0, err
	}
	start := u.activations.FirstInscriptionHeight
	if len(sps) > 0 {
		start = sps[len(sps)-1].Height + 1
	}
	if err := u.ctrl.Rollback(ctx, start); err != nil {
		return 0, err
	}
	u.engine = brc20.NewEngine(u.activations, u.engine.Prog)
	u.resetTracker()
	slog.Info("resuming", "height", start)
	return start, nil
}

// processHeight fetches and processes the block at height, handling a
// detected reorg by rolling back and returning the common-ancestor height
// to resume from instead of height+1.
func (u *updater) processHeight(ctx context.Context, height, tip int32) (int32, error) {
	hash, err := u.node.GetBlockHash(ctx, height)
	if err != nil {
		return 0, err
	}
	block, err := u.node.GetBlock(ctx, hash)
	if err != nil {
		return 0, err
	}

	src := commit.BlockSource{
		Height:    height,
		Hash:      [32]byte(hash),
		PrevHash:  [32]byte(block.Header.PrevBlock),
		Timestamp: block.Header.Timestamp.Unix(),
	}

	reorg, err := u.ctrl.DetectReorg(ctx, src)
	if err != nil {
		return 0, err
	}
	if reorg {
		ancestor, err := u.ctrl.FindReorgDepth(ctx, height, func(h int32) ([32]byte, error) {
			nh, err := u.node.GetBlockHash(ctx, h)
			if err != nil {
				return [32]byte{}, err
			}
			return [32]byte(nh), nil
		})
		if err != nil {
			if errors.Is(err, commit.ErrUnrecoverableReorg) {
				slog.Error("unrecoverable reorg, operator must --reset", "height", height)
			}
			return 0, err
		}
		slog.Warn("reorg detected, rolling back", "from", height, "to", ancestor+1)
		if err := u.ctrl.Rollback(ctx, ancestor+1); err != nil {
			return 0, err
		}
		u.engine = brc20.NewEngine(u.activations, u.engine.Prog)
		u.resetTracker()
		return ancestor + 1, nil
	}

	if height < u.activations.FirstBRC20Height {
		// Pre-BRC20 blocks are still walked to keep the UTXO/inscription
		// tracker's view current, but take no part in the event hash
		// chain: persist the header only, with a zero cumulative/event hash.
		if err := u.store.PutBlockHeader(ctx, store.BlockHeader{
			Height:            src.Height,
			Hash:              src.Hash,
			PrevHash:          src.PrevHash,
			Timestamp:         src.Timestamp,
			IndexedAtUnixNano: time.Now().UnixNano(),
		}); err != nil {
			return 0, err
		}
		if _, err := u.tracker.ProcessBlock(ctx, block, height); err != nil {
			return 0, err
		}
		return height + 1, nil
	}

	u.engine.BeginBlock()

	transfers, err := u.tracker.ProcessBlock(ctx, block, height)
	if err != nil {
		return 0, err
	}
	for _, t := range transfers {
		if err := u.engine.ProcessTransfer(ctx, t); err != nil {
			return 0, err
		}
	}

	if height == config.SwapRefundHeight && u.cfg.SwapModulePkScriptHex != "" && u.cfg.SwapRefundPkScriptHex != "" {
		swapPk, err := hexDecode(u.cfg.SwapModulePkScriptHex)
		if err != nil {
			return 0, err
		}
		refundPk, err := hexDecode(u.cfg.SwapRefundPkScriptHex)
		if err != nil {
			return 0, err
		}
		u.engine.RunSwapRefund(swapPk, refundPk, height)
	}

	var progTraceHash *[32]byte
	if u.prog != nil {
		if block.Header.Timestamp.Unix() == 0 {
			return 0, config.ErrBlockTimeZero
		}
		if err := u.engine.FinaliseBlock(ctx, block.Header.Timestamp.Unix(), src.Hash); err != nil {
			return 0, err
		}
		th, err := u.prog.TraceHash(ctx, height)
		if err != nil {
			return 0, err
		}
		progTraceHash = &th
	}

	for _, t := range u.engine.Tickers {
		if err := u.store.PutTicker(ctx, *t); err != nil {
			return 0, err
		}
	}

	balances := make(map[brc20.BalanceKey]brc20.Balance, len(u.engine.Balances.All()))
	for k, v := range u.engine.Balances.All() {
		balances[k] = *v
	}

	if err := u.ctrl.CommitBlock(ctx, src, u.engine.Events, balances, tip, progTraceHash, time.Now().UnixNano()); err != nil {
		return 0, err
	}

	if u.reporter != nil {
		u.reporter.ReportBlock(ctx, height, brc20.JoinBlockEvents(u.engine.Events))
	}

	slog.Info("indexed block", "height", height, "events", len(u.engine.Events), "tip", tip)
	return height + 1, nil
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
