package commit

import (
	"context"
	"fmt"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/store"
)

// ErrUnrecoverableReorg is returned when a reorg reaches further back than
// any retained savepoint; the caller must stop and require manual recovery
// (§4.4.2).
var ErrUnrecoverableReorg = config.ErrUnrecoverableReorg

// BlockSource is the minimal view of a fetched block the controller needs
// to detect a reorg and persist a header.
type BlockSource struct {
	Height    int32
	Hash      [32]byte
	PrevHash  [32]byte
	Timestamp int64
}

// Controller commits one block's events at a time, maintaining the
// cumulative event-hash chain and the savepoint ladder used to recover from
// reorgs without replaying from genesis.
type Controller struct {
	Store   store.Store
	Network config.Network
}

// NewController builds a Controller bound to a store and network (the
// network selects the savepoint cadence and tip-distance threshold).
func NewController(s store.Store, network config.Network) *Controller {
	return &Controller{Store: s, Network: network}
}

// DetectReorg compares the incoming block's declared previous-block-hash
// against the locally stored header at height-1. No match (and a header is
// present) means the chain has reorganized since that block was indexed
// (§4.4.1).
func (c *Controller) DetectReorg(ctx context.Context, block BlockSource) (bool, error) {
	if block.Height == 0 {
		return false, nil
	}
	prev, ok, err := c.Store.GetBlockHeader(ctx, block.Height-1)
	if err != nil {
		return false, fmt.Errorf("commit: detect reorg at %d: %w", block.Height, err)
	}
	if !ok {
		return false, nil
	}
	return prev.Hash != block.PrevHash, nil
}

// FindReorgDepth checks the retained savepoints, newest first, asking
// hashAtHeight for the node's canonical hash at each savepoint height. It
// returns the height of the newest savepoint whose stored hash matches, or
// ErrUnrecoverableReorg if none does. Only savepoint heights are compared:
// stored block headers between savepoints are not consulted, so the
// returned height can lie below the actual fork point.
func (c *Controller) FindReorgDepth(ctx context.Context, height int32, hashAtHeight func(int32) ([32]byte, error)) (int32, error) {
	sps, err := c.Store.Savepoints(ctx)
	if err != nil {
		return 0, fmt.Errorf("commit: find reorg depth: %w", err)
	}
	// Newest-first: a savepoint is a height we know we can safely restore
	// to, so walk down the ladder looking for the first one that still
	// matches the node's chain.
	for i := len(sps) - 1; i >= 0; i-- {
		sp := sps[i]
		want, err := hashAtHeight(sp.Height)
		if err != nil {
			return 0, fmt.Errorf("commit: query node hash at %d: %w", sp.Height, err)
		}
		if want == sp.Hash {
			return sp.Height, nil
		}
	}
	return 0, fmt.Errorf("%w: no retained savepoint matches the node's chain", ErrUnrecoverableReorg)
}

// Rollback discards all persisted state at or after height, restoring the
// indexer to the state it was in immediately after committing height-1.
// Callers must re-run the tracker and event engine for height onward after
// this returns (§4.4.2).
func (c *Controller) Rollback(ctx context.Context, height int32) error {
	if err := c.Store.DeleteBlocksFrom(ctx, height); err != nil {
		return fmt.Errorf("commit: rollback from %d: %w", height, err)
	}
	if err := c.Store.PruneSavepointsBefore(ctx, height); err != nil {
		return fmt.Errorf("commit: prune savepoints before %d: %w", height, err)
	}
	return nil
}

// CommitBlock folds a block's events onto the hash chain, persists the
// header, balances, and events, and — when the block is within savepoint
// distance of the node's tip on the configured cadence — records a
// savepoint (§4.4.1, §4.4.3).
func (c *Controller) CommitBlock(ctx context.Context, block BlockSource, events []brc20.Event, balances map[brc20.BalanceKey]brc20.Balance, tipHeight int32, progTraceHash *[32]byte, indexedAtUnixNano int64) error {
	blockHash := BlockEventHash(events)

	// §4.4.1 step 3's base case: at the network's first BRC-20 height the
	// cumulative hash IS the block hash, not a fold over a zero prefix.
	var cumulative [32]byte
	if block.Height == config.Activations(c.Network).FirstBRC20Height {
		cumulative = blockHash
	} else {
		prevCumulative, err := c.previousCumulativeHash(ctx, block.Height)
		if err != nil {
			return err
		}
		cumulative = CumulativeEventHash(prevCumulative, blockHash)
	}

	header := store.BlockHeader{
		Height:            block.Height,
		Hash:              block.Hash,
		PrevHash:          block.PrevHash,
		Timestamp:         block.Timestamp,
		CumulativeHash:    cumulative,
		BlockEventHash:    blockHash,
		ProgTraceHash:     progTraceHash,
		IndexedAtUnixNano: indexedAtUnixNano,
	}
	if err := c.Store.PutBlockHeader(ctx, header); err != nil {
		return err
	}
	if err := c.Store.AppendEvents(ctx, block.Height, events); err != nil {
		return err
	}
	for key, bal := range balances {
		if err := c.Store.PutBalance(ctx, key, bal); err != nil {
			return err
		}
	}

	if c.shouldSavepoint(block.Height, tipHeight) {
		if err := c.Store.PutSavepoint(ctx, store.Savepoint{Height: block.Height, Hash: block.Hash}); err != nil {
			return err
		}
		// §4.4.3: retain only the most recent MaxSavepoints rungs.
		keepFrom := block.Height - config.SavepointInterval(c.Network)*int32(config.MaxSavepoints-1)
		if keepFrom > 0 {
			if err := c.Store.PruneSavepointsBefore(ctx, keepFrom); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Controller) previousCumulativeHash(ctx context.Context, height int32) ([32]byte, error) {
	if height == 0 {
		return [32]byte{}, nil
	}
	prev, ok, err := c.Store.GetBlockHeader(ctx, height-1)
	if err != nil {
		return [32]byte{}, fmt.Errorf("commit: previous cumulative hash at %d: %w", height, err)
	}
	if !ok {
		return [32]byte{}, nil
	}
	return prev.CumulativeHash, nil
}

func (c *Controller) shouldSavepoint(height, tipHeight int32) bool {
	if tipHeight-height > config.ChainTipDistance(c.Network) {
		return false
	}
	interval := config.SavepointInterval(c.Network)
	return interval > 0 && height%interval == 0
}
