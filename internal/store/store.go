// Package store defines the persisted interface the commit controller and
// JSON-RPC façade use to read and write indexer state (§6.1), independent
// of the backing engine.
package store

import (
	"context"
	"math/big"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/ids"
	"github.com/brc20idx/indexer/internal/ordtrack"
)

// BlockHeader is the minimal per-height record the reorg controller needs
// to detect chain divergence (§4.4).
type BlockHeader struct {
	Height            int32
	Hash              [32]byte
	PrevHash          [32]byte
	Timestamp         int64
	CumulativeHash    [32]byte
	BlockEventHash    [32]byte
	ProgTraceHash     *[32]byte
	IndexedAtUnixNano int64
}

// Savepoint is a restorable snapshot of indexer state at a given height,
// used to roll back a recoverable reorg without replaying from genesis
// (§4.4).
type Savepoint struct {
	Height int32
	Hash   [32]byte
}

// InscriptionRecord is the durable, queryable form of an inscription for
// the façade's lookup operations (§6.1 ord_inscription_info, §6.4).
type InscriptionRecord struct {
	Id                ids.InscriptionId
	Number            int32
	SequenceNumber    uint32
	GenesisHeight     int32
	CurrentSatpoint   ids.Satpoint
	ContentType       string
	IsJSONOrText      bool
	IsCursedForBRC20  bool
	ParentId          *ids.InscriptionId
}

// Store is the full persisted surface the commit controller, ticker/balance
// engine, and API façade share. Implementations must make block-scoped
// writes atomic: either everything committed for a height is visible, or
// nothing is.
type Store interface {
	// Block & chain state (§6.1 height_to_block_header,
	// height_to_last_sequence_number).
	GetBlockHeader(ctx context.Context, height int32) (BlockHeader, bool, error)
	PutBlockHeader(ctx context.Context, h BlockHeader) error
	LatestHeight(ctx context.Context) (int32, bool, error)
	DeleteBlocksFrom(ctx context.Context, height int32) error

	// UTXO & sequence state, exposed so the tracker can be wired directly
	// against the durable store (ordtrack.UTXOStore / InscriptionStore /
	// SequenceAllocator are satisfied by the sqlite implementation).
	UTXOs() ordtrack.UTXOStore
	Inscriptions() ordtrack.InscriptionStore
	Sequences() ordtrack.SequenceAllocator

	// Inscription lookups for the façade (§6.4).
	GetInscription(ctx context.Context, id ids.InscriptionId) (InscriptionRecord, bool, error)
	GetInscriptionBySequence(ctx context.Context, seq uint32) (InscriptionRecord, bool, error)
	GetUTXOInfo(ctx context.Context, op ids.Outpoint) (ordtrack.UtxoEntry, bool, error)

	// BRC-20 domain state (§6.1 brc20_tickers, brc20_current_balances,
	// brc20_historic_balances, brc20_events, brc20_light_events,
	// brc20_cumulative_event_hashes, brc20_block_hashes).
	PutTicker(ctx context.Context, t brc20.Ticker) error
	GetTicker(ctx context.Context, tick string) (brc20.Ticker, bool, error)
	AllTickers(ctx context.Context) ([]brc20.Ticker, error)

	PutBalance(ctx context.Context, key brc20.BalanceKey, bal brc20.Balance) error
	GetBalance(ctx context.Context, key brc20.BalanceKey) (brc20.Balance, bool, error)
	BalancesForPkScript(ctx context.Context, pkScript string) (map[string]brc20.Balance, error)

	AppendEvents(ctx context.Context, height int32, events []brc20.Event) error
	// EventsForHeight returns the canonical event strings recorded for a
	// height, in emission order — for display and hash re-derivation, not
	// for re-driving the balance engine.
	EventsForHeight(ctx context.Context, height int32) ([]string, error)

	PutSavepoint(ctx context.Context, sp Savepoint) error
	Savepoints(ctx context.Context) ([]Savepoint, error)
	PruneSavepointsBefore(ctx context.Context, height int32) error

	// Swap-module balances, consulted by the BRC20SWAPREFUND synthesis at
	// the activation height (§4.5.1 supplemental feature).
	SwapBalancesSnapshot(ctx context.Context) (map[brc20.BalanceKey]*big.Int, error)

	IndexerVersion(ctx context.Context) (int, error)
	SetIndexerVersion(ctx context.Context, version int) error

	Close() error
}

// ErrNotFound is returned by lookups with no matching row; callers that
// want a zero-value/false pair should prefer the (value, bool, error) forms
// above, this is for pass-through APIs (e.g. a future cursor walk) that
// can't use that shape.
var ErrNotFound = storeNotFoundError{}

type storeNotFoundError struct{}

func (storeNotFoundError) Error() string { return "store: not found" }
