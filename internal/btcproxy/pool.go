// Package btcproxy fronts one or more bitcoind RPC endpoints behind a single
// Pool that offers the same calls as an Endpoint, adding failover and a
// cache of fetched blocks (other calls are not cached). No binary in cmd/
// constructs a Pool. Grounded on
// the teacher's provider pool: round-robin rotation plus a per-endpoint
// circuit breaker, here applied to Bitcoin Core RPC endpoints instead of a
// multi-chain balance provider.
package btcproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/scanner"
)

// Endpoint is the subset of btcrpc.Client the pool fails over across.
type Endpoint interface {
	GetBlockCount(ctx context.Context) (int32, error)
	GetBlockHash(ctx context.Context, height int32) (chainhash.Hash, error)
	GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error)
	FetchPrevoutValue(ctx context.Context, txid [32]byte, vout uint32) (uint64, error)
}

// Pool round-robins across endpoints, skipping any whose circuit breaker is
// open, and caches the last few fetched blocks so a reorg's common-ancestor
// walk doesn't re-fetch blocks it already holds.
type Pool struct {
	endpoints []Endpoint
	breakers  []*scanner.CircuitBreaker
	current   atomic.Int32

	mu        sync.Mutex
	blockCache map[chainhash.Hash]*wire.MsgBlock
	cacheOrder []chainhash.Hash
	cacheSize  int
}

// New builds a failover pool over the given endpoints, caching up to
// cacheSize recently fetched blocks.
func New(cacheSize int, endpoints ...Endpoint) *Pool {
	breakers := make([]*scanner.CircuitBreaker, len(endpoints))
	for i := range endpoints {
		breakers[i] = scanner.NewCircuitBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerCooldown)
	}
	if cacheSize <= 0 {
		cacheSize = 16
	}
	return &Pool{
		endpoints:  endpoints,
		breakers:   breakers,
		blockCache: make(map[chainhash.Hash]*wire.MsgBlock),
		cacheSize:  cacheSize,
	}
}

func (p *Pool) nextIndex() int {
	idx := p.current.Add(1)
	return int(idx-1) % len(p.endpoints)
}

// GetBlockCount returns the first responsive endpoint's tip height.
func (p *Pool) GetBlockCount(ctx context.Context) (int32, error) {
	var allErrors []error
	for range len(p.endpoints) {
		idx := p.nextIndex()
		ep, cb := p.endpoints[idx], p.breakers[idx]
		if !cb.Allow() {
			allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, config.ErrCircuitOpen))
			continue
		}
		height, err := ep.GetBlockCount(ctx)
		if err == nil {
			cb.RecordSuccess()
			return height, nil
		}
		cb.RecordFailure()
		allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, err))
		if config.IsTransient(err) {
			slog.Warn("btcproxy: endpoint failed, trying next", "endpoint", idx, "error", err)
			continue
		}
		return 0, err
	}
	return 0, fmt.Errorf("all bitcoind endpoints failed: %w", errors.Join(allErrors...))
}

// GetBlockHash fails over across endpoints the same way GetBlockCount does.
func (p *Pool) GetBlockHash(ctx context.Context, height int32) (chainhash.Hash, error) {
	var allErrors []error
	for range len(p.endpoints) {
		idx := p.nextIndex()
		ep, cb := p.endpoints[idx], p.breakers[idx]
		if !cb.Allow() {
			allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, config.ErrCircuitOpen))
			continue
		}
		hash, err := ep.GetBlockHash(ctx, height)
		if err == nil {
			cb.RecordSuccess()
			return hash, nil
		}
		cb.RecordFailure()
		allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, err))
		if config.IsTransient(err) {
			continue
		}
		return chainhash.Hash{}, err
	}
	return chainhash.Hash{}, fmt.Errorf("all bitcoind endpoints failed: %w", errors.Join(allErrors...))
}

// GetBlock serves from the cache when present, otherwise fails over across
// endpoints and caches the result.
func (p *Pool) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	p.mu.Lock()
	if block, ok := p.blockCache[hash]; ok {
		p.mu.Unlock()
		return block, nil
	}
	p.mu.Unlock()

	var allErrors []error
	for range len(p.endpoints) {
		idx := p.nextIndex()
		ep, cb := p.endpoints[idx], p.breakers[idx]
		if !cb.Allow() {
			allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, config.ErrCircuitOpen))
			continue
		}
		block, err := ep.GetBlock(ctx, hash)
		if err == nil {
			cb.RecordSuccess()
			p.cacheBlock(hash, block)
			return block, nil
		}
		cb.RecordFailure()
		allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, err))
		if config.IsTransient(err) {
			slog.Warn("btcproxy: endpoint failed fetching block, trying next",
				"endpoint", idx, "hash", hash.String(), "error", err)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("all bitcoind endpoints failed for block %s: %w", hash, errors.Join(allErrors...))
}

// FetchPrevoutValue implements ordtrack.PrevoutSource across the pool.
func (p *Pool) FetchPrevoutValue(ctx context.Context, txid [32]byte, vout uint32) (uint64, error) {
	var allErrors []error
	for range len(p.endpoints) {
		idx := p.nextIndex()
		ep, cb := p.endpoints[idx], p.breakers[idx]
		if !cb.Allow() {
			allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, config.ErrCircuitOpen))
			continue
		}
		value, err := ep.FetchPrevoutValue(ctx, txid, vout)
		if err == nil {
			cb.RecordSuccess()
			return value, nil
		}
		cb.RecordFailure()
		allErrors = append(allErrors, fmt.Errorf("endpoint %d: %w", idx, err))
		if config.IsTransient(err) {
			continue
		}
		return 0, err
	}
	return 0, fmt.Errorf("all bitcoind endpoints failed: %w", errors.Join(allErrors...))
}

func (p *Pool) cacheBlock(hash chainhash.Hash, block *wire.MsgBlock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.blockCache[hash]; exists {
		return
	}
	p.blockCache[hash] = block
	p.cacheOrder = append(p.cacheOrder, hash)
	for len(p.cacheOrder) > p.cacheSize {
		evict := p.cacheOrder[0]
		p.cacheOrder = p.cacheOrder[1:]
		delete(p.blockCache, evict)
	}
}
