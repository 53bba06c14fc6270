package btcproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/brc20idx/indexer/internal/config"
)

type mockEndpoint struct {
	name       string
	countErr   error
	count      int32
	blockFunc  func(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error)
	blockCalls int
}

func (m *mockEndpoint) GetBlockCount(ctx context.Context) (int32, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count, nil
}

func (m *mockEndpoint) GetBlockHash(ctx context.Context, height int32) (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func (m *mockEndpoint) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	m.blockCalls++
	if m.blockFunc != nil {
		return m.blockFunc(ctx, hash)
	}
	return wire.NewMsgBlock(&wire.BlockHeader{}), nil
}

func (m *mockEndpoint) FetchPrevoutValue(ctx context.Context, txid [32]byte, vout uint32) (uint64, error) {
	return 0, nil
}

func TestPool_FailoverOnTransientError(t *testing.T) {
	bad := &mockEndpoint{name: "bad", countErr: config.NewTransientError(errors.New("timeout"))}
	good := &mockEndpoint{name: "good", count: 800000}

	pool := New(4, bad, good)
	height, err := pool.GetBlockCount(t.Context())
	if err != nil {
		t.Fatalf("GetBlockCount: %v", err)
	}
	if height != 800000 {
		t.Errorf("height = %d, want 800000", height)
	}
}

func TestPool_CachesBlocks(t *testing.T) {
	ep := &mockEndpoint{name: "only"}
	pool := New(4, ep)

	var hash chainhash.Hash
	if _, err := pool.GetBlock(t.Context(), hash); err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if _, err := pool.GetBlock(t.Context(), hash); err != nil {
		t.Fatalf("GetBlock (cached): %v", err)
	}
	if ep.blockCalls != 1 {
		t.Errorf("endpoint called %d times, want 1 (second call should hit cache)", ep.blockCalls)
	}
}

func TestPool_AllEndpointsFail(t *testing.T) {
	bad1 := &mockEndpoint{name: "bad1", countErr: config.NewTransientError(errors.New("down"))}
	bad2 := &mockEndpoint{name: "bad2", countErr: config.NewTransientError(errors.New("down"))}

	pool := New(4, bad1, bad2)
	if _, err := pool.GetBlockCount(t.Context()); err == nil {
		t.Fatal("expected error when all endpoints fail")
	}
}
