package commit_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/commit"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ids"
	"github.com/brc20idx/indexer/internal/ordtrack"
	"github.com/brc20idx/indexer/internal/store"
)

// fakeStore is a minimal in-memory store.Store, enough to drive the commit
// controller's tests without a sqlite backend.
type fakeStore struct {
	headers    map[int32]store.BlockHeader
	savepoints []store.Savepoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{headers: make(map[int32]store.BlockHeader)}
}

func (s *fakeStore) GetBlockHeader(_ context.Context, height int32) (store.BlockHeader, bool, error) {
	h, ok := s.headers[height]
	return h, ok, nil
}

func (s *fakeStore) PutBlockHeader(_ context.Context, h store.BlockHeader) error {
	s.headers[h.Height] = h
	return nil
}

func (s *fakeStore) LatestHeight(_ context.Context) (int32, bool, error) {
	var max int32
	found := false
	for h := range s.headers {
		if !found || h > max {
			max = h
			found = true
		}
	}
	return max, found, nil
}

func (s *fakeStore) DeleteBlocksFrom(_ context.Context, height int32) error {
	for h := range s.headers {
		if h >= height {
			delete(s.headers, h)
		}
	}
	return nil
}

func (s *fakeStore) UTXOs() ordtrack.UTXOStore                 { return nil }
func (s *fakeStore) Inscriptions() ordtrack.InscriptionStore   { return nil }
func (s *fakeStore) Sequences() ordtrack.SequenceAllocator     { return nil }

func (s *fakeStore) GetInscription(_ context.Context, _ ids.InscriptionId) (store.InscriptionRecord, bool, error) {
	return store.InscriptionRecord{}, false, nil
}
func (s *fakeStore) GetInscriptionBySequence(_ context.Context, _ uint32) (store.InscriptionRecord, bool, error) {
	return store.InscriptionRecord{}, false, nil
}
func (s *fakeStore) GetUTXOInfo(_ context.Context, _ ids.Outpoint) (ordtrack.UtxoEntry, bool, error) {
	return ordtrack.UtxoEntry{}, false, nil
}

func (s *fakeStore) PutTicker(_ context.Context, _ brc20.Ticker) error { return nil }
func (s *fakeStore) GetTicker(_ context.Context, _ string) (brc20.Ticker, bool, error) {
	return brc20.Ticker{}, false, nil
}
func (s *fakeStore) AllTickers(_ context.Context) ([]brc20.Ticker, error) { return nil, nil }

func (s *fakeStore) PutBalance(_ context.Context, _ brc20.BalanceKey, _ brc20.Balance) error {
	return nil
}
func (s *fakeStore) GetBalance(_ context.Context, _ brc20.BalanceKey) (brc20.Balance, bool, error) {
	return brc20.Balance{}, false, nil
}
func (s *fakeStore) BalancesForPkScript(_ context.Context, _ string) (map[string]brc20.Balance, error) {
	return nil, nil
}

func (s *fakeStore) AppendEvents(_ context.Context, _ int32, _ []brc20.Event) error { return nil }
func (s *fakeStore) EventsForHeight(_ context.Context, _ int32) ([]string, error)   { return nil, nil }

func (s *fakeStore) PutSavepoint(_ context.Context, sp store.Savepoint) error {
	s.savepoints = append(s.savepoints, sp)
	return nil
}
func (s *fakeStore) Savepoints(_ context.Context) ([]store.Savepoint, error) {
	return s.savepoints, nil
}
func (s *fakeStore) PruneSavepointsBefore(_ context.Context, height int32) error {
	kept := s.savepoints[:0]
	for _, sp := range s.savepoints {
		if sp.Height >= height {
			kept = append(kept, sp)
		}
	}
	s.savepoints = kept
	return nil
}

func (s *fakeStore) SwapBalancesSnapshot(_ context.Context) (map[brc20.BalanceKey]*big.Int, error) {
	return nil, nil
}

func (s *fakeStore) IndexerVersion(_ context.Context) (int, error)    { return config.EventHashVersion, nil }
func (s *fakeStore) SetIndexerVersion(_ context.Context, _ int) error { return nil }

func (s *fakeStore) Close() error { return nil }

func sampleEvents(tick string) []brc20.Event {
	return []brc20.Event{
		{Type: brc20.EventDeployInscribe, Ticker: tick, OriginalTicker: tick},
	}
}

// TestCommitBlockGenesisBaseCase verifies that at the network's first
// BRC-20 height the cumulative hash equals the block's own event hash,
// rather than folding over a zero-valued previous cumulative hash — a fold
// would give sha256(zero ∥ blockHash), which never equals blockHash, so
// this distinguishes the base case from the naive fold.
func TestCommitBlockGenesisBaseCase(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	ctrl := commit.NewController(s, config.NetworkSignet)

	first := config.Activations(config.NetworkSignet).FirstBRC20Height
	events := sampleEvents("sig")

	if err := ctrl.CommitBlock(ctx, commit.BlockSource{Height: first}, events, nil, first, nil, 1); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}

	hdr, ok, err := s.GetBlockHeader(ctx, first)
	if err != nil || !ok {
		t.Fatalf("GetBlockHeader: ok=%v err=%v", ok, err)
	}

	want := commit.BlockEventHash(events)
	if hdr.CumulativeHash != want {
		t.Fatalf("cumulative hash at genesis = %x, want %x (the block event hash itself)", hdr.CumulativeHash, want)
	}
	if hdr.CumulativeHash != hdr.BlockEventHash {
		t.Fatalf("genesis cumulative hash must equal block event hash")
	}
}

// TestCommitBlockChainsDeterministically checks that committing two blocks
// in sequence produces the same cumulative hash as computing it by hand via
// CumulativeEventHash — the property two independent implementations must
// agree on byte-for-byte.
func TestCommitBlockChainsDeterministically(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	ctrl := commit.NewController(s, config.NetworkSignet)

	first := config.Activations(config.NetworkSignet).FirstBRC20Height
	e1 := sampleEvents("aaaa")
	e2 := sampleEvents("bbbb")

	if err := ctrl.CommitBlock(ctx, commit.BlockSource{Height: first}, e1, nil, first + 10, nil, 1); err != nil {
		t.Fatalf("commit block 1: %v", err)
	}
	if err := ctrl.CommitBlock(ctx, commit.BlockSource{Height: first + 1}, e2, nil, first + 10, nil, 2); err != nil {
		t.Fatalf("commit block 2: %v", err)
	}

	hdr2, ok, err := s.GetBlockHeader(ctx, first+1)
	if err != nil || !ok {
		t.Fatalf("GetBlockHeader: ok=%v err=%v", ok, err)
	}

	wantCumulative := commit.CumulativeEventHash(commit.BlockEventHash(e1), commit.BlockEventHash(e2))
	if hdr2.CumulativeHash != wantCumulative {
		t.Fatalf("cumulative hash at block 2 = %x, want %x", hdr2.CumulativeHash, wantCumulative)
	}
}

// TestDetectReorgNoPriorHeader ensures a fresh tracker (no stored header at
// height-1) is never mistaken for a reorg.
func TestDetectReorgNoPriorHeader(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	ctrl := commit.NewController(s, config.NetworkMainnet)

	reorg, err := ctrl.DetectReorg(ctx, commit.BlockSource{Height: 100, PrevHash: [32]byte{1}})
	if err != nil {
		t.Fatalf("DetectReorg: %v", err)
	}
	if reorg {
		t.Fatalf("DetectReorg reported a reorg with no prior header stored")
	}
}

// TestDetectReorgMismatch ensures a divergent prev-hash against a stored
// header is flagged.
func TestDetectReorgMismatch(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	ctrl := commit.NewController(s, config.NetworkMainnet)

	if err := s.PutBlockHeader(ctx, store.BlockHeader{Height: 99, Hash: [32]byte{9}}); err != nil {
		t.Fatalf("seed header: %v", err)
	}

	reorg, err := ctrl.DetectReorg(ctx, commit.BlockSource{Height: 100, PrevHash: [32]byte{1}})
	if err != nil {
		t.Fatalf("DetectReorg: %v", err)
	}
	if !reorg {
		t.Fatalf("DetectReorg missed a divergent prev-hash")
	}
}

// TestRollbackPrunesHeadersAndSavepoints verifies Rollback discards every
// header and savepoint at or after the target height.
func TestRollbackPrunesHeadersAndSavepoints(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	ctrl := commit.NewController(s, config.NetworkMainnet)

	for h := int32(100); h <= 103; h++ {
		if err := s.PutBlockHeader(ctx, store.BlockHeader{Height: h}); err != nil {
			t.Fatalf("seed header %d: %v", h, err)
		}
	}
	s.savepoints = []store.Savepoint{{Height: 100}, {Height: 102}}

	if err := ctrl.Rollback(ctx, 102); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, ok, _ := s.GetBlockHeader(ctx, 101); !ok {
		t.Fatalf("Rollback discarded a header before the target height")
	}
	if _, ok, _ := s.GetBlockHeader(ctx, 102); ok {
		t.Fatalf("Rollback left a header at the target height")
	}
	if len(s.savepoints) != 1 || s.savepoints[0].Height != 100 {
		t.Fatalf("Rollback left unexpected savepoints: %+v", s.savepoints)
	}
}
