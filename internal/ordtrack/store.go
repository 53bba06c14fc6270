package ordtrack

import (
	"context"

	"github.com/brc20idx/indexer/internal/ids"
)

// UTXOStore is the outpoint_to_utxo_entry column family (§6.1): the set of
// currently-unspent outpoints and the inscriptions, if any, each one
// carries. Implementations must be safe for sequential use by a single
// updater task; the tracker never accesses it concurrently.
type UTXOStore interface {
	Get(op ids.Outpoint) (UtxoEntry, bool)
	Delete(op ids.Outpoint)
	Put(op ids.Outpoint, entry UtxoEntry)
}

// PrevoutSource resolves the value of an outpoint not found in the local
// UTXOStore, the network collaborator described in §4.1 step 1 (batched,
// parallel, bounded queue; a single-call interface here, batching is the
// concern of the implementation).
type PrevoutSource interface {
	FetchPrevoutValue(ctx context.Context, txid [32]byte, vout uint32) (uint64, error)
}

// SequenceAllocator hands out the next sequence number and maintains the
// per-block persistent offset→inscription-number counters that make curse
// and reinscription detection deterministic across restarts (§9 Design
// Notes: "keep it as a pure function... so the updater can be re-run
// deterministically from savepoints").
type SequenceAllocator interface {
	NextSequenceNumber() uint32
	NextBlessedNumber() int32
	NextCursedNumber() int32
}

// MemoryUTXOStore is a trivial in-memory UTXOStore, used by tests; the
// indexer binaries use the sqlite store's UTXO accessor instead.
type MemoryUTXOStore struct {
	rows map[ids.Outpoint]UtxoEntry
}

// NewMemoryUTXOStore creates an empty in-memory UTXO store.
func NewMemoryUTXOStore() *MemoryUTXOStore {
	return &MemoryUTXOStore{rows: make(map[ids.Outpoint]UtxoEntry)}
}

func (m *MemoryUTXOStore) Get(op ids.Outpoint) (UtxoEntry, bool) {
	e, ok := m.rows[op]
	return e, ok
}

func (m *MemoryUTXOStore) Delete(op ids.Outpoint) {
	delete(m.rows, op)
}

func (m *MemoryUTXOStore) Put(op ids.Outpoint, entry UtxoEntry) {
	m.rows[op] = entry
}

// counter is a simple monotonic SequenceAllocator, the in-memory default;
// the durable store persists the last-issued values so a restart resumes
// rather than colliding with sequence numbers already on disk (§6.1
// height_to_last_sequence_number).
type counter struct {
	nextSeq     uint32
	nextBlessed int32
	nextCursed  int32
}

// NewCounter creates a SequenceAllocator whose first sequence and blessed
// numbers are lastSeq and lastBlessed themselves and whose first cursed
// number is lastCursed-1, so a fresh index passes 0, 0, 0 (sequence 0,
// blessed 0, cursed -1).
func NewCounter(lastSeq uint32, lastBlessed, lastCursed int32) SequenceAllocator {
	return &counter{nextSeq: lastSeq, nextBlessed: lastBlessed, nextCursed: lastCursed}
}

func (c *counter) NextSequenceNumber() uint32 {
	v := c.nextSeq
	c.nextSeq++
	return v
}

func (c *counter) NextBlessedNumber() int32 {
	v := c.nextBlessed
	c.nextBlessed++
	return v
}

func (c *counter) NextCursedNumber() int32 {
	c.nextCursed--
	return c.nextCursed
}
