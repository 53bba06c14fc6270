// Package commit implements the per-block commit and reorg/savepoint
// controller (§4.4): it folds each block's emitted events into the
// cumulative event-hash chain, persists the result, and keeps the chain
// recoverable across reorgs via periodic savepoints.
package commit

import (
	"crypto/sha256"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/config"
)

// BlockEventHash computes sha256 over the block's canonical event string
// (§4.4.1): the join of every event's CanonicalString with
// config.EventSeparator.
func BlockEventHash(events []brc20.Event) [32]byte {
	joined := brc20.JoinBlockEvents(events)
	return sha256.Sum256([]byte(joined))
}

// CumulativeEventHash folds a block's event hash onto the running chain:
// sha256(prevCumulative ∥ blockEventHash). The network's first BRC-20
// height is a special case handled by the caller (Controller.CommitBlock):
// its cumulative hash equals its own block event hash rather than a fold
// over this function, so this is never called for that height.
func CumulativeEventHash(prevCumulative [32]byte, blockEventHash [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, prevCumulative[:]...)
	buf = append(buf, blockEventHash[:]...)
	return sha256.Sum256(buf)
}

// CumulativeTraceHash folds an external VM's per-block trace hash onto its
// own running chain the same way, kept separate from the event hash chain
// so a trace mismatch can be diagnosed independently (§4.3 BRC20-Prog,
// §6.2 finalise_block).
func CumulativeTraceHash(prevCumulative [32]byte, blockTraceHash [32]byte) [32]byte {
	return CumulativeEventHash(prevCumulative, blockTraceHash)
}

// EventHashVersion is folded into on-disk metadata so a future change to
// the hash chain's construction can be detected instead of silently
// producing divergent hashes (§6.1 brc20_indexer_version).
const EventHashVersion = config.EventHashVersion
