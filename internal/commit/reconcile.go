package commit

import "fmt"

// HeightTriple is the three independent height cursors the updater must
// reconcile at startup: the ordinal/UTXO tracker, the BRC-20 event engine,
// and (optionally) the programmable module's own finalised height (§4.4.4).
type HeightTriple struct {
	OrdinalHeight int32
	BRC20Height   int32
	ProgHeight    int32 // -1 when the programmable module is disabled
}

// Reconcile returns the height the updater should resume processing from:
// the minimum of the three cursors, since every module must replay forward
// to the same point to stay consistent. A programmable-module height ahead
// of the BRC-20 engine indicates its own state must be rolled back before
// resuming (the caller is expected to do so via its ProgClient before
// continuing).
func Reconcile(h HeightTriple) (resumeFrom int32, progNeedsRollback bool, err error) {
	if h.OrdinalHeight < 0 || h.BRC20Height < 0 {
		return 0, false, fmt.Errorf("commit: reconcile: negative ordinal/brc20 height %+v", h)
	}

	resumeFrom = h.OrdinalHeight
	if h.BRC20Height < resumeFrom {
		resumeFrom = h.BRC20Height
	}

	if h.ProgHeight >= 0 {
		if h.ProgHeight > resumeFrom {
			progNeedsRollback = true
		} else if h.ProgHeight < resumeFrom {
			resumeFrom = h.ProgHeight
		}
	}

	return resumeFrom, progNeedsRollback, nil
}
