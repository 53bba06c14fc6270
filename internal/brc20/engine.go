package brc20

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ids"
)

// ErrMintRejected and ErrTransferRejected mark silent protocol drops, the
// same way ErrTickerRejected does for deploys (§4.3.4, §4.3.5, §7
// malformed-input handling).
var (
	ErrMintRejected     = errors.New("brc20: mint rejected")
	ErrTransferRejected = errors.New("brc20: transfer rejected")
)

// opReturnPrefix is the single-byte OP_RETURN opcode the destination
// pkscript starts with for a burn destination, per §6.6.
var opReturnPrefix = mustHexByte(config.OpReturnPrefixHex)

// progOpReturnPkScript is the fixed pkscript BRC20-Prog deposits target.
var progOpReturnPkScript = mustHexBytes(config.BRC20ProgOpReturnPkScriptHex)

func mustHexByte(s string) byte {
	b := mustHexBytes(s)
	return b[0]
}

func mustHexBytes(s string) []byte {
	out := make([]byte, len(s)/2)
	for i := range out {
		var hi, lo byte
		fmt.Sscanf(s[i*2:i*2+2], "%02x", &hi)
		_ = lo
		out[i] = hi
	}
	return out
}

// Engine owns the in-memory caches for tickers, balances, and transfer
// validity, and produces the append-only per-block event stream. It is the
// single owning value the commit controller drives per block (§3 Ownership,
// §5 concurrency — one mutable engine, no internal locking of its own).
type Engine struct {
	Activations config.ActivationHeights
	Tickers     map[string]*Ticker
	Balances    *BalanceStore
	Transfers   map[ids.InscriptionId]*PendingTransfer
	Predeploys  map[ids.InscriptionId]*PredeployRecord
	ProgOps     map[ids.InscriptionId]*PendingProgOp
	Prog        ProgClient // nil when BRC20_PROG_ENABLED=false
	ProgTxIdx   int

	Events []Event
}

// NewEngine creates an empty engine for the given network's activation
// heights.
func NewEngine(activations config.ActivationHeights, prog ProgClient) *Engine {
	return &Engine{
		Activations: activations,
		Tickers:     make(map[string]*Ticker),
		Balances:    NewBalanceStore(),
		Transfers:   make(map[ids.InscriptionId]*PendingTransfer),
		Predeploys:  make(map[ids.InscriptionId]*PredeployRecord),
		ProgOps:     make(map[ids.InscriptionId]*PendingProgOp),
		Prog:        prog,
	}
}

// emit appends ev to the current block's event stream.
func (e *Engine) emit(ev Event) {
	e.Events = append(e.Events, ev)
}

// ProcessPredeploy records a predeploy-inscribe's commitment hash for later
// 6-byte ticker deploys to reference (§4.3.3 rule 6).
func (e *Engine) ProcessPredeploy(inscriptionId ids.InscriptionId, blockHeight int32, predeployerPkScript, hash []byte) {
	e.Predeploys[inscriptionId] = &PredeployRecord{Hash: hash, BlockHeight: blockHeight}
	e.emit(Event{
		Type:                EventPredeployInscribe,
		InscriptionId:       inscriptionId,
		BlockHeight:         blockHeight,
		PredeployerPkScript: predeployerPkScript,
		Hash:                hash,
	})
}

// ProcessDeploy applies §4.3.3 admission and, on success, admits the
// ticker and emits a deploy-inscribe event. A rejection is silent: no event,
// no state mutation, and the returned error wraps ErrTickerRejected.
func (e *Engine) ProcessDeploy(req DeployRequest, pkScript []byte) error {
	req.LookupPredeploy = func(id ids.InscriptionId) (*PredeployRecord, bool) {
		r, ok := e.Predeploys[id]
		return r, ok
	}

	ticker, err := AdmitDeploy(req, e.Activations, func(key string) bool {
		_, ok := e.Tickers[key]
		return ok
	})
	if err != nil {
		return err
	}

	e.Tickers[ticker.Ticker] = ticker
	e.emit(Event{
		Type:           EventDeployInscribe,
		InscriptionId:  req.InscriptionId,
		PkScript:       pkScript,
		Ticker:         ticker.Ticker,
		OriginalTicker: ticker.OriginalTicker,
		Decimals:       ticker.Decimals,
		MaxSupply:      ticker.MaxSupply,
		LimitPerMint:   ticker.LimitPerMint,
		IsSelfMint:     ticker.IsSelfMint,
	})
	return nil
}

// ProcessMint applies §4.3.4. amountStr is required (no default); a missing
// or malformed amount, unknown ticker, exhausted supply, or an over-limit
// non-partial mint are all silent rejections.
func (e *Engine) ProcessMint(tickerKey string, pkScript []byte, amountStr *string, parentId *ids.InscriptionId, inscriptionId ids.InscriptionId) error {
	ticker, ok := e.Tickers[strings.ToLower(tickerKey)]
	if !ok {
		return fmt.Errorf("%w: unknown ticker %q", ErrMintRejected, tickerKey)
	}
	if ticker.RemainingSupply.Sign() <= 0 {
		return fmt.Errorf("%w: ticker %q fully minted", ErrMintRejected, tickerKey)
	}

	amount, err := GetAmountValue(amountStr, ticker.Decimals, nil, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMintRejected, err)
	}
	if amount == nil {
		return fmt.Errorf("%w: amount is required", ErrMintRejected)
	}
	if amount.Cmp(ticker.LimitPerMint) > 0 {
		return fmt.Errorf("%w: amount exceeds limit_per_mint", ErrMintRejected)
	}
	if ticker.IsSelfMint {
		if parentId == nil || *parentId != ticker.DeployInscriptionId {
			return fmt.Errorf("%w: self-mint requires parent == deploy inscription", ErrMintRejected)
		}
	}

	if amount.Cmp(ticker.RemainingSupply) > 0 {
		amount = new(big.Int).Set(ticker.RemainingSupply)
	}

	ticker.RemainingSupply.Sub(ticker.RemainingSupply, amount)
	e.Balances.CreditOverall(ticker.Ticker, pkScript, amount)

	e.emit(Event{
		Type:           EventMintInscribe,
		InscriptionId:  inscriptionId,
		PkScript:       pkScript,
		Ticker:         ticker.Ticker,
		OriginalTicker: ticker.OriginalTicker,
		Decimals:       ticker.Decimals,
		Amount:         amount,
		ParentId:       parentId,
	})
	return nil
}

// ProcessTransferInscribe applies the inscribe phase of §4.3.5: locks
// `amount` out of the source's available balance and marks the inscription
// TransferValid.
func (e *Engine) ProcessTransferInscribe(tickerKey string, pkScript []byte, amountStr *string, inscriptionId ids.InscriptionId) error {
	ticker, ok := e.Tickers[strings.ToLower(tickerKey)]
	if !ok {
		return fmt.Errorf("%w: unknown ticker %q", ErrTransferRejected, tickerKey)
	}

	amount, err := GetAmountValue(amountStr, ticker.Decimals, nil, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}
	if amount == nil {
		return fmt.Errorf("%w: amount is required", ErrTransferRejected)
	}

	bal := e.Balances.Get(ticker.Ticker, pkScript)
	if bal.Available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient available balance", ErrTransferRejected)
	}

	e.Balances.LockAvailable(ticker.Ticker, pkScript, amount)
	e.Transfers[inscriptionId] = &PendingTransfer{Ticker: ticker.Ticker, Amount: amount, Status: TransferValid}

	e.emit(Event{
		Type:           EventTransferInscribe,
		InscriptionId:  inscriptionId,
		PkScript:       pkScript,
		Ticker:         ticker.Ticker,
		OriginalTicker: ticker.OriginalTicker,
		Decimals:       ticker.Decimals,
		Amount:         amount,
	})
	return nil
}

// TransferTransferParams carries everything the transfer phase of §4.3.5
// needs about the move the ordinal tracker observed.
type TransferTransferParams struct {
	InscriptionId  ids.InscriptionId
	SourcePkScript []byte
	SpentPkScript  []byte // nil when sent as fee with no destination output
	SentAsFee      bool
	Txid           [32]byte
	BlockHeight    int32
	BlockTime      int64
}

// ProcessTransferTransfer applies the transfer phase of §4.3.5, including
// burn and BRC20-Prog deposit routing. Once an inscription is TransferUsed
// this is a no-op (§8 transfer idempotence), returning nil.
func (e *Engine) ProcessTransferTransfer(p TransferTransferParams) error {
	pending, ok := e.Transfers[p.InscriptionId]
	if !ok || pending.Status != TransferValid {
		return nil
	}

	ticker := e.Tickers[pending.Ticker]
	if ticker == nil {
		return fmt.Errorf("%w: ticker for pending transfer vanished", ErrTransferRejected)
	}
	amount := pending.Amount
	pending.Status = TransferUsed

	switch {
	case p.SentAsFee && len(p.SpentPkScript) == 0:
		e.Balances.UnlockAvailable(ticker.Ticker, p.SourcePkScript, amount)
		e.emit(Event{
			Type:           EventTransferTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			Txid:           p.Txid,
		})
		return nil

	case len(p.SpentPkScript) > 0 && p.SpentPkScript[0] == opReturnPrefix:
		e.Balances.DebitOverall(ticker.Ticker, p.SourcePkScript, amount)
		ticker.BurnedSupply.Add(ticker.BurnedSupply, amount)
		e.emit(Event{
			Type:           EventTransferTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			SpentPkScript:  p.SpentPkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			Txid:           p.Txid,
		})
		return nil

	case bytes.Equal(p.SpentPkScript, progOpReturnPkScript) && e.progEnabledFor(ticker, p.BlockHeight):
		e.Balances.DebitOverall(ticker.Ticker, p.SourcePkScript, amount)
		e.Balances.CreditOverall(ticker.Ticker, progShadowPkScript(ticker.Ticker), amount)
		if e.Prog != nil {
			_, _ = e.Prog.Deposit(ticker.Ticker, p.SourcePkScript, amount, p.BlockHeight)
		}
		e.emit(Event{
			Type:           EventTransferTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			SpentPkScript:  p.SpentPkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			Txid:           p.Txid,
		})
		return nil

	case len(p.SpentPkScript) > 0 && bytes.Equal(p.SpentPkScript, progOpReturnPkScript):
		// Prog not yet active for this ticker/height: burn instead.
		e.Balances.DebitOverall(ticker.Ticker, p.SourcePkScript, amount)
		ticker.BurnedSupply.Add(ticker.BurnedSupply, amount)
		e.emit(Event{
			Type:           EventTransferTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			SpentPkScript:  p.SpentPkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			Txid:           p.Txid,
		})
		return nil

	default:
		e.Balances.CreditOverall(ticker.Ticker, p.SpentPkScript, amount)
		e.Balances.DebitOverall(ticker.Ticker, p.SourcePkScript, amount)
		e.emit(Event{
			Type:           EventTransferTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			SpentPkScript:  p.SpentPkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			Txid:           p.Txid,
		})
		return nil
	}
}

// progEnabledFor reports whether BRC20-Prog deposits are accepted for this
// ticker at this height, matching the reference gating: deposits require the
// module to be enabled and the network past its phase1 height; before the
// all-tickers (phase2) height, only 6-byte original tickers are eligible,
// everything shorter still burns (§4.3.5/§6.6).
func (e *Engine) progEnabledFor(ticker *Ticker, height int32) bool {
	if e.Prog == nil {
		return false
	}
	if height < e.Activations.FirstBRC20ProgPhase1Height {
		return false
	}
	if height < e.Activations.FirstBRC20ProgAllTickersHeight && len(ticker.OriginalTicker) < 6 {
		return false
	}
	return true
}

// progShadowPkScript is the module's internal holding pkscript for a given
// ticker — a deterministic, collision-free key distinct from any real
// bitcoin pkscript.
func progShadowPkScript(ticker string) []byte {
	return append([]byte("\x00brc20prog-shadow:"), ticker...)
}
