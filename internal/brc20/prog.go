package brc20

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/brc20idx/indexer/internal/ids"
)

// ProgClient is the subset of the programmable module's JSON-RPC surface
// the event engine drives. Implementations talk to the BRC20-Prog VM over
// go-ethereum's rpc.Client; engine code never depends on the transport.
type ProgClient interface {
	Deploy(ctx context.Context, sourcePkScript, data []byte, blockHeight int32) (txCount int, err error)
	Call(ctx context.Context, sourcePkScript, contractAddr []byte, contractInscId *ids.InscriptionId, data []byte, blockHeight int32) (txCount int, err error)
	Transact(ctx context.Context, sourcePkScript, data []byte, blockHeight int32) (txCount int, err error)
	Withdraw(ctx context.Context, sourcePkScript []byte, ticker string, amount *big.Int, blockHeight int32) (ok bool, err error)
	Deposit(ticker string, sourcePkScript []byte, amount *big.Int, blockHeight int32) (int, error)
	FinaliseBlock(ctx context.Context, blockTime int64, blockHash [32]byte, txIdx int) error
}

// PendingProgOp is what an inscribe-phase brc20-prog op records for its
// transfer phase to complete, mirroring PendingTransfer for plain transfers.
type PendingProgOp struct {
	Kind           EventType // the *-inscribe event type
	Data           []byte
	ContractAddr   []byte
	ContractInscId *ids.InscriptionId
	Ticker         string
	OriginalTicker string
	Decimals       uint8
	Amount         *big.Int
}

// ProgTransferParams carries what the transfer phase of a brc20-prog op
// needs about the move the ordinal tracker observed.
type ProgTransferParams struct {
	InscriptionId ids.InscriptionId
	SourcePkScript []byte
	NewPkScript    []byte
	ByteLen        uint32
	BlockHeight    int32
	BtcTxid        *[32]byte
}

// BeginBlock resets the per-block event buffer and the brc20-prog
// transaction index counter (§4.3.6).
func (e *Engine) BeginBlock() {
	e.Events = nil
	e.ProgTxIdx = 0
}

// progActiveAt reports whether the programmable module is wired in at all.
func (e *Engine) progActiveAt(height int32) bool {
	return e.Prog != nil && height >= e.Activations.FirstBRC20ProgPhase1Height
}

// ProcessProgDeployInscribe records a pending brc20-prog contract
// deployment awaiting its transfer to the module's deposit address.
func (e *Engine) ProcessProgDeployInscribe(inscriptionId ids.InscriptionId, pkScript, data []byte, blockHeight int32) error {
	if !e.progActiveAt(blockHeight) {
		return fmt.Errorf("%w: programmable module not active", ErrTransferRejected)
	}
	if e.ProgOps == nil {
		e.ProgOps = make(map[ids.InscriptionId]*PendingProgOp)
	}
	e.ProgOps[inscriptionId] = &PendingProgOp{Kind: EventProgDeployInscribe, Data: data}
	e.emit(Event{Type: EventProgDeployInscribe, InscriptionId: inscriptionId, PkScript: pkScript, Data: data})
	return nil
}

// ProcessProgCallInscribe records a pending brc20-prog contract call.
func (e *Engine) ProcessProgCallInscribe(inscriptionId ids.InscriptionId, pkScript []byte, contractAddr []byte, contractInscId *ids.InscriptionId, data []byte, blockHeight int32) error {
	if !e.progActiveAt(blockHeight) {
		return fmt.Errorf("%w: programmable module not active", ErrTransferRejected)
	}
	if e.ProgOps == nil {
		e.ProgOps = make(map[ids.InscriptionId]*PendingProgOp)
	}
	e.ProgOps[inscriptionId] = &PendingProgOp{Kind: EventProgCallInscribe, Data: data, ContractAddr: contractAddr, ContractInscId: contractInscId}
	e.emit(Event{Type: EventProgCallInscribe, InscriptionId: inscriptionId, PkScript: pkScript, ContractAddr: contractAddr, ContractInscId: contractInscId, Data: data})
	return nil
}

// ProcessProgTransactInscribe records a pending brc20-prog raw transaction
// batch submission.
func (e *Engine) ProcessProgTransactInscribe(inscriptionId ids.InscriptionId, pkScript, data []byte, blockHeight int32) error {
	if !e.progActiveAt(blockHeight) {
		return fmt.Errorf("%w: programmable module not active", ErrTransferRejected)
	}
	if e.ProgOps == nil {
		e.ProgOps = make(map[ids.InscriptionId]*PendingProgOp)
	}
	e.ProgOps[inscriptionId] = &PendingProgOp{Kind: EventProgTransactInscribe, Data: data}
	e.emit(Event{Type: EventProgTransactInscribe, InscriptionId: inscriptionId, PkScript: pkScript, Data: data})
	return nil
}

// ProcessProgWithdrawInscribe records a pending withdrawal of ticker
// balance out of the module's shadow pkscript.
func (e *Engine) ProcessProgWithdrawInscribe(inscriptionId ids.InscriptionId, pkScript []byte, tickerKey string, amountStr *string, blockHeight int32) error {
	if !e.progActiveAt(blockHeight) {
		return fmt.Errorf("%w: programmable module not active", ErrTransferRejected)
	}
	ticker, ok := e.Tickers[tickerKeyLower(tickerKey)]
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
	if e.ProgOps == nil {
		e.ProgOps = make(map[ids.InscriptionId]*PendingProgOp)
	}
	e.ProgOps[inscriptionId] = &PendingProgOp{
		Kind:           EventProgWithdrawInscribe,
		Ticker:         ticker.Ticker,
		OriginalTicker: ticker.OriginalTicker,
		Decimals:       ticker.Decimals,
		Amount:         amount,
	}
	e.emit(Event{
		Type:           EventProgWithdrawInscribe,
		InscriptionId:  inscriptionId,
		PkScript:       pkScript,
		Ticker:         ticker.Ticker,
		OriginalTicker: ticker.OriginalTicker,
		Decimals:       ticker.Decimals,
		Amount:         amount,
	})
	return nil
}

// ProcessProgTransfer applies the transfer phase for any of the four
// brc20-prog op pairs, dispatching on the kind recorded at the inscribe
// phase (§4.3.6). A pending op with no matching transfer, or one whose
// destination pkscript doesn't satisfy its kind's routing rule, is dropped
// silently (no event, no RPC call) — the same malformed-input handling as
// a plain transfer.
func (e *Engine) ProcessProgTransfer(ctx context.Context, p ProgTransferParams) error {
	pending, ok := e.ProgOps[p.InscriptionId]
	if !ok {
		return nil
	}
	delete(e.ProgOps, p.InscriptionId)

	switch pending.Kind {
	case EventProgDeployInscribe:
		if !bytes.Equal(p.NewPkScript, progOpReturnPkScript) {
			return nil
		}
		count, err := e.Prog.Deploy(ctx, p.SourcePkScript, pending.Data, p.BlockHeight)
		if err != nil {
			return fmt.Errorf("brc20prog deploy: %w", err)
		}
		e.ProgTxIdx += count
		e.emit(Event{
			Type:          EventProgDeployTransfer,
			InscriptionId: p.InscriptionId,
			PkScript:      p.SourcePkScript,
			SpentPkScript: p.NewPkScript,
			Data:          pending.Data,
			ByteLen:       p.ByteLen,
		})
		return nil

	case EventProgCallInscribe:
		if !bytes.Equal(p.NewPkScript, progOpReturnPkScript) {
			return nil
		}
		count, err := e.Prog.Call(ctx, p.SourcePkScript, pending.ContractAddr, pending.ContractInscId, pending.Data, p.BlockHeight)
		if err != nil {
			return fmt.Errorf("brc20prog call: %w", err)
		}
		e.ProgTxIdx += count
		e.emit(Event{
			Type:           EventProgCallTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			SpentPkScript:  p.NewPkScript,
			ContractAddr:   pending.ContractAddr,
			ContractInscId: pending.ContractInscId,
			Data:           pending.Data,
			ByteLen:        p.ByteLen,
		})
		return nil

	case EventProgTransactInscribe:
		if !bytes.Equal(p.NewPkScript, progOpReturnPkScript) {
			return nil
		}
		count, err := e.Prog.Transact(ctx, p.SourcePkScript, pending.Data, p.BlockHeight)
		if err != nil {
			return fmt.Errorf("brc20prog transact: %w", err)
		}
		e.ProgTxIdx += count
		e.emit(Event{
			Type:          EventProgTransactTransfer,
			InscriptionId: p.InscriptionId,
			PkScript:      p.SourcePkScript,
			SpentPkScript: p.NewPkScript,
			Data:          pending.Data,
			ByteLen:       p.ByteLen,
			BtcTxid:       p.BtcTxid,
		})
		return nil

	case EventProgWithdrawInscribe:
		// Withdraw moves out of the module: a destination that's itself an
		// OP_RETURN invalidates the transfer instead of completing it (§8 S6).
		if len(p.NewPkScript) > 0 && p.NewPkScript[0] == opReturnPrefix {
			return nil
		}
		ok, err := e.Prog.Withdraw(ctx, p.SourcePkScript, pending.Ticker, pending.Amount, p.BlockHeight)
		if err != nil {
			return fmt.Errorf("brc20prog withdraw: %w", err)
		}
		if !ok {
			return nil
		}
		e.Balances.DebitOverall(pending.Ticker, progShadowPkScript(pending.Ticker), pending.Amount)
		e.Balances.CreditOverall(pending.Ticker, p.NewPkScript, pending.Amount)
		e.emit(Event{
			Type:           EventProgWithdrawTransfer,
			InscriptionId:  p.InscriptionId,
			PkScript:       p.SourcePkScript,
			SpentPkScript:  p.NewPkScript,
			Ticker:         pending.Ticker,
			OriginalTicker: pending.OriginalTicker,
			Decimals:       pending.Decimals,
			Amount:         pending.Amount,
		})
		return nil
	}
	return nil
}

// FinaliseBlock closes out the programmable module's view of the current
// block once every prog RPC for it has been issued (§4.3.6).
func (e *Engine) FinaliseBlock(ctx context.Context, blockTime int64, blockHash [32]byte) error {
	if e.Prog == nil {
		return nil
	}
	return e.Prog.FinaliseBlock(ctx, blockTime, blockHash, e.ProgTxIdx)
}

func tickerKeyLower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
