package brc20

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/brc20idx/indexer/internal/envelope"
	"github.com/brc20idx/indexer/internal/ids"
	"github.com/brc20idx/indexer/internal/ordtrack"
)

// ProcessTransfer is the single entry point the updater drives every
// ordinal transfer through: it classifies a fresh reveal's BRC-20 payload
// and dispatches to the matching inscribe handler, or — for a moving
// inscription — looks up which pending operation it completes and drives
// the matching transfer handler. Any classification or validation failure
// is a silent protocol drop (§7): ProcessTransfer returns nil in all of
// those cases, only returning an error for a downstream RPC/programmable
// module failure that §7 treats as fatal.
func (e *Engine) ProcessTransfer(ctx context.Context, t ordtrack.Transfer) error {
	if t.OldSatpoint == nil {
		return e.dispatchInscribe(t)
	}
	return e.dispatchTransfer(ctx, t)
}

// dispatchInscribe handles a fresh inscription reveal: it classifies the
// envelope's content as a BRC-20 payload (§4.2.4) and routes to the
// matching *-inscribe handler. Cursed inscriptions never carry BRC-20
// meaning (§4.2.4 is_valid_brc20 requires !cursed).
func (e *Engine) dispatchInscribe(t ordtrack.Transfer) error {
	if t.IsCursedForBRC20 {
		return nil
	}
	payload, ok := envelope.ParseBRC20Payload(t.ContentType, t.Content)
	if !ok {
		return nil
	}

	switch payload.Protocol {
	case "brc-20":
		switch payload.Op {
		case "deploy":
			return ignoreRejection(e.ProcessDeploy(DeployRequest{
				OriginalTickerBytes: []byte(payload.Tick),
				MaxSupplyStr:        envelope.OptionalString(payload.Max),
				LimitPerMintStr:     envelope.OptionalString(payload.Lim),
				DecimalsStr:         envelope.OptionalString(payload.Dec),
				SelfMintStr:         envelope.OptionalString(payload.SelfMint),
				ParentId:            t.ParentInscriptionId,
				BlockHeight:         t.BlockHeight,
				InscriptionId:       t.InscriptionId,
				PredeployerPkScript: t.NewPkScript,
			}, t.NewPkScript))
		case "mint":
			return ignoreRejection(e.ProcessMint(payload.Tick, t.NewPkScript,
				envelope.OptionalString(payload.Amt), t.ParentInscriptionId, t.InscriptionId))
		case "transfer":
			return ignoreRejection(e.ProcessTransferInscribe(payload.Tick, t.NewPkScript,
				envelope.OptionalString(payload.Amt), t.InscriptionId))
		case "predeploy":
			hash, err := hex.DecodeString(payload.Hash)
			if err != nil {
				return nil
			}
			e.ProcessPredeploy(t.InscriptionId, t.BlockHeight, t.NewPkScript, hash)
			return nil
		}
		return nil

	case "brc20-module":
		// p="brc20-module" with module="BRC20PROG" is a shorthand deploy
		// carrying raw/base64 creation code (§4.2.4).
		data := progOpData(payload)
		return ignoreRejection(e.ProcessProgDeployInscribe(t.InscriptionId, t.NewPkScript, data, t.BlockHeight))

	case "brc20-prog":
		switch payload.Op {
		case "deploy":
			data := progOpData(payload)
			return ignoreRejection(e.ProcessProgDeployInscribe(t.InscriptionId, t.NewPkScript, data, t.BlockHeight))
		case "call":
			data := progOpData(payload)
			var contractAddr []byte
			var contractID *ids.InscriptionId
			if payload.Contract != "" {
				contractAddr, _ = hex.DecodeString(payload.Contract)
			}
			if payload.InscriptionID != "" {
				if id, err := ids.ParseInscriptionId(payload.InscriptionID); err == nil {
					contractID = &id
				}
			}
			return ignoreRejection(e.ProcessProgCallInscribe(t.InscriptionId, t.NewPkScript, contractAddr, contractID, data, t.BlockHeight))
		case "transact":
			data := progOpData(payload)
			return ignoreRejection(e.ProcessProgTransactInscribe(t.InscriptionId, t.NewPkScript, data, t.BlockHeight))
		case "withdraw":
			return ignoreRejection(e.ProcessProgWithdrawInscribe(t.InscriptionId, t.NewPkScript, payload.Tick,
				envelope.OptionalString(payload.Amt), t.BlockHeight))
		}
		return nil
	}
	return nil
}

// progOpData resolves a brc20-prog payload's creation code/call data,
// preferring raw hex "data" over "base64" when both are present.
func progOpData(payload envelope.BRC20Payload) []byte {
	if payload.Data != "" {
		if b, err := hex.DecodeString(payload.Data); err == nil {
			return b
		}
	}
	if payload.Base64 != "" {
		return []byte(payload.Base64)
	}
	return nil
}

// dispatchTransfer handles a moving inscription: it looks up which pending
// operation (plain transfer or a brc20-prog op) the inscription was
// marked with at its inscribe phase and drives the matching transfer
// handler. An inscription tracked by neither map never carried BRC-20
// meaning and is silently ignored.
func (e *Engine) dispatchTransfer(ctx context.Context, t ordtrack.Transfer) error {
	if _, ok := e.Transfers[t.InscriptionId]; ok {
		return e.ProcessTransferTransfer(TransferTransferParams{
			InscriptionId:  t.InscriptionId,
			SourcePkScript: t.SourcePkScript,
			SpentPkScript:  t.NewPkScript,
			SentAsFee:      t.SentAsFee,
			Txid:           t.ContainingTxid,
			BlockHeight:    t.BlockHeight,
		})
	}
	if _, ok := e.ProgOps[t.InscriptionId]; ok {
		return e.ProcessProgTransfer(ctx, ProgTransferParams{
			InscriptionId:  t.InscriptionId,
			SourcePkScript: t.SourcePkScript,
			NewPkScript:    t.NewPkScript,
			ByteLen:        t.ByteLen,
			BlockHeight:    t.BlockHeight,
		})
	}
	return nil
}

// ignoreRejection converts a silent-drop sentinel error (ErrTickerRejected,
// ErrMintRejected, ErrTransferRejected) into a nil return, matching §7's
// malformed-input handling: no event, no state mutation, no propagated
// error. Any other error is a bug and is returned so it surfaces loudly.
func ignoreRejection(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isRejection(err):
		return nil
	default:
		return fmt.Errorf("brc20: unexpected dispatch error: %w", err)
	}
}

func isRejection(err error) bool {
	for _, sentinel := range []error{ErrTickerRejected, ErrMintRejected, ErrTransferRejected} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
