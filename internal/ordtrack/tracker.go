package ordtrack

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/brc20idx/indexer/internal/envelope"
	"github.com/brc20idx/indexer/internal/ids"
)

// Tracker maintains the outpoint→UTXO-entry store and, given a raw block,
// produces the ordered sequence of ordinal transfers the BRC-20 event
// engine consumes (§4.1).
type Tracker struct {
	UTXOs        UTXOStore
	Inscriptions InscriptionStore
	Prevouts     PrevoutSource
	Seq          SequenceAllocator
}

// InscriptionStore resolves a carried inscription's stable id and content
// classification from its sequence number, and records newly revealed
// inscriptions (§6.1 sequence_number_to_inscription_entry,
// inscription_id_to_sequence_number).
type InscriptionStore interface {
	GetBySequence(seq uint32) (InscriptionEntry, ids.InscriptionId, bool)
	Put(id ids.InscriptionId, entry InscriptionEntry)
}

// NewTracker builds a Tracker over the given stores.
func NewTracker(utxos UTXOStore, inscriptions InscriptionStore, prevouts PrevoutSource, seq SequenceAllocator) *Tracker {
	return &Tracker{UTXOs: utxos, Inscriptions: inscriptions, Prevouts: prevouts, Seq: seq}
}

// ProcessBlock walks every transaction of block in order, coinbase last,
// and returns the block's ordinal transfers in strict
// (tx_index, input_offset) order (§4.1, §5 concurrency — this ordering is
// independent of scheduling).
func (t *Tracker) ProcessBlock(ctx context.Context, block *wire.MsgBlock, height int32) ([]Transfer, error) {
	if len(block.Transactions) == 0 {
		return nil, nil
	}

	var transfers []Transfer
	var feeFlotsam []flotsam

	for txIndex := 1; txIndex < len(block.Transactions); txIndex++ {
		tx := block.Transactions[txIndex]
		txTransfers, overflow, err := t.processTransaction(ctx, tx, height, txIndex)
		if err != nil {
			return nil, fmt.Errorf("ordtrack: process tx %d: %w", txIndex, err)
		}
		transfers = append(transfers, txTransfers...)
		feeFlotsam = append(feeFlotsam, overflow...)
	}

	coinbaseTransfers := t.processCoinbase(block.Transactions[0], feeFlotsam, height)
	transfers = append(transfers, coinbaseTransfers...)

	return transfers, nil
}

// wireOutpoint converts a wire.OutPoint (natural/RPC txid order) to the
// ids.Outpoint store key type.
func wireOutpoint(op wire.OutPoint) ids.Outpoint {
	var o ids.Outpoint
	copy(o.Txid[:], op.Hash[:])
	o.Vout = op.Index
	return o
}

func txidBytes(tx *wire.MsgTx) [32]byte {
	h := tx.TxHash()
	var out [32]byte
	copy(out[:], h[:])
	return out
}

// processTransaction applies §4.1 steps 1-5 to a single non-coinbase
// transaction: it pops input UTXO entries, walks carried inscriptions,
// parses new envelopes, distributes everything to outputs, and returns the
// resulting transfers plus any flotsam that overflowed into the fee pool.
func (t *Tracker) processTransaction(ctx context.Context, tx *wire.MsgTx, height int32, txIndex int) ([]Transfer, []flotsam, error) {
	var carried []flotsam
	inputBegin := make([]uint64, len(tx.TxIn)+1)

	// inscribedOffsets mirrors ord's inscribed_offsets: for every absolute
	// sat offset already carrying an inscription into this transaction, the
	// curse-state of the first one found there and how many more sit on top
	// of it, so a new reveal at that offset can tell whether it is the first
	// reinscription on a cursed initial inscription (§4.2.3 exception).
	inscribedOffsets := make(map[uint64]*offsetInfo)

	cumulative := uint64(0)
	for i, in := range tx.TxIn {
		inputBegin[i] = cumulative

		op := wireOutpoint(in.PreviousOutPoint)
		entry, ok := t.UTXOs.Get(op)
		var value uint64
		if ok {
			value = entry.Value
			for _, loc := range entry.Inscriptions {
				absOffset := cumulative + loc.Offset
				oldSP := ids.Satpoint{Txid: op.Txid, Vout: op.Vout, Offset: loc.Offset}
				entryInfo, id, found := t.Inscriptions.GetBySequence(loc.SequenceNumber)
				if !found {
					continue
				}
				if info, seen := inscribedOffsets[absOffset]; seen {
					info.count++
				} else {
					inscribedOffsets[absOffset] = &offsetInfo{initialCursed: entryInfo.IsCursedForBRC20}
				}
				carried = append(carried, flotsam{
					inscriptionId:     id,
					inscriptionNumber: entryInfo.InscriptionNumber,
					sequenceNumber:    loc.SequenceNumber,
					offset:            absOffset,
					oldSatpoint:       &oldSP,
					sourcePkScript:    entry.PkScript,
					cursed:            entryInfo.IsCursedForBRC20,
					isNew:             false,
				})
			}
			t.UTXOs.Delete(op)
		} else {
			v, err := t.Prevouts.FetchPrevoutValue(ctx, op.Txid, op.Vout)
			if err != nil {
				return nil, nil, fmt.Errorf("fetch prevout %s: %w", op.String(), err)
			}
			value = v
		}
		cumulative += value
	}
	inputBegin[len(tx.TxIn)] = cumulative
	totalInputValue := cumulative

	envelopes := envelope.FromTransaction(tx)
	var fresh []flotsam
	for _, env := range envelopes {
		inputValue := inputBegin[env.Input+1] - inputBegin[env.Input]
		absOffset := inputBegin[env.Input]

		var isReinscription, isFirstReinscriptionOnBlessed bool
		if info, ok := inscribedOffsets[absOffset]; ok {
			isReinscription = true
			// The exception only blesses the reinscription when the initial
			// inscription at this offset was itself cursed, and only the
			// very first reinscription on top of it (§4.2.3).
			isFirstReinscriptionOnBlessed = info.count == 0 && info.initialCursed
		}

		isUnbound := inputValue == 0
		if env.Pointer != nil && *env.Pointer >= sumOutputs(tx) {
			isUnbound = true
		}

		cursed := envelope.IsCursed(envelope.CurseInputs{
			InputIndex:                    env.Input,
			IsFirstInput:                  env.Input == 0,
			IsOffsetZero:                  env.IndexInInput == 0,
			IsReinscription:               isReinscription,
			IsFirstReinscriptionOnBlessed: isFirstReinscriptionOnBlessed,
			UnrecognizedEvenField:         env.UnrecognizedEvenField,
			IsUnbound:                     isUnbound,
		})

		seq := t.Seq.NextSequenceNumber()
		var number int32
		if cursed {
			number = t.Seq.NextCursedNumber()
		} else {
			number = t.Seq.NextBlessedNumber()
		}

		txid := txidBytes(tx)
		id := ids.InscriptionId{Txid: txid, Index: uint32(env.Offset)}

		info := envelope.FromEnvelope(env, id, number, cursed)

		entry := InscriptionEntry{
			Id:                id,
			InscriptionNumber: number,
			SequenceNumber:    seq,
			IsJSONOrText:      info.IsJSONOrText,
			IsCursedForBRC20:  cursed,
		}
		t.Inscriptions.Put(id, entry)

		fresh = append(fresh, flotsam{
			inscriptionId:     id,
			inscriptionNumber: number,
			sequenceNumber:    seq,
			offset:            absOffset,
			oldSatpoint:       nil,
			cursed:            cursed,
			isNew:             true,
			parent:            info.Parent,
			content:           info.Content,
			contentType:       info.ContentType,
			isJSONOrText:      info.IsJSONOrText,
		})
	}

	all := append(carried, fresh...)

	txid := txidBytes(tx)
	assignments, overflow := distribute(all, tx.TxOut, totalInputValue)

	var transfers []Transfer
	outputEntries := make(map[uint32]*UtxoEntry)
	for i, out := range tx.TxOut {
		outputEntries[uint32(i)] = &UtxoEntry{Value: uint64(out.Value), PkScript: out.PkScript}
	}

	for _, a := range assignments {
		entry := outputEntries[a.outputIndex]
		entry.Inscriptions = append(entry.Inscriptions, InscriptionLocation{
			SequenceNumber: a.flotsam.sequenceNumber,
			Offset:         a.offsetInOutput,
		})

		newSP := ids.Satpoint{Txid: txid, Vout: a.outputIndex, Offset: a.offsetInOutput}
		transfers = append(transfers, Transfer{
			BlockHeight:         height,
			TxIndexInBlock:      txIndex,
			InscriptionId:       a.flotsam.inscriptionId,
			InscriptionNumber:   a.flotsam.inscriptionNumber,
			OldSatpoint:         a.flotsam.oldSatpoint,
			NewSatpoint:         newSP,
			ContainingTxid:      txid,
			SourcePkScript:      a.flotsam.sourcePkScript,
			NewPkScript:         tx.TxOut[a.outputIndex].PkScript,
			SentAsFee:           false,
			ParentInscriptionId: a.flotsam.parent,
			Content:             a.flotsam.content,
			ContentType:         a.flotsam.contentType,
			ByteLen:             uint32(len(a.flotsam.content)),
			IsCursedForBRC20:    a.flotsam.cursed,
		})
	}

	for i := range tx.TxOut {
		op := ids.Outpoint{Txid: txid, Vout: uint32(i)}
		t.UTXOs.Put(op, *outputEntries[uint32(i)])
	}

	return transfers, overflow, nil
}

func sumOutputs(tx *wire.MsgTx) uint64 {
	var total uint64
	for _, out := range tx.TxOut {
		total += uint64(out.Value)
	}
	return total
}

type assignment struct {
	flotsam        flotsam
	outputIndex    uint32
	offsetInOutput uint64
}

// distribute walks outputs left-to-right accumulating sat ranges and
// assigns each flotsam whose offset falls within an output's range to that
// output, per §4.1 step 4. Flotsam beyond the last output's range overflow
// to the caller as fee flotsam, to be carried to the coinbase.
func distribute(all []flotsam, outs []*wire.TxOut, totalInputValue uint64) ([]assignment, []flotsam) {
	var assignments []assignment
	var overflow []flotsam

	begin := uint64(0)
	outIdx := 0
	for _, f := range all {
		for outIdx < len(outs) {
			end := begin + uint64(outs[outIdx].Value)
			if f.offset < end {
				assignments = append(assignments, assignment{
					flotsam:        f,
					outputIndex:    uint32(outIdx),
					offsetInOutput: f.offset - begin,
				})
				break
			}
			begin = end
			outIdx++
		}
		if outIdx >= len(outs) {
			overflow = append(overflow, f)
		}
	}
	return assignments, overflow
}

// processCoinbase distributes fee flotsam carried from every prior
// transaction in the block across the coinbase transaction's outputs,
// walking them in the order they overflowed (§4.1: coinbase processed last
// so fee flotsam can be routed to its outputs). Flotsam overflowing the
// coinbase's own outputs too are lost sats, routed to the null satpoint
// sink (§4.1 invariants).
func (t *Tracker) processCoinbase(coinbase *wire.MsgTx, feeFlotsam []flotsam, height int32) []Transfer {
	if len(feeFlotsam) == 0 {
		return nil
	}

	txid := txidBytes(coinbase)
	assignments, lost := distribute(feeFlotsam, coinbase.TxOut, 0)

	var transfers []Transfer
	outputEntries := make(map[uint32]*UtxoEntry)
	for i, out := range coinbase.TxOut {
		outputEntries[uint32(i)] = &UtxoEntry{Value: uint64(out.Value), PkScript: out.PkScript}
	}

	for _, a := range assignments {
		entry := outputEntries[a.outputIndex]
		entry.Inscriptions = append(entry.Inscriptions, InscriptionLocation{
			SequenceNumber: a.flotsam.sequenceNumber,
			Offset:         a.offsetInOutput,
		})
		newSP := ids.Satpoint{Txid: txid, Vout: a.outputIndex, Offset: a.offsetInOutput}
		transfers = append(transfers, Transfer{
			BlockHeight:         height,
			TxIndexInBlock:      0,
			InscriptionId:       a.flotsam.inscriptionId,
			InscriptionNumber:   a.flotsam.inscriptionNumber,
			OldSatpoint:         a.flotsam.oldSatpoint,
			NewSatpoint:         newSP,
			ContainingTxid:      txid,
			SourcePkScript:      a.flotsam.sourcePkScript,
			NewPkScript:         coinbase.TxOut[a.outputIndex].PkScript,
			SentAsFee:           true,
			ParentInscriptionId: a.flotsam.parent,
			Content:             a.flotsam.content,
			ContentType:         a.flotsam.contentType,
			ByteLen:             uint32(len(a.flotsam.content)),
			IsCursedForBRC20:    a.flotsam.cursed,
		})
	}

	for i := range coinbase.TxOut {
		op := ids.Outpoint{Txid: txid, Vout: uint32(i)}
		t.UTXOs.Put(op, *outputEntries[uint32(i)])
	}

	for _, f := range lost {
		transfers = append(transfers, Transfer{
			BlockHeight:         height,
			TxIndexInBlock:      0,
			InscriptionId:       f.inscriptionId,
			InscriptionNumber:   f.inscriptionNumber,
			OldSatpoint:         f.oldSatpoint,
			NewSatpoint:         ids.Satpoint{}, // null txid: the lost sats sink
			ContainingTxid:      txid,
			SourcePkScript:      f.sourcePkScript,
			NewPkScript:         nil,
			SentAsFee:           true,
			ParentInscriptionId: f.parent,
			Content:             f.content,
			ContentType:         f.contentType,
			ByteLen:             uint32(len(f.content)),
			IsCursedForBRC20:    f.cursed,
		})
	}

	return transfers
}
