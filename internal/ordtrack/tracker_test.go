package ordtrack

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/brc20idx/indexer/internal/ids"
)

type memInscriptions struct {
	bySeq map[uint32]struct {
		entry InscriptionEntry
		id    ids.InscriptionId
	}
}

func newMemInscriptions() *memInscriptions {
	return &memInscriptions{bySeq: make(map[uint32]struct {
		entry InscriptionEntry
		id    ids.InscriptionId
	})}
}

func (m *memInscriptions) GetBySequence(seq uint32) (InscriptionEntry, ids.InscriptionId, bool) {
	v, ok := m.bySeq[seq]
	return v.entry, v.id, ok
}

func (m *memInscriptions) Put(id ids.InscriptionId, entry InscriptionEntry) {
	m.bySeq[entry.SequenceNumber] = struct {
		entry InscriptionEntry
		id    ids.InscriptionId
	}{entry: entry, id: id}
}

type noPrevouts struct{}

func (noPrevouts) FetchPrevoutValue(ctx context.Context, txid [32]byte, vout uint32) (uint64, error) {
	return 0, nil
}

func inscriptionWitness(t *testing.T, contentType, body []byte) wire.TxWitness {
	t.Helper()
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData([]byte("ord"))
	b.AddData([]byte{1})
	b.AddData(contentType)
	b.AddData([]byte{})
	b.AddData(body)
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	return wire.TxWitness{script, []byte{0xc0}}
}

func TestProcessBlock_SimpleInscribeAndTransfer(t *testing.T) {
	utxos := NewMemoryUTXOStore()
	inscriptions := newMemInscriptions()
	seq := NewCounter(0, 0, -1)
	tr := NewTracker(utxos, inscriptions, noPrevouts{}, seq)

	coinbase := wire.NewMsgTx(2)
	coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, nil, nil))
	coinbase.AddTxOut(wire.NewTxOut(5000000000, []byte{txscript.OP_TRUE}))

	revealTx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = inscriptionWitness(t, []byte("text/plain"), []byte(`{"p":"brc-20","op":"deploy","tick":"abcd","max":"1000"}`))
	revealTx.AddTxIn(in)
	revealTx.AddTxOut(wire.NewTxOut(10000, []byte{txscript.OP_TRUE}))

	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{coinbase, revealTx}}

	transfers, err := tr.ProcessBlock(context.Background(), block, 1)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d: %+v", len(transfers), transfers)
	}
	tx0 := transfers[0]
	if tx0.OldSatpoint != nil {
		t.Errorf("expected nil old satpoint for fresh inscription, got %+v", tx0.OldSatpoint)
	}
	if tx0.SentAsFee {
		t.Errorf("expected not sent as fee")
	}
	if tx0.NewSatpoint.Vout != 0 || tx0.NewSatpoint.Offset != 0 {
		t.Errorf("unexpected new satpoint: %+v", tx0.NewSatpoint)
	}

	revealTxid := revealTx.TxHash()
	spendTx := wire.NewMsgTx(2)
	spendTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: revealTxid, Index: 0}, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(9000, []byte{txscript.OP_TRUE}))

	coinbase2 := wire.NewMsgTx(2)
	coinbase2.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, nil, nil))
	coinbase2.AddTxOut(wire.NewTxOut(5000000000, []byte{txscript.OP_TRUE}))

	block2 := &wire.MsgBlock{Transactions: []*wire.MsgTx{coinbase2, spendTx}}
	transfers2, err := tr.ProcessBlock(context.Background(), block2, 2)
	if err != nil {
		t.Fatalf("ProcessBlock 2: %v", err)
	}
	if len(transfers2) != 1 {
		t.Fatalf("expected 1 transfer in second block, got %d", len(transfers2))
	}
	if transfers2[0].OldSatpoint == nil {
		t.Fatalf("expected old satpoint to be set on transfer of existing inscription")
	}
	if transfers2[0].OldSatpoint.Vout != 0 {
		t.Errorf("unexpected old satpoint: %+v", transfers2[0].OldSatpoint)
	}
}

func TestProcessBlock_FeeRoutedToCoinbase(t *testing.T) {
	utxos := NewMemoryUTXOStore()
	inscriptions := newMemInscriptions()
	seq := NewCounter(0, 0, -1)
	tr := NewTracker(utxos, inscriptions, noPrevouts{}, seq)

	coinbase := wire.NewMsgTx(2)
	coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, nil, nil))
	coinbase.AddTxOut(wire.NewTxOut(5000001000, []byte{txscript.OP_TRUE}))

	revealTx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = inscriptionWitness(t, []byte("text/plain"), []byte(`{"p":"brc-20","op":"mint","tick":"abcd","amt":"10"}`))
	revealTx.AddTxIn(in)
	// No outputs at all: the inscription's sat has nowhere to land and is
	// carried to the coinbase as a fee (§4.1).
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{coinbase, revealTx}}

	transfers, err := tr.ProcessBlock(context.Background(), block, 3)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	if !transfers[0].SentAsFee {
		t.Errorf("expected SentAsFee = true")
	}
	if transfers[0].NewSatpoint.Txid != txidBytes(coinbase) {
		t.Errorf("expected fee flotsam routed to coinbase txid")
	}
}
