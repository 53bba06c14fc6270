package brc20

import (
	"math/big"
	"strings"
	"testing"

	"github.com/brc20idx/indexer/internal/ids"
)

func testInscriptionId() ids.InscriptionId {
	var txid [32]byte
	txid[0] = 0xab
	return ids.InscriptionId{Txid: txid, Index: 0}
}

func TestEventCanonicalStringDeployInscribe(t *testing.T) {
	e := Event{
		Type:           EventDeployInscribe,
		InscriptionId:  testInscriptionId(),
		PkScript:       []byte{0x00, 0x14},
		Ticker:         "ordi",
		OriginalTicker: "ORDI",
		Decimals:       18,
		MaxSupply:      bigFromString(t, "21000000000000000000000000"),
		LimitPerMint:   bigFromString(t, "1000000000000000000000"),
		IsSelfMint:     false,
	}
	s := e.CanonicalString()
	if !strings.HasPrefix(s, "deploy-inscribe;"+testInscriptionId().String()+";") {
		t.Fatalf("unexpected canonical prefix: %s", s)
	}
	parts := strings.Split(s, ";")
	if len(parts) != 9 {
		t.Fatalf("expected 9 fields for deploy-inscribe, got %d: %v", len(parts), parts)
	}
	if parts[5] != "21000000.000000000000000000" {
		t.Errorf("max_supply field = %q", parts[5])
	}
	if parts[6] != "18" {
		t.Errorf("decimals field = %q", parts[6])
	}
	if parts[8] != "false" {
		t.Errorf("is_self_mint field = %q", parts[8])
	}
}

func TestEventCanonicalStringMintInscribe(t *testing.T) {
	parentId := testInscriptionId()
	e := Event{
		Type:           EventMintInscribe,
		InscriptionId:  testInscriptionId(),
		PkScript:       []byte{0xde, 0xad},
		Ticker:         "ordi",
		OriginalTicker: "ORDI",
		Decimals:       18,
		Amount:         big.NewInt(5),
		ParentId:       &parentId,
	}
	s := e.CanonicalString()
	if !strings.Contains(s, parentId.String()) {
		t.Errorf("expected parent id in canonical string: %s", s)
	}
}

func TestEventCanonicalStringOptionalFieldsEmpty(t *testing.T) {
	e := Event{
		Type:          EventTransferTransfer,
		InscriptionId: testInscriptionId(),
		PkScript:      []byte{0x01},
		SpentPkScript: nil,
		Ticker:        "abcd",
		Amount:        big.NewInt(1),
		Decimals:      0,
	}
	s := e.CanonicalString()
	parts := strings.Split(s, ";")
	// transfer-transfer: name, id, source_pk_script, spent_pk_script, ticker, original_ticker, amount, tx_id
	if len(parts) != 8 {
		t.Fatalf("expected 8 fields, got %d: %v", len(parts), parts)
	}
	if parts[3] != "" {
		t.Errorf("expected empty spent_pk_script, got %q", parts[3])
	}
}

func TestJoinBlockEvents(t *testing.T) {
	if JoinBlockEvents(nil) != "" {
		t.Error("JoinBlockEvents(nil) should be empty string")
	}

	e1 := Event{Type: EventTransferInscribe, InscriptionId: testInscriptionId(), Ticker: "abcd", Amount: big.NewInt(1)}
	e2 := Event{Type: EventTransferInscribe, InscriptionId: testInscriptionId(), Ticker: "wxyz", Amount: big.NewInt(2)}

	joined := JoinBlockEvents([]Event{e1, e2})
	want := e1.CanonicalString() + "|" + e2.CanonicalString()
	if joined != want {
		t.Errorf("JoinBlockEvents() = %q, want %q", joined, want)
	}
}
