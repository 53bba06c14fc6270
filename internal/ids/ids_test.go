package ids

import (
	"encoding/hex"
	"testing"
)

func mustTxid(t *testing.T, hexStr string) [TxidSize]byte {
	t.Helper()
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != TxidSize {
		t.Fatalf("bad test txid %q: %v", hexStr, err)
	}
	var out [TxidSize]byte
	copy(out[:], raw)
	return out
}

func TestInscriptionIdRoundTripString(t *testing.T) {
	txid := mustTxid(t, "aa00000000000000000000000000000000000000000000000000000000000bb0")
	id := InscriptionId{Txid: txid, Index: 7}
	s := id.String()

	got, err := ParseInscriptionId(s)
	if err != nil {
		t.Fatalf("ParseInscriptionId(%q) error = %v", s, err)
	}
	if got != id {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, id)
	}
}

func TestInscriptionIdRoundTripBinary(t *testing.T) {
	txid := mustTxid(t, "aa00000000000000000000000000000000000000000000000000000000000bb0")
	id := InscriptionId{Txid: txid, Index: 1234}

	bin := id.MarshalBinary()
	if len(bin) != 36 {
		t.Fatalf("MarshalBinary() len = %d, want 36", len(bin))
	}

	got, err := UnmarshalInscriptionId(bin)
	if err != nil {
		t.Fatalf("UnmarshalInscriptionId() error = %v", err)
	}
	if got != id {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, id)
	}
}

func TestInscriptionIdBinaryReversesBytes(t *testing.T) {
	var txid [TxidSize]byte
	txid[0] = 0xaa
	txid[TxidSize-1] = 0xbb
	id := InscriptionId{Txid: txid, Index: 0}

	bin := id.MarshalBinary()
	if bin[0] != 0xbb || bin[TxidSize-1] != 0xaa {
		t.Errorf("expected reversed txid in binary form, got % x", bin)
	}
}

func TestUnmarshalInscriptionIdWrongLength(t *testing.T) {
	if _, err := UnmarshalInscriptionId(make([]byte, 10)); err == nil {
		t.Fatal("expected error for wrong-length input")
	}
}

func TestParseInscriptionIdMalformed(t *testing.T) {
	tests := []string{"", "notanid", "aabbi", "aabb" + "i" + "notanumber"}
	for _, s := range tests {
		if _, err := ParseInscriptionId(s); err == nil {
			t.Errorf("ParseInscriptionId(%q) expected error, got nil", s)
		}
	}
}

func TestSatpointRoundTripString(t *testing.T) {
	txid := mustTxid(t, "cc00000000000000000000000000000000000000000000000000000000000dd0")
	sp := Satpoint{Txid: txid, Vout: 2, Offset: 546}
	s := sp.String()

	got, err := ParseSatpoint(s)
	if err != nil {
		t.Fatalf("ParseSatpoint(%q) error = %v", s, err)
	}
	if got != sp {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, sp)
	}
}

func TestSatpointRoundTripBinary(t *testing.T) {
	txid := mustTxid(t, "cc00000000000000000000000000000000000000000000000000000000000dd0")
	sp := Satpoint{Txid: txid, Vout: 2, Offset: 546}

	bin := sp.MarshalBinary()
	if len(bin) != SatpointBinarySize {
		t.Fatalf("MarshalBinary() len = %d, want %d", len(bin), SatpointBinarySize)
	}

	got, err := UnmarshalSatpoint(bin)
	if err != nil {
		t.Fatalf("UnmarshalSatpoint() error = %v", err)
	}
	if got != sp {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, sp)
	}
}

func TestSatpointIsNull(t *testing.T) {
	var zero Satpoint
	if !zero.IsNull() {
		t.Error("zero-value satpoint should be null")
	}

	txid := mustTxid(t, "cc00000000000000000000000000000000000000000000000000000000000dd0")
	nonNull := Satpoint{Txid: txid}
	if nonNull.IsNull() {
		t.Error("non-zero txid satpoint should not be null")
	}
}

func TestParseSatpointMalformed(t *testing.T) {
	tests := []string{"", "a:b", "aabb:1:2:3", "short:0:0"}
	for _, s := range tests {
		if _, err := ParseSatpoint(s); err == nil {
			t.Errorf("ParseSatpoint(%q) expected error, got nil", s)
		}
	}
}

func TestOutpointRoundTripBinary(t *testing.T) {
	txid := mustTxid(t, "ee00000000000000000000000000000000000000000000000000000000000ff0")
	op := Outpoint{Txid: txid, Vout: 5}

	bin := op.MarshalBinary()
	if len(bin) != OutpointBinarySize {
		t.Fatalf("MarshalBinary() len = %d, want %d", len(bin), OutpointBinarySize)
	}

	got, err := UnmarshalOutpoint(bin)
	if err != nil {
		t.Fatalf("UnmarshalOutpoint() error = %v", err)
	}
	if got != op {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, op)
	}
}

func TestOutpointString(t *testing.T) {
	txid := mustTxid(t, "ee00000000000000000000000000000000000000000000000000000000000ff0")
	op := Outpoint{Txid: txid, Vout: 5}
	want := hex.EncodeToString(txid[:]) + ":5"
	if op.String() != want {
		t.Errorf("String() = %q, want %q", op.String(), want)
	}
}
