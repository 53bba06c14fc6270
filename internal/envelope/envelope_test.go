package envelope

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// buildInscriptionWitness assembles a minimal ord-style reveal script
// carrying contentType/body and wraps it as the two-item witness
// [tapscript, controlblock] that unversionedLeafScript reads, with a
// one-byte stand-in control block.
func buildInscriptionWitness(t *testing.T, contentType, body []byte) wire.TxWitness {
	t.Helper()
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(protocolID)
	builder.AddData([]byte{1}) // content-type tag
	builder.AddData(contentType)
	builder.AddData([]byte{}) // body separator
	builder.AddData(body)
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	return wire.TxWitness{script, []byte{0xc0}}
}

func TestFromTransaction_SimpleInscription(t *testing.T) {
	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = buildInscriptionWitness(t, []byte("text/plain;charset=utf-8"), []byte(`{"p":"brc-20","op":"deploy"}`))
	tx.AddTxIn(in)

	envs := FromTransaction(tx)
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	env := envs[0]
	if string(env.ContentType) != "text/plain;charset=utf-8" {
		t.Errorf("content type = %q", env.ContentType)
	}
	if !env.HasBody {
		t.Error("expected HasBody = true")
	}
	if string(env.Body) != `{"p":"brc-20","op":"deploy"}` {
		t.Errorf("body = %q", env.Body)
	}
	if env.DuplicateField || env.IncompleteField || env.UnrecognizedEvenField {
		t.Errorf("unexpected flags: %+v", env)
	}
}

func TestFromTransaction_NoWitness(t *testing.T) {
	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	tx.AddTxIn(in)

	if envs := FromTransaction(tx); len(envs) != 0 {
		t.Fatalf("expected no envelopes, got %d", len(envs))
	}
}

func TestFromTransaction_DuplicateField(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(protocolID)
	builder.AddData([]byte{1})
	builder.AddData([]byte("text/plain"))
	builder.AddData([]byte{1})
	builder.AddData([]byte("application/json"))
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = wire.TxWitness{script, []byte{0xc0}}
	tx.AddTxIn(in)

	envs := FromTransaction(tx)
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	if !envs[0].DuplicateField {
		t.Error("expected DuplicateField = true")
	}
}

func TestIsJSONOrText(t *testing.T) {
	cases := []struct {
		ct   string
		want bool
	}{
		{"text/plain", true},
		{"text/plain;charset=utf-8", true},
		{"application/json", true},
		{"application/json;charset=utf-8", true},
		{"image/png", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsJSONOrText([]byte(c.ct)); got != c.want {
			t.Errorf("IsJSONOrText(%q) = %v, want %v", c.ct, got, c.want)
		}
	}
}

func TestParseBRC20Payload(t *testing.T) {
	ct := []byte("application/json")

	if _, ok := ParseBRC20Payload(ct, []byte(`{"p":"brc-20","op":"mint","tick":"ordi","amt":"100"}`)); !ok {
		t.Error("expected brc-20 payload to parse")
	}
	if _, ok := ParseBRC20Payload(ct, []byte(`{"p":"brc20-module","module":"BRC20PROG"}`)); !ok {
		t.Error("expected brc20-module payload with correct module id to parse")
	}
	if _, ok := ParseBRC20Payload(ct, []byte(`{"p":"brc20-module","module":"OTHER"}`)); ok {
		t.Error("expected brc20-module payload with wrong module id to be rejected")
	}
	if _, ok := ParseBRC20Payload(ct, []byte(`{"p":"unknown"}`)); ok {
		t.Error("expected unknown protocol to be rejected")
	}
	if _, ok := ParseBRC20Payload(ct, []byte(`not json`)); ok {
		t.Error("expected invalid JSON to be rejected")
	}
	if _, ok := ParseBRC20Payload([]byte("image/png"), []byte(`{"p":"brc-20"}`)); ok {
		t.Error("expected non-text content type to be rejected")
	}
}

func TestIsCursed(t *testing.T) {
	cases := []struct {
		name string
		in   CurseInputs
		want bool
	}{
		{"blessed", CurseInputs{IsFirstInput: true, IsOffsetZero: true}, false},
		{"not first input", CurseInputs{IsFirstInput: false, IsOffsetZero: true}, true},
		{"nonzero offset", CurseInputs{IsFirstInput: true, IsOffsetZero: false}, true},
		{"reinscription", CurseInputs{IsFirstInput: true, IsOffsetZero: true, IsReinscription: true}, true},
		{"first reinscription on cursed initial is blessed", CurseInputs{IsFirstInput: true, IsOffsetZero: true, IsReinscription: true, IsFirstReinscriptionOnBlessed: true}, false},
		{"later reinscription on cursed initial stays cursed", CurseInputs{IsFirstInput: true, IsOffsetZero: true, IsReinscription: true}, true},
		{"unrecognized even field takes priority over the reinscription exception", CurseInputs{IsFirstInput: true, IsOffsetZero: true, IsReinscription: true, IsFirstReinscriptionOnBlessed: true, UnrecognizedEvenField: true}, true},
		{"unrecognized even field", CurseInputs{IsFirstInput: true, IsOffsetZero: true, UnrecognizedEvenField: true}, true},
		{"unbound", CurseInputs{IsFirstInput: true, IsOffsetZero: true, IsUnbound: true}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsCursed(c.in); got != c.want {
				t.Errorf("IsCursed(%+v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}
