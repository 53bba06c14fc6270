// Package envelope extracts inscription envelopes from transaction witness
// scripts and classifies their content for the BRC-20 event engine (§4.2).
package envelope

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// protocolID is the literal "ord" push that opens every inscription envelope.
var protocolID = []byte("ord")

// Tag identifies a single-byte envelope field tag (§4.2.1).
type Tag byte

const (
	TagContentType     Tag = 1
	TagPointer         Tag = 2
	TagParent          Tag = 3
	TagMetadata        Tag = 5
	TagMetaprotocol    Tag = 7
	TagContentEncoding Tag = 9
	TagDelegate        Tag = 11
	TagRune            Tag = 13
	TagProperties      Tag = 14
)

// Envelope is a single "OP_FALSE OP_IF ord ... OP_ENDIF" block recovered
// from one input's witness, with its tagged fields split out (§4.2.1-4.2.2).
type Envelope struct {
	Input  int // index of the input this envelope was found in
	Offset int // index of this envelope among all envelopes in the transaction

	// IndexInInput is this envelope's position among the envelopes found in
	// its own input, independent of Offset. A nonzero value means it is not
	// the first envelope revealed by that input's witness, which curses it
	// under the "not at input-offset zero" rule (§4.2.3).
	IndexInInput int

	ContentType     []byte
	ContentEncoding []byte
	Parent          *[36]byte // raw 36-byte inscription id binary form, if present
	Pointer         *uint64
	Metadata        []byte
	Metaprotocol    []byte
	Body            []byte
	HasBody         bool

	DuplicateField         bool
	IncompleteField        bool
	UnrecognizedEvenField  bool
}

// field is one tag/value pair recovered before the body separator.
type field struct {
	tag   byte
	value []byte
}

// FromTransaction extracts every inscription envelope carried by tx's
// witnesses, one input at a time, preserving input order. Offset numbers
// envelopes across the whole transaction (matching the inscription id index
// ord assigns to reveals), not just within one input.
func FromTransaction(tx *wire.MsgTx) []Envelope {
	var out []Envelope
	for i, in := range tx.TxIn {
		tapscript := unversionedLeafScript(in.Witness)
		if tapscript == nil {
			continue
		}
		out = append(out, fromTapscript(tapscript, i, len(out))...)
	}
	return out
}

// unversionedLeafScript extracts the tapscript leaf from a taproot
// key-path-absent witness: control block last, script second-to-last (when
// an annex is absent) or third-to-last (when present, tagged 0x50).
func unversionedLeafScript(witness wire.TxWitness) []byte {
	if len(witness) < 2 {
		return nil
	}
	items := witness
	if len(items) > 1 {
		last := items[len(items)-1]
		if len(last) > 0 && last[0] == 0x50 {
			items = items[:len(items)-1]
		}
	}
	if len(items) < 2 {
		return nil
	}
	// items[len-1] is the control block; items[len-2] is the tapscript.
	return items[len(items)-2]
}

// fromTapscript scans a single input's tapscript for envelopes, in the
// order they appear. offsetBase is the count of envelopes already found in
// earlier inputs of the same transaction, so Offset numbers envelopes
// transaction-wide.
func fromTapscript(script []byte, input, offsetBase int) []Envelope {
	var envelopes []Envelope
	tok := txscript.MakeScriptTokenizer(0, script)

	ops := collectOps(tok)
	i := 0
	for i < len(ops) {
		if isPush(ops[i], []byte{}) {
			env, consumed, ok := parseEnvelope(ops, i, input, offsetBase+len(envelopes), len(envelopes))
			if ok {
				envelopes = append(envelopes, env)
				i += consumed
				continue
			}
		}
		i++
	}
	return envelopes
}

// scriptOp is one decoded opcode/data pair from the tokenizer, captured up
// front so the envelope parser can look ahead freely.
type scriptOp struct {
	opcode byte
	data   []byte
}

func collectOps(tok txscript.ScriptTokenizer) []scriptOp {
	var ops []scriptOp
	for tok.Next() {
		ops = append(ops, scriptOp{opcode: tok.Opcode(), data: tok.Data()})
	}
	return ops
}

func isPush(op scriptOp, want []byte) bool {
	return op.opcode <= txscript.OP_PUSHDATA4 && bytesEqual(op.data, want)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseEnvelope attempts to parse "OP_FALSE OP_IF ord <fields> OP_ENDIF"
// starting at ops[start] (the OP_FALSE empty push). Returns the number of
// ops consumed and whether a complete envelope was found.
func parseEnvelope(ops []scriptOp, start, input, offset, indexInInput int) (Envelope, int, bool) {
	i := start
	if i >= len(ops) || !isPush(ops[i], []byte{}) {
		return Envelope{}, 0, false
	}
	i++
	if i >= len(ops) || ops[i].opcode != txscript.OP_IF {
		return Envelope{}, 0, false
	}
	i++
	if i >= len(ops) || !isPush(ops[i], protocolID) {
		return Envelope{}, 0, false
	}
	i++

	var payload [][]byte
	for {
		if i >= len(ops) {
			return Envelope{}, 0, false
		}
		if ops[i].opcode == txscript.OP_ENDIF {
			i++
			break
		}
		if ops[i].opcode > txscript.OP_16 {
			// Non-push, non-OP_ENDIF opcode terminates the envelope scan
			// without a match.
			return Envelope{}, 0, false
		}
		payload = append(payload, pushValue(ops[i]))
		i++
	}

	env := buildEnvelope(payload, input, offset, indexInInput)
	return env, i - start, true
}

// pushValue normalizes a tokenizer op (data push or OP_1..OP_16/OP_1NEGATE)
// into its raw payload byte string, matching ord's pushnum handling.
func pushValue(op scriptOp) []byte {
	switch {
	case op.opcode == txscript.OP_1NEGATE:
		return []byte{0x81}
	case op.opcode >= txscript.OP_1 && op.opcode <= txscript.OP_16:
		return []byte{op.opcode - txscript.OP_1 + 1}
	default:
		return op.data
	}
}

// buildEnvelope splits the raw payload chunk list into tag/value fields and
// an optional body, the way ParsedEnvelope::from(RawEnvelope) does: the body
// begins at the first empty push found at an even index.
func buildEnvelope(payload [][]byte, input, offset, indexInInput int) Envelope {
	bodyStart := -1
	for i := 0; i < len(payload); i += 2 {
		if len(payload[i]) == 0 {
			bodyStart = i
			break
		}
	}

	fieldsEnd := len(payload)
	hasBody := bodyStart >= 0
	if hasBody {
		fieldsEnd = bodyStart
	}

	var fields []field
	incomplete := false
	for i := 0; i < fieldsEnd; i += 2 {
		if i+1 >= fieldsEnd {
			incomplete = true
			break
		}
		if len(payload[i]) != 1 {
			// Multi-byte tags are not recognized; still carried as an
			// even/odd field depending on their first byte.
			fields = append(fields, field{tag: tagByteOf(payload[i]), value: payload[i+1]})
			continue
		}
		fields = append(fields, field{tag: payload[i][0], value: payload[i+1]})
	}

	seen := make(map[byte]int)
	duplicate := false
	for _, f := range fields {
		seen[f.tag]++
		if seen[f.tag] > 1 {
			duplicate = true
		}
	}

	env := Envelope{
		Input:           input,
		Offset:          offset,
		IndexInInput:    indexInInput,
		DuplicateField:  duplicate,
		IncompleteField: incomplete,
		HasBody:         hasBody,
	}

	firstOf := func(tag byte) ([]byte, bool) {
		for _, f := range fields {
			if f.tag == tag {
				return f.value, true
			}
		}
		return nil, false
	}

	unrecognized := map[byte]bool{
		byte(TagContentType): true, byte(TagPointer): true, byte(TagParent): true,
		byte(TagMetadata): true, byte(TagMetaprotocol): true, byte(TagContentEncoding): true,
		byte(TagDelegate): true, byte(TagRune): true, byte(TagProperties): true,
	}

	if v, ok := firstOf(byte(TagContentType)); ok {
		env.ContentType = v
	}
	if v, ok := firstOf(byte(TagContentEncoding)); ok {
		env.ContentEncoding = v
	}
	if v, ok := firstOf(byte(TagMetadata)); ok {
		env.Metadata = v
	}
	if v, ok := firstOf(byte(TagMetaprotocol)); ok {
		env.Metaprotocol = v
	}
	if v, ok := firstOf(byte(TagPointer)); ok {
		p := decodeLEUint64(v)
		env.Pointer = &p
	}
	if v, ok := firstOf(byte(TagParent)); ok && len(v) == 36 {
		var id [36]byte
		copy(id[:], v)
		env.Parent = &id
	}

	for _, f := range fields {
		if !unrecognized[f.tag] && f.tag%2 == 0 {
			env.UnrecognizedEvenField = true
		}
	}

	if hasBody {
		for _, chunk := range payload[bodyStart+1:] {
			env.Body = append(env.Body, chunk...)
		}
	}

	return env
}

func tagByteOf(b []byte) byte {
	if len(b) == 0 {
		return 0xff // treated as unrecognized odd tag (ignored)
	}
	return b[0]
}

// decodeLEUint64 decodes a little-endian, variable-length unsigned integer
// the way ord's pointer field does: shortest encoding, zero-extended.
func decodeLEUint64(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		if i >= 8 {
			break
		}
		v |= uint64(c) << (8 * uint(i))
	}
	return v
}
