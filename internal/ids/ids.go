// Package ids implements the inscription-addressing primitives shared by
// every layer of the indexer: InscriptionId, Satpoint, and Outpoint, along
// with their canonical string and binary encodings.
package ids

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when parsing a string or binary form fails.
var ErrMalformed = errors.New("ids: malformed encoding")

// TxidSize is the length in bytes of a bitcoin txid.
const TxidSize = 32

// NullTxidHex is the all-zero txid used by satpoints that denote the "lost
// sats" sink, as a 64-character hex string (matches config.NoTxID).
const NullTxidHex = "0000000000000000000000000000000000000000000000000000000000000000"

// InscriptionId identifies an inscription by the transaction that revealed
// it and its index within that reveal transaction's envelopes.
type InscriptionId struct {
	Txid  [TxidSize]byte // natural (big-endian / RPC) byte order
	Index uint32
}

// String renders the canonical "{hex(txid)}i{index}" form.
func (id InscriptionId) String() string {
	return hex.EncodeToString(id.Txid[:]) + "i" + strconv.FormatUint(uint64(id.Index), 10)
}

// ParseInscriptionId parses the canonical "{txid}i{index}" string form.
func ParseInscriptionId(s string) (InscriptionId, error) {
	sep := strings.LastIndexByte(s, 'i')
	if sep < 0 {
		return InscriptionId{}, fmt.Errorf("%w: inscription id %q missing 'i' separator", ErrMalformed, s)
	}
	txidHex, idxStr := s[:sep], s[sep+1:]
	if len(txidHex) != TxidSize*2 {
		return InscriptionId{}, fmt.Errorf("%w: inscription id %q txid wrong length", ErrMalformed, s)
	}
	raw, err := hex.DecodeString(txidHex)
	if err != nil {
		return InscriptionId{}, fmt.Errorf("%w: inscription id %q: %v", ErrMalformed, s, err)
	}
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return InscriptionId{}, fmt.Errorf("%w: inscription id %q index: %v", ErrMalformed, s, err)
	}
	var id InscriptionId
	copy(id.Txid[:], raw)
	id.Index = uint32(idx)
	return id, nil
}

// reverseBytes returns a reversed copy of b.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// MarshalBinary encodes the inscription id into its 36-byte store key form:
// reversed txid (wire byte order) followed by the big-endian index.
func (id InscriptionId) MarshalBinary() []byte {
	out := make([]byte, 0, TxidSize+4)
	out = append(out, reverseBytes(id.Txid[:])...)
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], id.Index)
	return append(out, idxBuf[:]...)
}

// UnmarshalInscriptionId decodes the 36-byte store key form produced by
// MarshalBinary.
func UnmarshalInscriptionId(b []byte) (InscriptionId, error) {
	if len(b) != TxidSize+4 {
		return InscriptionId{}, fmt.Errorf("%w: inscription id binary form must be 36 bytes, got %d", ErrMalformed, len(b))
	}
	var id InscriptionId
	copy(id.Txid[:], reverseBytes(b[:TxidSize]))
	id.Index = binary.BigEndian.Uint32(b[TxidSize:])
	return id, nil
}

// Satpoint locates an inscription as (outpoint, sat-offset-within-output).
// A Satpoint whose Txid is the all-zero null txid denotes the "lost sats"
// sink.
type Satpoint struct {
	Txid   [TxidSize]byte
	Vout   uint32
	Offset uint64
}

// IsNull reports whether this satpoint is the "lost sats" sink.
func (s Satpoint) IsNull() bool {
	for _, b := range s.Txid {
		if b != 0 {
			return false
		}
	}
	return true
}

// String renders the canonical "{hex(txid)}:{vout}:{offset}" form.
func (s Satpoint) String() string {
	return hex.EncodeToString(s.Txid[:]) + ":" + strconv.FormatUint(uint64(s.Vout), 10) + ":" + strconv.FormatUint(s.Offset, 10)
}

// ParseSatpoint parses the canonical "{txid}:{vout}:{offset}" string form.
func ParseSatpoint(s string) (Satpoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Satpoint{}, fmt.Errorf("%w: satpoint %q must have 3 colon-separated parts", ErrMalformed, s)
	}
	if len(parts[0]) != TxidSize*2 {
		return Satpoint{}, fmt.Errorf("%w: satpoint %q txid wrong length", ErrMalformed, s)
	}
	raw, err := hex.DecodeString(parts[0])
	if err != nil {
		return Satpoint{}, fmt.Errorf("%w: satpoint %q: %v", ErrMalformed, s, err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Satpoint{}, fmt.Errorf("%w: satpoint %q vout: %v", ErrMalformed, s, err)
	}
	offset, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Satpoint{}, fmt.Errorf("%w: satpoint %q offset: %v", ErrMalformed, s, err)
	}
	var sp Satpoint
	copy(sp.Txid[:], raw)
	sp.Vout = uint32(vout)
	sp.Offset = offset
	return sp, nil
}

// SatpointBinarySize is the length of a satpoint's on-disk wire encoding.
const SatpointBinarySize = TxidSize + 4 + 8

// MarshalBinary encodes the satpoint in its 44-byte on-disk wire form:
// reversed txid ∥ little-endian vout ∥ little-endian sat offset.
func (s Satpoint) MarshalBinary() []byte {
	out := make([]byte, 0, SatpointBinarySize)
	out = append(out, reverseBytes(s.Txid[:])...)
	var voutBuf [4]byte
	binary.LittleEndian.PutUint32(voutBuf[:], s.Vout)
	out = append(out, voutBuf[:]...)
	var offBuf [8]byte
	binary.LittleEndian.PutUint64(offBuf[:], s.Offset)
	return append(out, offBuf[:]...)
}

// UnmarshalSatpoint decodes the 44-byte on-disk wire form produced by
// MarshalBinary.
func UnmarshalSatpoint(b []byte) (Satpoint, error) {
	if len(b) != SatpointBinarySize {
		return Satpoint{}, fmt.Errorf("%w: satpoint binary form must be %d bytes, got %d", ErrMalformed, SatpointBinarySize, len(b))
	}
	var sp Satpoint
	copy(sp.Txid[:], reverseBytes(b[:TxidSize]))
	sp.Vout = binary.LittleEndian.Uint32(b[TxidSize : TxidSize+4])
	sp.Offset = binary.LittleEndian.Uint64(b[TxidSize+4:])
	return sp, nil
}

// Outpoint identifies a transaction output.
type Outpoint struct {
	Txid [TxidSize]byte
	Vout uint32
}

// String renders "{hex(txid)}:{vout}".
func (o Outpoint) String() string {
	return hex.EncodeToString(o.Txid[:]) + ":" + strconv.FormatUint(uint64(o.Vout), 10)
}

// OutpointBinarySize is the length of an outpoint's store key encoding.
const OutpointBinarySize = TxidSize + 4

// MarshalBinary encodes the outpoint into its 36-byte store key form:
// reversed txid ∥ big-endian vout.
func (o Outpoint) MarshalBinary() []byte {
	out := make([]byte, 0, OutpointBinarySize)
	out = append(out, reverseBytes(o.Txid[:])...)
	var voutBuf [4]byte
	binary.BigEndian.PutUint32(voutBuf[:], o.Vout)
	return append(out, voutBuf[:]...)
}

// UnmarshalOutpoint decodes the 36-byte store key form produced by
// MarshalBinary.
func UnmarshalOutpoint(b []byte) (Outpoint, error) {
	if len(b) != OutpointBinarySize {
		return Outpoint{}, fmt.Errorf("%w: outpoint binary form must be 36 bytes, got %d", ErrMalformed, len(b))
	}
	var o Outpoint
	copy(o.Txid[:], reverseBytes(b[:TxidSize]))
	o.Vout = binary.BigEndian.Uint32(b[TxidSize:])
	return o, nil
}
