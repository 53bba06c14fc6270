// Package ordtrack implements the Block Fetcher / UTXO tracker (§4.1): for
// each block it walks transactions in order, follows which satoshis carry
// which inscriptions across spends, and emits the minimal ordered transfer
// records the BRC-20 event engine consumes.
package ordtrack

import (
	"github.com/brc20idx/indexer/internal/ids"
)

// InscriptionLocation is one inscription's position within a UTXO: the
// sequence number identifying the inscription and the sat offset within the
// output's value range it currently occupies.
type InscriptionLocation struct {
	SequenceNumber uint32
	Offset         uint64
}

// UtxoEntry is the persisted record of an unspent output's value and the
// inscriptions it carries, the in-memory/on-disk form of §3's UtxoEntry and
// §6.1's outpoint_to_utxo_entry column family.
type UtxoEntry struct {
	Value        uint64
	PkScript     []byte
	Inscriptions []InscriptionLocation
}

// InscriptionEntry is the durable per-inscription record §3/§6.1 specify.
type InscriptionEntry struct {
	Charms            uint16
	Id                ids.InscriptionId
	InscriptionNumber int32
	SequenceNumber    uint32
	IsJSONOrText      bool
	IsCursedForBRC20  bool
	TxCountLimit      int16
}

// Transfer is the "ordinal transfer tuple" §3 defines as the producer
// interface between the UTXO tracker and the BRC-20 event engine.
type Transfer struct {
	BlockHeight         int32
	TxIndexInBlock      int
	InscriptionId       ids.InscriptionId
	InscriptionNumber   int32
	OldSatpoint         *ids.Satpoint
	NewSatpoint         ids.Satpoint
	ContainingTxid      [32]byte
	// SourcePkScript is the pkscript the inscription moved from; only set
	// (and only meaningful) when OldSatpoint is non-nil.
	SourcePkScript      []byte
	NewPkScript         []byte
	SentAsFee           bool
	ParentInscriptionId *ids.InscriptionId
	Content             []byte
	ContentType         []byte
	ByteLen             uint32
	// IsCursedForBRC20 is only meaningful when OldSatpoint is nil (the
	// inscribe-phase reveal of a fresh inscription); a moving inscription's
	// curse status was already decided at its reveal (§4.2.3).
	IsCursedForBRC20 bool
}

// flotsam is an inscription in flight during a single transaction's
// processing: either carried forward from a spent input or freshly revealed
// by this transaction's envelopes.
type flotsam struct {
	inscriptionId     ids.InscriptionId
	inscriptionNumber int32
	sequenceNumber    uint32
	offset            uint64 // absolute offset within the tx's accumulated input sat range
	oldSatpoint       *ids.Satpoint
	sourcePkScript    []byte
	cursed            bool
	isNew             bool
	parent            *ids.InscriptionId
	content            []byte
	contentType        []byte
	isJSONOrText       bool
}

// offsetInfo tracks, for one absolute sat offset already carrying an
// inscription into a transaction, whether the first inscription found there
// was cursed and how many further reinscriptions already sit on top of it
// (§4.2.3's "first reinscription on a cursed initial inscription is blessed"
// exception).
type offsetInfo struct {
	initialCursed bool
	count         int
}
