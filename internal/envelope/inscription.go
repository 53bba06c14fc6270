package envelope

import (
	"github.com/brc20idx/indexer/internal/ids"
)

// InscriptionInfo is the record the Envelope Decoder hands to the BRC-20
// event engine for each new inscription revealed in a transaction (§3).
type InscriptionInfo struct {
	Id              ids.InscriptionId
	InscriptionNumber int32
	IsCursed        bool
	Parent          *ids.InscriptionId
	IsJSONOrText    bool
	Content         []byte
	ContentType     []byte
	Metaprotocol    []byte
	Pointer         *uint64
}

// FromEnvelope builds an InscriptionInfo from a decoded envelope and the
// curse/numbering decision the caller already made for it; content
// classification (§4.2.4) is applied here.
func FromEnvelope(env Envelope, id ids.InscriptionId, number int32, cursed bool) InscriptionInfo {
	var parent *ids.InscriptionId
	if env.Parent != nil {
		pid, err := ids.UnmarshalInscriptionId(env.Parent[:])
		if err == nil {
			parent = &pid
		}
	}

	return InscriptionInfo{
		Id:                id,
		InscriptionNumber: number,
		IsCursed:          cursed,
		Parent:            parent,
		IsJSONOrText:      IsJSONOrText(env.ContentType),
		Content:           env.Body,
		ContentType:       env.ContentType,
		Metaprotocol:      env.Metaprotocol,
		Pointer:           env.Pointer,
	}
}

// IsValidBRC20 reports §4.2.4's is_valid_brc20 predicate: not cursed, is
// JSON/text, and the body parses as a recognized BRC-20 protocol payload.
func (info InscriptionInfo) IsValidBRC20() (BRC20Payload, bool) {
	if info.IsCursed || !info.IsJSONOrText {
		return BRC20Payload{}, false
	}
	return ParseBRC20Payload(info.ContentType, info.Content)
}
