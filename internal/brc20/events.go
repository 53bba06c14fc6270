package brc20

import (
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ids"
)

// EventType is the stable small-integer id carried by every event row; it is
// part of the consensus hash and must never be renumbered.
type EventType int

const (
	EventDeployInscribe EventType = iota
	EventMintInscribe
	EventTransferInscribe
	EventTransferTransfer
	EventPredeployInscribe
	EventProgDeployInscribe
	EventProgDeployTransfer
	EventProgCallInscribe
	EventProgCallTransfer
	EventProgWithdrawInscribe
	EventProgWithdrawTransfer
	EventProgTransactInscribe
	EventProgTransactTransfer
)

var eventNames = [...]string{
	"deploy-inscribe",
	"mint-inscribe",
	"transfer-inscribe",
	"transfer-transfer",
	"predeploy-inscribe",
	"brc20prog-deploy-inscribe",
	"brc20prog-deploy-transfer",
	"brc20prog-call-inscribe",
	"brc20prog-call-transfer",
	"brc20prog-withdraw-inscribe",
	"brc20prog-withdraw-transfer",
	"brc20prog-transact-inscribe",
	"brc20prog-transact-transfer",
}

// Name returns the event's canonical name as it appears in the event string.
func (t EventType) Name() string {
	if int(t) < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// Event is a single appended record in a block's event stream. Only the
// fields relevant to its Type are populated; CanonicalString renders exactly
// the fields the table in the BRC-20 event engine's specification lists, in
// order, and must never be reordered — doing so changes every hash
// downstream.
type Event struct {
	Type           EventType
	InscriptionId  ids.InscriptionId
	BlockHeight    int32
	TxIndex        int32
	OldSatpoint    *ids.Satpoint
	NewSatpoint    ids.Satpoint
	Txid           [32]byte

	PkScript       []byte
	SpentPkScript  []byte
	Ticker         string
	OriginalTicker string
	Decimals       uint8

	MaxSupply     *big.Int
	LimitPerMint  *big.Int
	Amount        *big.Int
	IsSelfMint    bool

	ParentId *ids.InscriptionId

	PredeployerPkScript []byte
	Hash                []byte

	Data           []byte
	ByteLen        uint32
	ContractAddr   []byte
	ContractInscId *ids.InscriptionId
	BtcTxid        *[32]byte
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

func idOrEmpty(id *ids.InscriptionId) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func amountOrEmpty(v *big.Int, decimals uint8) string {
	if v == nil {
		return ""
	}
	return NumberStringWithFullDecimals(v, decimals)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// CanonicalString renders the event's consensus string: the event name, the
// inscription id, then the event's own field list, all joined with ";".
// Missing optional fields render as the empty string.
func (e Event) CanonicalString() string {
	fields := []string{e.Type.Name(), e.InscriptionId.String()}

	switch e.Type {
	case EventDeployInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			e.Ticker,
			e.OriginalTicker,
			amountOrEmpty(e.MaxSupply, e.Decimals),
			strconv.Itoa(int(e.Decimals)),
			amountOrEmpty(e.LimitPerMint, e.Decimals),
			boolString(e.IsSelfMint),
		)
	case EventMintInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			e.Ticker,
			e.OriginalTicker,
			amountOrEmpty(e.Amount, e.Decimals),
			idOrEmpty(e.ParentId),
		)
	case EventTransferInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			e.Ticker,
			e.OriginalTicker,
			amountOrEmpty(e.Amount, e.Decimals),
		)
	case EventTransferTransfer:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			hexOrEmpty(e.SpentPkScript),
			e.Ticker,
			e.OriginalTicker,
			amountOrEmpty(e.Amount, e.Decimals),
			hex.EncodeToString(e.Txid[:]),
		)
	case EventPredeployInscribe:
		fields = append(fields,
			hexOrEmpty(e.PredeployerPkScript),
			hexOrEmpty(e.Hash),
			strconv.Itoa(int(e.BlockHeight)),
		)
	case EventProgDeployInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			base64.StdEncoding.EncodeToString(e.Data),
		)
	case EventProgDeployTransfer:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			hexOrEmpty(e.SpentPkScript),
			base64.StdEncoding.EncodeToString(e.Data),
			strconv.FormatUint(uint64(e.ByteLen), 10),
		)
	case EventProgCallInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			hexOrEmpty(e.ContractAddr),
			idOrEmpty(e.ContractInscId),
			base64.StdEncoding.EncodeToString(e.Data),
		)
	case EventProgCallTransfer:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			hexOrEmpty(e.SpentPkScript),
			hexOrEmpty(e.ContractAddr),
			idOrEmpty(e.ContractInscId),
			base64.StdEncoding.EncodeToString(e.Data),
			strconv.FormatUint(uint64(e.ByteLen), 10),
		)
	case EventProgWithdrawInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			e.Ticker,
			e.OriginalTicker,
			amountOrEmpty(e.Amount, e.Decimals),
		)
	case EventProgWithdrawTransfer:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			hexOrEmpty(e.SpentPkScript),
			e.Ticker,
			e.OriginalTicker,
			amountOrEmpty(e.Amount, e.Decimals),
		)
	case EventProgTransactInscribe:
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			base64.StdEncoding.EncodeToString(e.Data),
		)
	case EventProgTransactTransfer:
		btcTxid := ""
		if e.BtcTxid != nil {
			btcTxid = hex.EncodeToString(e.BtcTxid[:])
		}
		fields = append(fields,
			hexOrEmpty(e.PkScript),
			hexOrEmpty(e.SpentPkScript),
			base64.StdEncoding.EncodeToString(e.Data),
			strconv.FormatUint(uint64(e.ByteLen), 10),
			btcTxid,
		)
	}

	out := fields[0]
	for _, f := range fields[1:] {
		out += ";" + f
	}
	return out
}

// JoinBlockEvents renders the per-block canonical event string fed into
// block_event_hash: each event's CanonicalString joined by
// config.EventSeparator, in append order.
func JoinBlockEvents(events []Event) string {
	if len(events) == 0 {
		return ""
	}
	out := events[0].CanonicalString()
	for _, e := range events[1:] {
		out += config.EventSeparator + e.CanonicalString()
	}
	return out
}
