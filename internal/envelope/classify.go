package envelope

import (
	"bytes"
	"encoding/json"
	"strings"
)

// textContentTypes and jsonContentTypes are the exact content-type prefixes
// BRC-20 payloads are accepted under (§4.2.4).
var (
	textContentTypes = []string{"text/plain"}
	jsonContentTypes = []string{"application/json"}
)

// IsJSONOrText reports whether contentType (as inscribed, including any
// ";charset=..." suffix) names a text or JSON media type.
func IsJSONOrText(contentType []byte) bool {
	ct := string(contentType)
	for _, prefix := range textContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	for _, prefix := range jsonContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// BRC20Payload is the subset of a decoded BRC-20 JSON body the event engine
// needs before it dispatches to per-operation handling; unknown keys are
// simply ignored by json.Unmarshal.
type BRC20Payload struct {
	Protocol string `json:"p"`
	Op       string `json:"op"`
	Module   string `json:"module"`

	Tick string `json:"tick"`
	Max  string `json:"max"`
	Lim  string `json:"lim"`
	Dec  string `json:"dec"`
	Amt  string `json:"amt"`

	SelfMint string `json:"self_mint"`

	Contract string `json:"contract"`
	InscriptionID string `json:"inscription_id"`
	Data string `json:"data"`
	Base64 string `json:"base64"`
	Hash string `json:"h"`
}

const brc20ProgModuleID = "BRC20PROG"

// ParseBRC20Payload attempts to decode body as a BRC-20 protocol JSON
// payload, applying §4.2.4's p-field admission rule. A body that isn't
// valid JSON, or whose "p" field isn't a recognized protocol identifier,
// returns ok=false — a silent classification miss, not an error.
func ParseBRC20Payload(contentType, body []byte) (BRC20Payload, bool) {
	if !IsJSONOrText(contentType) {
		return BRC20Payload{}, false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return BRC20Payload{}, false
	}

	var p BRC20Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return BRC20Payload{}, false
	}

	switch p.Protocol {
	case "brc-20":
		return p, true
	case "brc20-prog":
		return p, true
	case "brc20-module":
		if p.Module != brc20ProgModuleID {
			return BRC20Payload{}, false
		}
		return p, true
	default:
		return BRC20Payload{}, false
	}
}

// OptionalString returns nil for an empty string and a pointer to s
// otherwise, matching the engine's "absent vs empty" amount/decimals
// parameter convention (§4.3.2).
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
