package brc20

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ids"
)

// ErrTickerRejected marks a deploy inscription that silently drops per
// §4.3.3 — not a processing error, a protocol no-op.
var ErrTickerRejected = errors.New("brc20: ticker deploy rejected")

// Ticker is the durable admission record for a BRC-20 token.
type Ticker struct {
	Ticker              string // lowercased key
	OriginalTicker      string // bytes as inscribed
	MaxSupply           *big.Int
	RemainingSupply     *big.Int
	BurnedSupply        *big.Int
	LimitPerMint        *big.Int
	Decimals            uint8
	IsSelfMint          bool
	DeployInscriptionId ids.InscriptionId
	DeployBlockHeight   int32
}

// DeployRequest is the decoded "deploy" inscription payload plus the
// context the admission rules need.
type DeployRequest struct {
	OriginalTickerBytes []byte
	MaxSupplyStr        *string
	LimitPerMintStr     *string
	DecimalsStr         *string
	SelfMintStr         *string
	ParentId            *ids.InscriptionId
	BlockHeight         int32
	InscriptionId       ids.InscriptionId

	// Predeploy lookup, for 6-byte tickers (§4.3.3 rule 6).
	LookupPredeploy func(id ids.InscriptionId) (*PredeployRecord, bool)
	PredeployerPkScript []byte
}

// PredeployRecord is the subset of a predeploy-inscribe event needed to
// validate a 6-byte ticker's deploy.
type PredeployRecord struct {
	Hash        []byte
	BlockHeight int32
}

// tickerExists reports whether a ticker with the given lowercased key is
// already admitted.
type tickerExists func(key string) bool

// AdmitDeploy applies the §4.3.3 admission rules in order, returning the
// admitted Ticker or ErrTickerRejected (wrapped with the specific reason)
// if any rule fails. A rejection is a silent protocol drop, not a fatal
// error — callers must not emit an event or mutate any other state when
// this returns ErrTickerRejected.
func AdmitDeploy(req DeployRequest, activations config.ActivationHeights, exists tickerExists) (*Ticker, error) {
	key := strings.ToLower(string(req.OriginalTickerBytes))

	if exists(key) {
		return nil, fmt.Errorf("%w: ticker %q already deployed", ErrTickerRejected, key)
	}

	n := len(req.OriginalTickerBytes)
	if n != 4 && n != 5 && n != 6 {
		return nil, fmt.Errorf("%w: ticker length %d not in {4,5,6}", ErrTickerRejected, n)
	}
	for _, b := range req.OriginalTickerBytes {
		if b == 0 {
			return nil, fmt.Errorf("%w: ticker contains a null byte", ErrTickerRejected)
		}
	}

	decimals, err := GetDecimalsValue(req.DecimalsStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTickerRejected, err)
	}

	maxSupply, err := GetAmountValue(req.MaxSupplyStr, decimals, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTickerRejected, err)
	}
	if maxSupply == nil {
		return nil, fmt.Errorf("%w: max_supply is required", ErrTickerRejected)
	}

	limitPerMint, err := GetAmountValue(req.LimitPerMintStr, decimals, maxSupply, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTickerRejected, err)
	}

	isSelfMint := false

	switch n {
	case 5:
		if req.BlockHeight < activations.SelfMintActivationHeight {
			return nil, fmt.Errorf("%w: 5-byte ticker before self-mint activation", ErrTickerRejected)
		}
		if req.SelfMintStr == nil || *req.SelfMintStr != "true" {
			return nil, fmt.Errorf("%w: 5-byte ticker requires self_mint=true", ErrTickerRejected)
		}
		isSelfMint = true
		if maxSupply.Sign() == 0 && limitPerMint.Sign() == 0 {
			maxSupply = new(big.Int).Set(MaxAmount)
			limitPerMint = new(big.Int).Set(MaxAmount)
		}
	case 6:
		if req.BlockHeight < activations.FirstBRC20ProgPhase1Height {
			return nil, fmt.Errorf("%w: 6-byte ticker before prog phase1 activation", ErrTickerRejected)
		}
		for _, b := range req.OriginalTickerBytes {
			if !isAlphanumericOrDash(b) {
				return nil, fmt.Errorf("%w: 6-byte ticker has invalid character", ErrTickerRejected)
			}
		}
		if req.ParentId == nil || req.LookupPredeploy == nil {
			return nil, fmt.Errorf("%w: 6-byte ticker requires a predeploy parent", ErrTickerRejected)
		}
		predeploy, ok := req.LookupPredeploy(*req.ParentId)
		if !ok {
			return nil, fmt.Errorf("%w: predeploy parent not found", ErrTickerRejected)
		}
		if predeploy.BlockHeight > req.BlockHeight-config.PreDeployBlockHeightDelay {
			return nil, fmt.Errorf("%w: predeploy too recent", ErrTickerRejected)
		}
		wantHash := predeployCommitHash(req.OriginalTickerBytes, req.PredeployerPkScript)
		if !hashEqualHex(predeploy.Hash, wantHash) {
			return nil, fmt.Errorf("%w: predeploy hash mismatch", ErrTickerRejected)
		}
		if req.SelfMintStr != nil && *req.SelfMintStr == "true" {
			isSelfMint = true
			if maxSupply.Sign() == 0 && limitPerMint.Sign() == 0 {
				maxSupply = new(big.Int).Set(MaxAmount)
				limitPerMint = new(big.Int).Set(MaxAmount)
			}
		}
	}

	if decimals > MaxDecimals || maxSupply.Sign() < 1 {
		return nil, fmt.Errorf("%w: decimals/max_supply out of range", ErrTickerRejected)
	}

	return &Ticker{
		Ticker:              key,
		OriginalTicker:      string(req.OriginalTickerBytes),
		MaxSupply:           maxSupply,
		RemainingSupply:     new(big.Int).Set(maxSupply),
		BurnedSupply:        big.NewInt(0),
		LimitPerMint:        limitPerMint,
		Decimals:            decimals,
		IsSelfMint:          isSelfMint,
		DeployInscriptionId: req.InscriptionId,
		DeployBlockHeight:   req.BlockHeight,
	}, nil
}

func isAlphanumericOrDash(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b == '-':
		return true
	default:
		return false
	}
}

// predeployCommitHash computes sha256(hex(sha256(ticker ∥ pkscript))),
// compared against the stored predeploy record's hash field.
func predeployCommitHash(ticker, pkscript []byte) string {
	inner := sha256.Sum256(append(append([]byte{}, ticker...), pkscript...))
	innerHex := hex.EncodeToString(inner[:])
	outer := sha256.Sum256([]byte(innerHex))
	return hex.EncodeToString(outer[:])
}

func hashEqualHex(stored []byte, wantHex string) bool {
	return hex.EncodeToString(stored) == wantHex
}
