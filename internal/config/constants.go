package config

import (
	"time"
)

// Consensus-critical constants baked into the event hash chain. Changing any
// of these changes the canonical event strings and therefore every hash
// downstream of the change.
const (
	EventSeparator = "|"
	MaxDecimals    = 18

	PreDeployBlockHeightDelay           = 3
	PreDeployBlockHeightAcceptanceDelay = 10

	BRC20ProgOpReturnPkScriptHex = "6a09425243323050524f47"
	OpReturnPrefixHex            = "6a"
	NoTxID                       = "0000000000000000000000000000000000000000000000000000000000000000"

	EventHashVersion = 2
	DBVersion        = 7

	BRC20ProgMineBatchSize = 50_000
)

// SwapRefundHeight is the fixed mainnet height at which the swap-module
// refund hook runs once, replaying its balances back to their owners.
const SwapRefundHeight int32 = 932888

// Savepoint / reorg tuning, §4.4.2-§4.4.3.
const (
	MaxSavepoints = 2
)

// Network identifies a bitcoin network variant.
type Network string

const (
	NetworkMainnet  Network = "mainnet"
	NetworkTestnet  Network = "testnet"
	NetworkTestnet4 Network = "testnet4"
	NetworkSignet   Network = "signet"
	NetworkRegtest  Network = "regtest"
)

// ActivationHeights holds the per-network block heights at which BRC-20
// protocol phases switch on.
type ActivationHeights struct {
	FirstInscriptionHeight      int32
	FirstBRC20Height            int32
	SelfMintActivationHeight    int32
	FirstBRC20ProgPhase1Height  int32
	// FirstBRC20ProgAllTickersHeight is phase 2: before it, only tickers
	// with a 6-byte original ticker may deposit into the programmable
	// module, everything else burns (§4.3.5/§6.6).
	FirstBRC20ProgAllTickersHeight int32
	PragueHeight                int32
}

// activationTable is the fixed per-network table from spec §6.6.
var activationTable = map[Network]ActivationHeights{
	NetworkMainnet: {
		FirstInscriptionHeight:         767430,
		FirstBRC20Height:               779832,
		SelfMintActivationHeight:       837090,
		FirstBRC20ProgPhase1Height:     912690,
		FirstBRC20ProgAllTickersHeight: 9_999_999, // unset upstream, pending finalization
		PragueHeight:                   923369,
	},
	NetworkSignet: {
		FirstInscriptionHeight:         112402,
		FirstBRC20Height:               112402,
		SelfMintActivationHeight:       0,
		FirstBRC20ProgPhase1Height:     230000,
		FirstBRC20ProgAllTickersHeight: 230000,
		PragueHeight:                   275000,
	},
	// testnet/testnet4/regtest activate everything from genesis so that
	// local end-to-end tests don't need to fast-forward through mainnet
	// history; operators overriding these values do so at their own risk
	// since activation heights are consensus-critical.
	NetworkTestnet: {
		FirstInscriptionHeight:         0,
		FirstBRC20Height:               0,
		SelfMintActivationHeight:       0,
		FirstBRC20ProgPhase1Height:     0,
		FirstBRC20ProgAllTickersHeight: 0,
		PragueHeight:                   0,
	},
	NetworkTestnet4: {
		FirstInscriptionHeight:         0,
		FirstBRC20Height:               0,
		SelfMintActivationHeight:       0,
		FirstBRC20ProgPhase1Height:     0,
		FirstBRC20ProgAllTickersHeight: 0,
		PragueHeight:                   0,
	},
	NetworkRegtest: {
		FirstInscriptionHeight:         0,
		FirstBRC20Height:               0,
		SelfMintActivationHeight:       0,
		FirstBRC20ProgPhase1Height:     0,
		FirstBRC20ProgAllTickersHeight: 0,
		PragueHeight:                   0,
	},
}

// Activations returns the activation height table for a network, defaulting
// to mainnet's table for unrecognized values.
func Activations(network Network) ActivationHeights {
	if a, ok := activationTable[network]; ok {
		return a
	}
	return activationTable[NetworkMainnet]
}

// SavepointInterval returns how many blocks elapse between durable
// savepoints for a network, per §4.4.3.
func SavepointInterval(network Network) int32 {
	switch network {
	case NetworkTestnet, NetworkTestnet4:
		return 50
	default:
		return 10
	}
}

// ChainTipDistance returns the maximum distance from the node's tip at which
// a savepoint is still considered safe to create, per §4.4.3.
func ChainTipDistance(network Network) int32 {
	switch network {
	case NetworkTestnet, NetworkTestnet4:
		return 101
	default:
		return 21
	}
}

// Retry / timeout tuning, §5.
const (
	RetryCount               = 10
	RetryBackoff             = 2 * time.Second
	ProgRPCTimeout            = 10 * time.Second
	UpstreamEventProviderTimeout = 30 * time.Second
	PrevoutChannelSize        = 20_000
	PrevoutBatchSize          = 2048
)

// Circuit breaker states and tuning for the bitcoind/prog RPC clients.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"

	CircuitBreakerThreshold   = 5
	CircuitBreakerCooldown    = 30 * time.Second
	CircuitBreakerHalfOpenMax = 1

	ExponentialBackoffBase = 500 * time.Millisecond
	ExponentialBackoffMax  = 30 * time.Second
)

// Server
const (
	DefaultAPIHost     = "127.0.0.1"
	DefaultAPIPort     = 11030
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 60 * time.Second
)

// Logging
const (
	LogFilePattern = "brc20idx-%s-%s.log" // date, level
	LogMaxAgeDays  = 30
)

// Database
const (
	DBBusyTimeoutMillis = 5000
)
