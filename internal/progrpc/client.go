// Package progrpc implements brc20.ProgClient over the BRC20-Prog module's
// JSON-RPC surface, using go-ethereum's rpc.Client the way the teacher's
// cmd/server wires an ethclient for its own chain interactions.
package progrpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ids"
)

// Client drives the external programmable-module VM via JSON-RPC
// (§6.2/§6.3): brc20_deploy, brc20_call, brc20_transact, brc20_withdraw,
// brc20_deposit, brc20_finalise_block.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the programmable module's RPC endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("progrpc: dial %s: %w", url, err)
	}
	return &Client{rpc: c}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

type txCountResult struct {
	TxCount int `json:"txCount"`
}

func (c *Client) callWithTimeout(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, config.ProgRPCTimeout)
	defer cancel()
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%w: %s: %v", config.ErrProgRPCFailed, method, err)
	}
	return nil
}

// Deploy calls brc20_deploy, submitting a new contract's creation code
// (§6.3).
func (c *Client) Deploy(ctx context.Context, sourcePkScript, data []byte, blockHeight int32) (int, error) {
	var res txCountResult
	err := c.callWithTimeout(ctx, &res, "brc20_deploy",
		hex.EncodeToString(sourcePkScript), hex.EncodeToString(data), blockHeight)
	return res.TxCount, err
}

// Call calls brc20_call, invoking an existing contract (by address or by
// the inscription id that deployed it).
func (c *Client) Call(ctx context.Context, sourcePkScript, contractAddr []byte, contractInscId *ids.InscriptionId, data []byte, blockHeight int32) (int, error) {
	var res txCountResult
	target := hex.EncodeToString(contractAddr)
	if contractInscId != nil {
		target = contractInscId.String()
	}
	err := c.callWithTimeout(ctx, &res, "brc20_call",
		hex.EncodeToString(sourcePkScript), target, hex.EncodeToString(data), blockHeight)
	return res.TxCount, err
}

// Transact calls brc20_transact, submitting one or more raw signed
// transactions for the module to apply as a batch.
func (c *Client) Transact(ctx context.Context, sourcePkScript, data []byte, blockHeight int32) (int, error) {
	var res txCountResult
	err := c.callWithTimeout(ctx, &res, "brc20_transact",
		hex.EncodeToString(sourcePkScript), hex.EncodeToString(data), blockHeight)
	return res.TxCount, err
}

type withdrawResult struct {
	OK bool `json:"ok"`
}

// Withdraw calls brc20_withdraw, debiting the module's internal ledger and
// confirming the funds are released back to the BTC layer.
func (c *Client) Withdraw(ctx context.Context, sourcePkScript []byte, ticker string, amount *big.Int, blockHeight int32) (bool, error) {
	var res withdrawResult
	err := c.callWithTimeout(ctx, &res, "brc20_withdraw",
		hex.EncodeToString(sourcePkScript), ticker, amount.String(), blockHeight)
	return res.OK, err
}

// Deposit calls brc20_deposit, crediting the module's internal ledger for
// a ticker amount routed to its deposit address (§4.3.6; called
// synchronously from the event engine, hence the context-free signature
// brc20.ProgClient declares).
func (c *Client) Deposit(ticker string, sourcePkScript []byte, amount *big.Int, blockHeight int32) (int, error) {
	var res txCountResult
	err := c.callWithTimeout(context.Background(), &res, "brc20_deposit",
		hex.EncodeToString(sourcePkScript), ticker, amount.String(), blockHeight)
	return res.TxCount, err
}

// FinaliseBlock calls brc20_finalise_block once every prog RPC issued for a
// block has completed (§4.3.6). The response is discarded; the block's
// trace hash is fetched separately through TraceHash.
func (c *Client) FinaliseBlock(ctx context.Context, blockTime int64, blockHash [32]byte, txIdx int) error {
	ctx, cancel := context.WithTimeout(ctx, config.ProgRPCTimeout)
	defer cancel()
	var discard interface{}
	if err := c.rpc.CallContext(ctx, &discard, "brc20_finalise_block", blockTime, hex.EncodeToString(blockHash[:]), txIdx); err != nil {
		return fmt.Errorf("%w: brc20_finalise_block: %v", config.ErrProgRPCFailed, err)
	}
	return nil
}

// TraceHash calls debug_get_block_trace_hash to fetch the module's own
// per-block trace hash. The updater stores it on the block header
// (ProgTraceHash); no cumulative trace hash is folded from it, and
// commit.CumulativeTraceHash has no caller.
func (c *Client) TraceHash(ctx context.Context, blockHeight int32) ([32]byte, error) {
	var hashHex string
	if err := c.callWithTimeout(ctx, &hashHex, "debug_get_block_trace_hash", blockHeight); err != nil {
		return [32]byte{}, err
	}
	raw, err := hex.DecodeString(hashHex)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("progrpc: malformed trace hash for height %d", blockHeight)
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}
