// Package btcrpc is the bitcoin node JSON-RPC client the updater uses to
// fetch blocks and resolve prevout values, grounded on the teacher's
// scanner HTTP conventions (rate limiting, circuit breaker) applied to the
// Bitcoin Core RPC surface instead of a multi-chain balance provider. Each
// call makes a single attempt and is not retried here. Transport failures
// and HTTP 429 and 5xx responses are returned as transient errors, with a
// Retry-After hint for 429.
package btcrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/scanner"
)

// Client is a single bitcoind JSON-RPC endpoint with the resilience
// primitives the teacher's provider pool wraps every upstream call in.
type Client struct {
	url        string
	user, pass string
	httpClient *http.Client
	limiter    *scanner.RateLimiter
	breaker    *scanner.CircuitBreaker
}

// New builds a Client for a single bitcoind RPC endpoint.
func New(url, user, pass string, rps int) *Client {
	return &Client{
		url:        url,
		user:       user,
		pass:       pass,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    scanner.NewRateLimiter("bitcoind", rps),
		breaker:    scanner.NewCircuitBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerCooldown),
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("bitcoind rpc error %d: %s", e.Code, e.Message)
}

// call performs a single JSON-RPC request, applying the rate limiter and
// circuit breaker the way the teacher's provider pool wraps every upstream
// HTTP call.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	if !c.breaker.Allow() {
		return config.ErrCircuitOpen
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("btcrpc: marshal request %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("btcrpc: build request %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return config.NewTransientError(fmt.Errorf("%w: btcrpc %s: %v", config.ErrProviderUnavailable, method, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("btcrpc: read response %s: %w", method, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.breaker.RecordFailure()
		return config.NewTransientErrorWithRetry(fmt.Errorf("%w: btcrpc %s", config.ErrProviderRateLimit, method), parseRetryAfterHeader(resp.Header))
	}
	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
		return config.NewTransientError(fmt.Errorf("%w: btcrpc %s: http %d", config.ErrProviderUnavailable, method, resp.StatusCode))
	}

	var rr rpcResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("btcrpc: decode response %s: %w", method, err)
	}
	if rr.Error != nil {
		c.breaker.RecordFailure()
		return rr.Error
	}

	c.breaker.RecordSuccess()

	if out == nil {
		return nil
	}
	return json.Unmarshal(rr.Result, out)
}

// parseRetryAfterHeader reads a Retry-After header given in seconds. A
// missing or non-numeric header yields config.ExponentialBackoffBase.
// Unlike scanner.parseRetryAfter it does not accept the HTTP-date form,
// and zero or negative values are returned as given.
func parseRetryAfterHeader(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return config.ExponentialBackoffBase
}

// GetBlockCount returns the node's current best block height.
func (c *Client) GetBlockCount(ctx context.Context) (int32, error) {
	var height int32
	if err := c.call(ctx, "getblockcount", []interface{}{}, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBlockHash returns the block hash at a given height.
func (c *Client) GetBlockHash(ctx context.Context, height int32) (chainhash.Hash, error) {
	var hashHex string
	if err := c.call(ctx, "getblockhash", []interface{}{height}, &hashHex); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(hashHex)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("btcrpc: parse block hash: %w", err)
	}
	return *h, nil
}

// GetBlock fetches and fully decodes the raw block at the given hash
// (verbosity 0: raw hex, decoded locally with wire.MsgBlock so the tracker
// sees the same representation regardless of node RPC version).
func (c *Client) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	var rawHex string
	if err := c.call(ctx, "getblock", []interface{}{hash.String(), 0}, &rawHex); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("btcrpc: decode block hex: %w", err)
	}
	block := &wire.MsgBlock{}
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("btcrpc: deserialize block: %w", err)
	}
	return block, nil
}

type rawTxResult struct {
	Hex string `json:"hex"`
}

// FetchPrevoutValue implements ordtrack.PrevoutSource: it fetches the
// transaction that created txid:vout and returns the value (in satoshis)
// of that single output (§4.1 step 1).
func (c *Client) FetchPrevoutValue(ctx context.Context, txid [32]byte, vout uint32) (uint64, error) {
	reversed := reverseBytes(txid[:])
	txidHash, err := chainhash.NewHash(reversed)
	if err != nil {
		return 0, fmt.Errorf("btcrpc: prevout txid: %w", err)
	}

	var result rawTxResult
	if err := c.call(ctx, "getrawtransaction", []interface{}{txidHash.String(), true}, &result); err != nil {
		return 0, fmt.Errorf("btcrpc: getrawtransaction %s: %w", txidHash.String(), err)
	}

	raw, err := hex.DecodeString(result.Hex)
	if err != nil {
		return 0, fmt.Errorf("btcrpc: decode prevout tx hex: %w", err)
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return 0, fmt.Errorf("btcrpc: deserialize prevout tx: %w", err)
	}
	if int(vout) >= len(tx.TxOut) {
		return 0, fmt.Errorf("btcrpc: vout %d out of range for tx %s", vout, txidHash.String())
	}
	return uint64(tx.TxOut[vout].Value), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
