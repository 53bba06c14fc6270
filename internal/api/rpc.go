// Package api exposes the read-only JSON-RPC façade §6.4 defines over the
// durable store, grounded on the teacher's chi router wiring.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brc20idx/indexer/internal/api/handlers"
	apimw "github.com/brc20idx/indexer/internal/api/middleware"
	"github.com/brc20idx/indexer/internal/config"
	"github.com/brc20idx/indexer/internal/ids"
	"github.com/brc20idx/indexer/internal/store"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcErrorObj    `json:"error,omitempty"`
}

type rpcErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// methodFunc handles one JSON-RPC method's params and returns its result.
type methodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server serves the §6.4 JSON-RPC surface over a single POST endpoint.
type Server struct {
	store   store.Store
	methods map[string]methodFunc
}

// NewServer builds the façade bound to a store.
func NewServer(s store.Store) *Server {
	srv := &Server{store: s}
	srv.methods = map[string]methodFunc{
		"getLatestBlockHeight":             srv.getLatestBlockHeight,
		"getBlockHashAndTs":                srv.getBlockHashAndTs,
		"getBlockBRC20Txes":                srv.getBlockBRC20Txes,
		"getBlockIndexTimes":               srv.getBlockIndexTimes,
		"getInscriptionInfo":               srv.getInscriptionInfo,
		"getInscriptionInfoBySequenceNumber": srv.getInscriptionInfoBySequenceNumber,
		"getUTXOInfo":                      srv.getUTXOInfo,
		"getBlockBitmapInscrs":             srv.getBlockBitmapInscrs,
		"getBlockSNSInscrs":                srv.getBlockSNSInscrs,
	}
	return srv
}

// Router builds the chi router for the façade: one POST endpoint bound by
// default to 127.0.0.1:11030, plus a health check (§6.4).
func Router(cfg *config.Config, s store.Store, version string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(apimw.RequestLogging)
	r.Use(apimw.HostCheck)

	r.Get("/health", handlers.HealthHandler(cfg, version))

	srv := NewServer(s)
	r.Group(func(r chi.Router) {
		r.Use(apimw.RPCCORS)
		r.Options("/", srv.ServeHTTP)
		r.Options("/rpc", srv.ServeHTTP)
		r.Post("/", srv.ServeHTTP)
		r.Post("/rpc", srv.ServeHTTP)
	})

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, -32700, "parse error")
		return
	}

	fn, ok := s.methods[req.Method]
	if !ok {
		writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not found: %s", req.Method))
		return
	}

	result, err := fn(r.Context(), req.Params)
	if err != nil {
		writeRPCError(w, req.ID, -32000, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcErrorObj{Code: code, Message: message}})
}

func decodeParams(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	// Accept both positional ([x]) and named ({"height": x}) params, the
	// way a tolerant JSON-RPC server commonly does.
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return json.Unmarshal(arr[0], out)
	}
	return json.Unmarshal(raw, out)
}

func (s *Server) getLatestBlockHeight(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	height, ok, err := s.store.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no blocks indexed yet")
	}
	return height, nil
}

func (s *Server) getBlockHashAndTs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var height int32
	if err := decodeParams(params, &height); err != nil {
		return nil, err
	}
	h, ok, err := s.store.GetBlockHeader(ctx, height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("block %d not found", height)
	}
	return map[string]interface{}{
		"hash":      hex.EncodeToString(h.Hash[:]),
		"timestamp": h.Timestamp,
	}, nil
}

func (s *Server) getBlockIndexTimes(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var height int32
	if err := decodeParams(params, &height); err != nil {
		return nil, err
	}
	h, ok, err := s.store.GetBlockHeader(ctx, height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("block %d not found", height)
	}
	return map[string]interface{}{
		"indexedAtUnixNano": h.IndexedAtUnixNano,
	}, nil
}

func (s *Server) getBlockBRC20Txes(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var height int32
	if err := decodeParams(params, &height); err != nil {
		return nil, err
	}
	events, err := s.store.EventsForHeight(ctx, height)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Server) getInscriptionInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var idStr string
	if err := decodeParams(params, &idStr); err != nil {
		return nil, err
	}
	id, err := ids.ParseInscriptionId(idStr)
	if err != nil {
		return nil, err
	}
	rec, ok, err := s.store.GetInscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("inscription %s not found", idStr)
	}
	return inscriptionRecordJSON(rec), nil
}

func (s *Server) getInscriptionInfoBySequenceNumber(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var seq uint32
	if err := decodeParams(params, &seq); err != nil {
		return nil, err
	}
	rec, ok, err := s.store.GetInscriptionBySequence(ctx, seq)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sequence number %d not found", seq)
	}
	return inscriptionRecordJSON(rec), nil
}

func (s *Server) getUTXOInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var outpointStr string
	if err := decodeParams(params, &outpointStr); err != nil {
		return nil, err
	}
	op, err := parseOutpointString(outpointStr)
	if err != nil {
		return nil, err
	}
	entry, ok, err := s.store.GetUTXOInfo(ctx, op)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("outpoint %s not found", outpointStr)
	}
	return map[string]interface{}{
		"value":        entry.Value,
		"inscriptions": entry.Inscriptions,
	}, nil
}

// getBlockBitmapInscrs and getBlockSNSInscrs are registered so the method
// table covers every §6.4 name, but no ".bitmap"/".sats" inscriptions are
// tracked: both always return an empty array, whatever the height.
func (s *Server) getBlockBitmapInscrs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return []interface{}{}, nil
}

func (s *Server) getBlockSNSInscrs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return []interface{}{}, nil
}

func inscriptionRecordJSON(rec store.InscriptionRecord) map[string]interface{} {
	out := map[string]interface{}{
		"id":               rec.Id.String(),
		"number":           rec.Number,
		"sequenceNumber":   rec.SequenceNumber,
		"genesisHeight":    rec.GenesisHeight,
		"currentSatpoint":  rec.CurrentSatpoint.String(),
		"contentType":      rec.ContentType,
		"isJsonOrText":     rec.IsJSONOrText,
		"isCursedForBrc20": rec.IsCursedForBRC20,
	}
	if rec.ParentId != nil {
		out["parentId"] = rec.ParentId.String()
	}
	return out
}

func parseOutpointString(s string) (ids.Outpoint, error) {
	sp, err := ids.ParseSatpoint(s + ":0")
	if err == nil {
		return ids.Outpoint{Txid: sp.Txid, Vout: sp.Vout}, nil
	}
	return ids.Outpoint{}, fmt.Errorf("malformed outpoint %q", s)
}
