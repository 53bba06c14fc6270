// Package sqlitestore implements internal/store.Store over the teacher's
// modernc.org/sqlite-backed *db.DB, the durable form of every §6.1 column
// family.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/brc20idx/indexer/internal/brc20"
	"github.com/brc20idx/indexer/internal/db"
	"github.com/brc20idx/indexer/internal/ids"
	"github.com/brc20idx/indexer/internal/ordtrack"
	"github.com/brc20idx/indexer/internal/store"
)

// Store is the sqlite-backed store.Store implementation.
type Store struct {
	db   *db.DB
	utxo *utxoAccessor
	insc *inscriptionAccessor
	seq  *sequenceAccessor
}

// New wraps an already-migrated *db.DB.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.utxo = &utxoAccessor{conn: database.Conn()}
	s.insc = &inscriptionAccessor{conn: database.Conn()}
	s.seq = &sequenceAccessor{conn: database.Conn()}
	return s
}

func (s *Store) UTXOs() ordtrack.UTXOStore             { return s.utxo }
func (s *Store) Inscriptions() ordtrack.InscriptionStore { return s.insc }
func (s *Store) Sequences() ordtrack.SequenceAllocator   { return s.seq }
func (s *Store) Close() error                            { return s.db.Close() }

// --- block headers -----------------------------------------------------

func (s *Store) GetBlockHeader(ctx context.Context, height int32) (store.BlockHeader, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT height, hash, prev_hash, ts, cumulative_hash, block_event_hash, prog_trace_hash, indexed_at_unixnano
		FROM height_to_block_header WHERE height = ?`, height)
	var h store.BlockHeader
	var hash, prev, cum, blockEv []byte
	var trace []byte
	if err := row.Scan(&h.Height, &hash, &prev, &h.Timestamp, &cum, &blockEv, &trace, &h.IndexedAtUnixNano); err != nil {
		if err == sql.ErrNoRows {
			return store.BlockHeader{}, false, nil
		}
		return store.BlockHeader{}, false, fmt.Errorf("sqlitestore: get block header %d: %w", height, err)
	}
	copy(h.Hash[:], hash)
	copy(h.PrevHash[:], prev)
	copy(h.CumulativeHash[:], cum)
	copy(h.BlockEventHash[:], blockEv)
	if len(trace) == 32 {
		var t [32]byte
		copy(t[:], trace)
		h.ProgTraceHash = &t
	}
	return h, true, nil
}

func (s *Store) PutBlockHeader(ctx context.Context, h store.BlockHeader) error {
	var trace []byte
	if h.ProgTraceHash != nil {
		trace = h.ProgTraceHash[:]
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO height_to_block_header (height, hash, prev_hash, ts, cumulative_hash, block_event_hash, prog_trace_hash, last_sequence, indexed_at_unixnano)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(height) DO UPDATE SET
			hash=excluded.hash, prev_hash=excluded.prev_hash, ts=excluded.ts,
			cumulative_hash=excluded.cumulative_hash, block_event_hash=excluded.block_event_hash,
			prog_trace_hash=excluded.prog_trace_hash, indexed_at_unixnano=excluded.indexed_at_unixnano`,
		h.Height, h.Hash[:], h.PrevHash[:], h.Timestamp, h.CumulativeHash[:], h.BlockEventHash[:], trace, h.IndexedAtUnixNano)
	if err != nil {
		return fmt.Errorf("sqlitestore: put block header %d: %w", h.Height, err)
	}
	return nil
}

func (s *Store) LatestHeight(ctx context.Context) (int32, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT MAX(height) FROM height_to_block_header`)
	var height sql.NullInt64
	if err := row.Scan(&height); err != nil {
		return 0, false, fmt.Errorf("sqlitestore: latest height: %w", err)
	}
	if !height.Valid {
		return 0, false, nil
	}
	return int32(height.Int64), true, nil
}

func (s *Store) DeleteBlocksFrom(ctx context.Context, height int32) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM height_to_block_header WHERE height >= ?`,
		`DELETE FROM brc20_historic_balances WHERE block_height >= ?`,
		`DELETE FROM brc20_events WHERE block_height >= ?`,
		`DELETE FROM brc20_light_events WHERE block_height >= ?`,
		`DELETE FROM brc20_cumulative_event_hashes WHERE block_height >= ?`,
		`DELETE FROM brc20_block_hashes WHERE block_height >= ?`,
		`DELETE FROM ord_transfers WHERE block_height >= ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, height); err != nil {
			return fmt.Errorf("sqlitestore: delete from height %d: %w", height, err)
		}
	}
	return tx.Commit()
}

// --- inscription lookups ------------------------------------------------

func (s *Store) GetInscription(ctx context.Context, id ids.InscriptionId) (store.InscriptionRecord, bool, error) {
	return s.scanInscriptionRow(ctx, `SELECT inscription_id, sequence_number, inscription_number, genesis_height, current_satpoint, content_type, is_json_or_text, is_cursed_for_brc20, parent_inscription_id FROM ord_inscription_info WHERE inscription_id = ?`, id.MarshalBinary())
}

func (s *Store) GetInscriptionBySequence(ctx context.Context, seq uint32) (store.InscriptionRecord, bool, error) {
	return s.scanInscriptionRow(ctx, `SELECT inscription_id, sequence_number, inscription_number, genesis_height, current_satpoint, content_type, is_json_or_text, is_cursed_for_brc20, parent_inscription_id FROM ord_inscription_info WHERE sequence_number = ?`, seq)
}

func (s *Store) scanInscriptionRow(ctx context.Context, query string, arg interface{}) (store.InscriptionRecord, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx, query, arg)
	var rec store.InscriptionRecord
	var idBlob, satBlob, parentBlob []byte
	var isJSON, isCursed int
	if err := row.Scan(&idBlob, &rec.SequenceNumber, &rec.Number, &rec.GenesisHeight, &satBlob, &rec.ContentType, &isJSON, &isCursed, &parentBlob); err != nil {
		if err == sql.ErrNoRows {
			return store.InscriptionRecord{}, false, nil
		}
		return store.InscriptionRecord{}, false, fmt.Errorf("sqlitestore: scan inscription: %w", err)
	}
	id, err := ids.UnmarshalInscriptionId(idBlob)
	if err != nil {
		return store.InscriptionRecord{}, false, err
	}
	sp, err := ids.UnmarshalSatpoint(satBlob)
	if err != nil {
		return store.InscriptionRecord{}, false, err
	}
	rec.Id = id
	rec.CurrentSatpoint = sp
	rec.IsJSONOrText = isJSON != 0
	rec.IsCursedForBRC20 = isCursed != 0
	if len(parentBlob) == 36 {
		pid, err := ids.UnmarshalInscriptionId(parentBlob)
		if err == nil {
			rec.ParentId = &pid
		}
	}
	return rec, true, nil
}

func (s *Store) GetUTXOInfo(ctx context.Context, op ids.Outpoint) (ordtrack.UtxoEntry, bool, error) {
	return s.utxo.Get(op), s.utxo.exists(op), nil
}

// --- tickers & balances --------------------------------------------------

func (s *Store) PutTicker(ctx context.Context, t brc20.Ticker) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO brc20_tickers (ticker, original_ticker, max_supply, remaining_supply, burned_supply, limit_per_mint, decimals, is_self_mint, deploy_inscription_id, deploy_block_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			remaining_supply=excluded.remaining_supply, burned_supply=excluded.burned_supply`,
		t.Ticker, t.OriginalTicker, t.MaxSupply.String(), t.RemainingSupply.String(), t.BurnedSupply.String(),
		t.LimitPerMint.String(), t.Decimals, boolToInt(t.IsSelfMint), t.DeployInscriptionId.MarshalBinary(), t.DeployBlockHeight)
	if err != nil {
		return fmt.Errorf("sqlitestore: put ticker %s: %w", t.Ticker, err)
	}
	return nil
}

func (s *Store) GetTicker(ctx context.Context, tick string) (brc20.Ticker, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT ticker, original_ticker, max_supply, remaining_supply, burned_supply, limit_per_mint, decimals, is_self_mint, deploy_inscription_id, deploy_block_height
		FROM brc20_tickers WHERE ticker = ?`, tick)
	t, err := scanTicker(row)
	if err == sql.ErrNoRows {
		return brc20.Ticker{}, false, nil
	}
	if err != nil {
		return brc20.Ticker{}, false, fmt.Errorf("sqlitestore: get ticker %s: %w", tick, err)
	}
	return t, true, nil
}

func (s *Store) AllTickers(ctx context.Context) ([]brc20.Ticker, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT ticker, original_ticker, max_supply, remaining_supply, burned_supply, limit_per_mint, decimals, is_self_mint, deploy_inscription_id, deploy_block_height
		FROM brc20_tickers`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: all tickers: %w", err)
	}
	defer rows.Close()
	var out []brc20.Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicker(row rowScanner) (brc20.Ticker, error) {
	var t brc20.Ticker
	var maxSupply, remaining, burned, limit string
	var idBlob []byte
	var selfMint int
	if err := row.Scan(&t.Ticker, &t.OriginalTicker, &maxSupply, &remaining, &burned, &limit, &t.Decimals, &selfMint, &idBlob, &t.DeployBlockHeight); err != nil {
		return brc20.Ticker{}, err
	}
	t.MaxSupply, _ = new(big.Int).SetString(maxSupply, 10)
	t.RemainingSupply, _ = new(big.Int).SetString(remaining, 10)
	t.BurnedSupply, _ = new(big.Int).SetString(burned, 10)
	t.LimitPerMint, _ = new(big.Int).SetString(limit, 10)
	t.IsSelfMint = selfMint != 0
	id, err := ids.UnmarshalInscriptionId(idBlob)
	if err != nil {
		return brc20.Ticker{}, err
	}
	t.DeployInscriptionId = id
	return t, nil
}

func (s *Store) PutBalance(ctx context.Context, key brc20.BalanceKey, bal brc20.Balance) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO brc20_current_balances (ticker, pkscript, overall, available)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, pkscript) DO UPDATE SET overall=excluded.overall, available=excluded.available`,
		key.Ticker, key.PkScript, bal.Overall.String(), bal.Available.String())
	if err != nil {
		return fmt.Errorf("sqlitestore: put balance %s/%s: %w", key.Ticker, key.PkScript, err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, key brc20.BalanceKey) (brc20.Balance, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT overall, available FROM brc20_current_balances WHERE ticker = ? AND pkscript = ?`, key.Ticker, key.PkScript)
	var overall, available string
	if err := row.Scan(&overall, &available); err != nil {
		if err == sql.ErrNoRows {
			return brc20.Balance{}, false, nil
		}
		return brc20.Balance{}, false, fmt.Errorf("sqlitestore: get balance: %w", err)
	}
	o, _ := new(big.Int).SetString(overall, 10)
	a, _ := new(big.Int).SetString(available, 10)
	return brc20.Balance{Overall: o, Available: a}, true, nil
}

func (s *Store) BalancesForPkScript(ctx context.Context, pkScript string) (map[string]brc20.Balance, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT ticker, overall, available FROM brc20_current_balances WHERE pkscript = ?`, pkScript)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: balances for pkscript: %w", err)
	}
	defer rows.Close()
	out := make(map[string]brc20.Balance)
	for rows.Next() {
		var tick, overall, available string
		if err := rows.Scan(&tick, &overall, &available); err != nil {
			return nil, err
		}
		o, _ := new(big.Int).SetString(overall, 10)
		a, _ := new(big.Int).SetString(available, 10)
		out[tick] = brc20.Balance{Overall: o, Available: a}
	}
	return out, rows.Err()
}

func (s *Store) SwapBalancesSnapshot(ctx context.Context) (map[brc20.BalanceKey]*big.Int, error) {
	// Swap-module balances live under the configured swap pkscript; the
	// current_balances table is keyed by (ticker, pkscript) regardless of
	// which module owns that pkscript, so callers filter by pkscript.
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT ticker, pkscript, overall FROM brc20_current_balances`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: swap balances snapshot: %w", err)
	}
	defer rows.Close()
	out := make(map[brc20.BalanceKey]*big.Int)
	for rows.Next() {
		var tick, pk, overall string
		if err := rows.Scan(&tick, &pk, &overall); err != nil {
			return nil, err
		}
		v, _ := new(big.Int).SetString(overall, 10)
		out[brc20.BalanceKey{Ticker: tick, PkScript: pk}] = v
	}
	return out, rows.Err()
}

// --- events ---------------------------------------------------------------

func (s *Store) AppendEvents(ctx context.Context, height int32, events []brc20.Event) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO brc20_events (block_height, event_index, event_type, canonical)
			VALUES (?, ?, ?, ?)`, height, i, int(ev.Type), ev.CanonicalString()); err != nil {
			return fmt.Errorf("sqlitestore: append event %d/%d: %w", height, i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) EventsForHeight(ctx context.Context, height int32) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT canonical FROM brc20_events WHERE block_height = ? ORDER BY event_index`, height)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: events for height %d: %w", height, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var canonical string
		if err := rows.Scan(&canonical); err != nil {
			return nil, err
		}
		out = append(out, canonical)
	}
	return out, rows.Err()
}

// --- savepoints ------------------------------------------------------------

func (s *Store) PutSavepoint(ctx context.Context, sp store.Savepoint) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO brc20_savepoints (height, hash) VALUES (?, ?)
		ON CONFLICT(height) DO UPDATE SET hash=excluded.hash`, sp.Height, sp.Hash[:])
	if err != nil {
		return fmt.Errorf("sqlitestore: put savepoint %d: %w", sp.Height, err)
	}
	return nil
}

func (s *Store) Savepoints(ctx context.Context) ([]store.Savepoint, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT height, hash FROM brc20_savepoints ORDER BY height`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: savepoints: %w", err)
	}
	defer rows.Close()
	var out []store.Savepoint
	for rows.Next() {
		var sp store.Savepoint
		var hash []byte
		if err := rows.Scan(&sp.Height, &hash); err != nil {
			return nil, err
		}
		copy(sp.Hash[:], hash)
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) PruneSavepointsBefore(ctx context.Context, height int32) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM brc20_savepoints WHERE height < ?`, height)
	if err != nil {
		return fmt.Errorf("sqlitestore: prune savepoints before %d: %w", height, err)
	}
	return nil
}

// --- versioning --------------------------------------------------------

func (s *Store) IndexerVersion(ctx context.Context) (int, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT version FROM brc20_indexer_version WHERE id = 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("sqlitestore: indexer version: %w", err)
	}
	return v, nil
}

func (s *Store) SetIndexerVersion(ctx context.Context, version int) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO brc20_indexer_version (id, version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET version=excluded.version`, version)
	if err != nil {
		return fmt.Errorf("sqlitestore: set indexer version: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- ordtrack accessors --------------------------------------------------

type utxoAccessor struct {
	conn *sql.DB
}

func (u *utxoAccessor) Get(op ids.Outpoint) (ordtrack.UtxoEntry, bool) {
	row := u.conn.QueryRow(`SELECT value, pkscript, inscriptions FROM outpoint_to_utxo_entry WHERE outpoint = ?`, op.MarshalBinary())
	var value int64
	var pkscript, packed []byte
	if err := row.Scan(&value, &pkscript, &packed); err != nil {
		return ordtrack.UtxoEntry{}, false
	}
	return ordtrack.UtxoEntry{Value: uint64(value), PkScript: pkscript, Inscriptions: unpackLocations(packed)}, true
}

func (u *utxoAccessor) exists(op ids.Outpoint) bool {
	_, ok := u.Get(op)
	return ok
}

func (u *utxoAccessor) Delete(op ids.Outpoint) {
	u.conn.Exec(`DELETE FROM outpoint_to_utxo_entry WHERE outpoint = ?`, op.MarshalBinary())
}

func (u *utxoAccessor) Put(op ids.Outpoint, entry ordtrack.UtxoEntry) {
	u.conn.Exec(`
		INSERT INTO outpoint_to_utxo_entry (outpoint, value, pkscript, inscriptions) VALUES (?, ?, ?, ?)
		ON CONFLICT(outpoint) DO UPDATE SET value=excluded.value, pkscript=excluded.pkscript, inscriptions=excluded.inscriptions`,
		op.MarshalBinary(), int64(entry.Value), entry.PkScript, packLocations(entry.Inscriptions))
}

func packLocations(locs []ordtrack.InscriptionLocation) []byte {
	out := make([]byte, 0, len(locs)*12)
	var buf [12]byte
	for _, l := range locs {
		binary.BigEndian.PutUint32(buf[0:4], l.SequenceNumber)
		binary.BigEndian.PutUint64(buf[4:12], l.Offset)
		out = append(out, buf[:]...)
	}
	return out
}

func unpackLocations(b []byte) []ordtrack.InscriptionLocation {
	var out []ordtrack.InscriptionLocation
	for i := 0; i+12 <= len(b); i += 12 {
		out = append(out, ordtrack.InscriptionLocation{
			SequenceNumber: binary.BigEndian.Uint32(b[i : i+4]),
			Offset:         binary.BigEndian.Uint64(b[i+4 : i+12]),
		})
	}
	return out
}

type inscriptionAccessor struct {
	conn *sql.DB
}

func (a *inscriptionAccessor) GetBySequence(seq uint32) (ordtrack.InscriptionEntry, ids.InscriptionId, bool) {
	row := a.conn.QueryRow(`
		SELECT inscription_id, inscription_number, is_json_or_text, is_cursed_for_brc20, charms, tx_count_limit
		FROM sequence_number_to_inscription_entry WHERE sequence_number = ?`, seq)
	var idBlob []byte
	var number int32
	var isJSON, isCursed int
	var charms int
	var limit int
	if err := row.Scan(&idBlob, &number, &isJSON, &isCursed, &charms, &limit); err != nil {
		return ordtrack.InscriptionEntry{}, ids.InscriptionId{}, false
	}
	id, err := ids.UnmarshalInscriptionId(idBlob)
	if err != nil {
		return ordtrack.InscriptionEntry{}, ids.InscriptionId{}, false
	}
	return ordtrack.InscriptionEntry{
		Id:                id,
		InscriptionNumber: number,
		SequenceNumber:    seq,
		IsJSONOrText:      isJSON != 0,
		IsCursedForBRC20:  isCursed != 0,
		Charms:            uint16(charms),
		TxCountLimit:      int16(limit),
	}, id, true
}

func (a *inscriptionAccessor) Put(id ids.InscriptionId, entry ordtrack.InscriptionEntry) {
	a.conn.Exec(`
		INSERT INTO sequence_number_to_inscription_entry
			(sequence_number, inscription_id, inscription_number, is_json_or_text, is_cursed_for_brc20, charms, tx_count_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sequence_number) DO UPDATE SET
			inscription_id=excluded.inscription_id, inscription_number=excluded.inscription_number,
			is_json_or_text=excluded.is_json_or_text, is_cursed_for_brc20=excluded.is_cursed_for_brc20`,
		entry.SequenceNumber, id.MarshalBinary(), entry.InscriptionNumber, boolToInt(entry.IsJSONOrText), boolToInt(entry.IsCursedForBRC20), entry.Charms, entry.TxCountLimit)
}

type sequenceAccessor struct {
	conn *sql.DB
}

func (s *sequenceAccessor) nextCounter(key string, delta int64) int64 {
	tx, err := s.conn.Begin()
	if err != nil {
		return 0
	}
	defer tx.Rollback()
	var v int64
	row := tx.QueryRow(`SELECT value FROM ord_index_stats WHERE key = ?`, key)
	if err := row.Scan(&v); err != nil {
		v = 0
	}
	next := v + delta
	tx.Exec(`INSERT INTO ord_index_stats (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, next)
	tx.Commit()
	if delta < 0 {
		return next
	}
	return v
}

func (s *sequenceAccessor) NextSequenceNumber() uint32 { return uint32(s.nextCounter("next_sequence_number", 1)) }
func (s *sequenceAccessor) NextBlessedNumber() int32   { return int32(s.nextCounter("next_blessed_number", 1)) }
func (s *sequenceAccessor) NextCursedNumber() int32    { return int32(s.nextCounter("next_cursed_number", -1)) }
