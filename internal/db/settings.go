package db

import (
	"fmt"
	"log/slog"
)

// Default settings values (§6.5 CLI config surface).
var defaultSettings = map[string]string{
	"log_level":          "info",
	"chain_tip_distance": "6",
}

// GetSetting retrieves a single setting value by key, returning the default if not set.
func (d *DB) GetSetting(key string) (string, error) {
	slog.Debug("getting setting", "key", key)

	var value string
	err := d.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if defVal, ok := defaultSettings[key]; ok {
			slog.Debug("setting not found, returning default", "key", key, "default", defVal)
			return defVal, nil
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}

	return value, nil
}

// SetSetting upserts a setting key-value pair.
func (d *DB) SetSetting(key, value string) error {
	slog.Debug("setting value", "key", key, "value", value)

	_, err := d.conn.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}

	slog.Info("setting updated", "key", key, "value", value)
	return nil
}

// GetAllSettings retrieves all settings, filling in defaults for missing keys.
func (d *DB) GetAllSettings() (map[string]string, error) {
	result := make(map[string]string)
	for k, v := range defaultSettings {
		result[k] = v
	}

	rows, err := d.conn.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting rows: %w", err)
	}

	return result, nil
}

// resetTables lists every table ResetAll truncates, in dependency order.
var resetTables = []string{
	"brc20_savepoints",
	"brc20_unused_txes",
	"brc20_block_hashes",
	"brc20_cumulative_event_hashes",
	"brc20_light_events",
	"brc20_events",
	"brc20_historic_balances",
	"brc20_current_balances",
	"brc20_tickers",
	"ord_index_stats",
	"ord_transfers",
	"ord_inscription_info",
	"sequence_number_to_inscription_entry",
	"outpoint_to_utxo_entry",
	"height_to_block_header",
	"brc20_indexer_version",
}

// ResetAll truncates every indexed table without dropping the schema
// itself. cmd/indexer's `--reset` (§6.5) does not call it: that flag
// deletes the database file before migrating afresh.
func (d *DB) ResetAll() error {
	slog.Warn("resetting all indexed state")

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range resetTables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}

	slog.Info("reset complete")
	return nil
}
