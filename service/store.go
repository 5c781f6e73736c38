package service

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tvbridge/models"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS device_history (
	serial      TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	last_status TEXT NOT NULL DEFAULT 'unknown',
	last_seen   INTEGER NOT NULL
);
`

// HistoryStore keeps a connection history of devices that were active
// at some point, so the UI can offer quick reconnects.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (creating if needed) the SQLite database at
// path and ensures the schema exists.
func OpenHistoryStore(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("history store ready", "path", path)
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Record upserts one device, keeping a single row per serial.
func (s *HistoryStore) Record(device models.DeviceInfo) error {
	_, err := s.db.Exec(`
		INSERT INTO device_history (serial, name, model, last_status, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET
			name = excluded.name,
			model = excluded.model,
			last_status = excluded.last_status,
			last_seen = excluded.last_seen`,
		device.Serial, device.Name, device.Model, string(device.Status), time.Now().Unix())
	return err
}

// List returns history entries, most recently seen first.
func (s *HistoryStore) List() ([]models.DeviceHistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT serial, name, model, last_status, last_seen
		FROM device_history ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DeviceHistoryEntry
	for rows.Next() {
		var e models.DeviceHistoryEntry
		if err := rows.Scan(&e.Serial, &e.Name, &e.Model, &e.LastStatus, &e.LastSeen); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
