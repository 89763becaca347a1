// This file implements an SQLite-backed store for patient records.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/CareBranch/CareChat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists patient records in an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// LoadRecord reads the record for the patient, or nil if none exists.
// A record that cannot be decoded is reported as ErrCorruptRecord.
func (s *SQLiteStore) LoadRecord(patientID string) (*models.PatientRecord, error) {
	var recordJSON string
	err := s.db.QueryRow(`SELECT record FROM patient_records WHERE patient_id = ?`, patientID).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.LoadRecord: no record", "patientID", patientID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.LoadRecord query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to load record for %s: %w", patientID, err)
	}

	var record models.PatientRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		slog.Error("SQLiteStore.LoadRecord decode failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to decode record for %s: %w", patientID, ErrCorruptRecord)
	}
	slog.Debug("SQLiteStore.LoadRecord succeeded", "patientID", patientID, "conversations", len(record.Conversations))
	return &record, nil
}

// SaveRecord overwrites the record for the patient identifier.
func (s *SQLiteStore) SaveRecord(record models.PatientRecord) error {
	if err := models.ValidatePatientID(record.PatientID); err != nil {
		return err
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		slog.Error("SQLiteStore.SaveRecord encode failed", "error", err, "patientID", record.PatientID)
		return fmt.Errorf("failed to encode record for %s: %w", record.PatientID, err)
	}

	_, err = s.db.Exec(`INSERT INTO patient_records (patient_id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		record.PatientID, string(recordJSON), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore.SaveRecord failed", "error", err, "patientID", record.PatientID)
		return fmt.Errorf("failed to save record for %s: %w", record.PatientID, err)
	}
	slog.Debug("SQLiteStore.SaveRecord succeeded", "patientID", record.PatientID, "conversations", len(record.Conversations))
	return nil
}

// ListPatientIDs returns every patient identifier with a stored record.
func (s *SQLiteStore) ListPatientIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT patient_id FROM patient_records ORDER BY patient_id`)
	if err != nil {
		slog.Error("SQLiteStore.ListPatientIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query patient IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("SQLiteStore.ListPatientIDs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan patient ID row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.ListPatientIDs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate patient ID rows: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
