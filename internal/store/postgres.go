// This file implements a PostgreSQL-backed store for patient records.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/CareBranch/CareChat/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists patient records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure the patient_records table exists
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// LoadRecord reads the record for the patient, or nil if none exists.
// A record that cannot be decoded is reported as ErrCorruptRecord.
func (s *PostgresStore) LoadRecord(patientID string) (*models.PatientRecord, error) {
	var recordJSON string
	err := s.db.QueryRow(`SELECT record FROM patient_records WHERE patient_id = $1`, patientID).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.LoadRecord: no record", "patientID", patientID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.LoadRecord query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to load record for %s: %w", patientID, err)
	}

	var record models.PatientRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		slog.Error("PostgresStore.LoadRecord decode failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to decode record for %s: %w", patientID, ErrCorruptRecord)
	}
	slog.Debug("PostgresStore.LoadRecord succeeded", "patientID", patientID, "conversations", len(record.Conversations))
	return &record, nil
}

// SaveRecord overwrites the record for the patient identifier.
func (s *PostgresStore) SaveRecord(record models.PatientRecord) error {
	if err := models.ValidatePatientID(record.PatientID); err != nil {
		return err
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		slog.Error("PostgresStore.SaveRecord encode failed", "error", err, "patientID", record.PatientID)
		return fmt.Errorf("failed to encode record for %s: %w", record.PatientID, err)
	}

	_, err = s.db.Exec(`INSERT INTO patient_records (patient_id, record, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (patient_id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		record.PatientID, string(recordJSON), time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore.SaveRecord failed", "error", err, "patientID", record.PatientID)
		return fmt.Errorf("failed to save record for %s: %w", record.PatientID, err)
	}
	slog.Debug("PostgresStore.SaveRecord succeeded", "patientID", record.PatientID, "conversations", len(record.Conversations))
	return nil
}

// ListPatientIDs returns every patient identifier with a stored record.
func (s *PostgresStore) ListPatientIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT patient_id FROM patient_records ORDER BY patient_id`)
	if err != nil {
		slog.Error("PostgresStore.ListPatientIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query patient IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("PostgresStore.ListPatientIDs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan patient ID row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore.ListPatientIDs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate patient ID rows: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
