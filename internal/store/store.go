// Package store provides storage backends for persisted patient
// conversation records.
//
// One logical record exists per patient identifier: the full ordered
// message log across conversations. Records are read at session start and
// overwritten in full at session end (last-write-wins, no merge).
package store

import (
	"errors"
	"strings"

	"github.com/CareBranch/CareChat/internal/models"
)

// ErrCorruptRecord indicates a persisted record could not be decoded.
// Callers are expected to degrade to an empty history rather than fail.
var ErrCorruptRecord = errors.New("corrupt patient record")

// Store is the persisted conversation store contract: list all known
// identifiers, read one record, write one record (overwrite).
type Store interface {
	// LoadRecord returns the record for the patient, or nil if none exists.
	LoadRecord(patientID string) (*models.PatientRecord, error)

	// SaveRecord persists the record, overwriting any prior state for
	// the same patient identifier.
	SaveRecord(record models.PatientRecord) error

	// ListPatientIDs returns every patient identifier with a record.
	ListPatientIDs() ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which backend a DSN targets: "postgres" for
// connection URLs and key=value connection strings, "sqlite3" for file
// paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
