// Package db is the loader's run ledger, a SQLite database recording the
// outcome of every bundle ever pushed through this host.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/commons-dss/bundle-loader/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides ledger operations for bundle records.
type Repository struct {
	db *sql.DB
}

// NewRepository opens the ledger database, creating the schema if needed.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("ledger_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("ledger_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open ledger database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("ledger_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create ledger schema")
	}

	slog.Info("ledger_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new bundle record
func (r *Repository) Create(rec *Record) error {
	slog.Info("ledger_create_bundle", "bundle_uuid", rec.BundleUUID, "status", rec.Status)

	query := `
		INSERT INTO bundles (bundle_uuid, name, fileset_sha256, status, error_message)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		rec.BundleUUID, rec.Name, rec.FilesetSHA, rec.Status, rec.ErrorMessage)
	if err != nil {
		slog.Error("ledger_insert_failed", "bundle_uuid", rec.BundleUUID, "error", err)
		return errors.Wrap(err, "failed to insert bundle record")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	rec.ID = id

	slog.Info("ledger_bundle_created", "bundle_uuid", rec.BundleUUID, "record_id", rec.ID, "status", rec.Status)
	return nil
}

// GetByUUID retrieves a bundle record by its bundle UUID. Returns (nil, nil)
// when the bundle has never been recorded.
func (r *Repository) GetByUUID(bundleUUID string) (*Record, error) {
	query := `
		SELECT id, bundle_uuid, name, fileset_sha256, status, error_message, created_at, updated_at
		FROM bundles WHERE bundle_uuid = ?
	`
	var rec Record
	var name, errorMessage sql.NullString

	err := r.db.QueryRow(query, bundleUUID).Scan(
		&rec.ID, &rec.BundleUUID, &name, &rec.FilesetSHA, &rec.Status,
		&errorMessage, &rec.CreatedAt, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("ledger_query_failed", "bundle_uuid", bundleUUID, "error", err)
		return nil, errors.Wrap(err, "failed to query bundle record")
	}

	rec.Name = name.String
	rec.ErrorMessage = errorMessage.String
	return &rec, nil
}

// Update updates an existing bundle record
func (r *Repository) Update(rec *Record) error {
	slog.Info("ledger_update_bundle", "record_id", rec.ID, "bundle_uuid", rec.BundleUUID, "status", rec.Status)

	query := `
		UPDATE bundles
		SET name = ?, fileset_sha256 = ?, status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		rec.Name, rec.FilesetSHA, rec.Status, rec.ErrorMessage, rec.ID)
	if err != nil {
		slog.Error("ledger_update_failed", "record_id", rec.ID, "error", err)
		return errors.Wrap(err, "failed to update bundle record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("bundle record not found: id=%d", rec.ID)
	}
	return nil
}

// UpdateStatus updates only the status and error message.
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("ledger_update_status", "record_id", id, "status", status)

	query := `UPDATE bundles SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("ledger_status_update_failed", "record_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// List retrieves all bundle records, newest first.
func (r *Repository) List() ([]*Record, error) {
	query := `
		SELECT id, bundle_uuid, name, fileset_sha256, status, error_message, created_at, updated_at
		FROM bundles ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("ledger_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list bundle records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var name, errorMessage sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.BundleUUID, &name, &rec.FilesetSHA, &rec.Status,
			&errorMessage, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		rec.Name = name.String
		rec.ErrorMessage = errorMessage.String
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("ledger_list_complete", "bundle_count", len(records))
	return records, nil
}
