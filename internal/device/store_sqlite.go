package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/database"
)

// SQLiteStore keeps device records in the device_records table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore returns a store on a migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadRecords reads every record in saved order.
func (s *SQLiteStore) LoadRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, address, unit, enabled, config FROM device_records ORDER BY position",
	)
	if err != nil {
		return nil, fmt.Errorf("querying device records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			enabled int
			cfg     sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Address, &rec.Unit, &enabled, &cfg); err != nil {
			return nil, fmt.Errorf("scanning device record: %w", err)
		}
		rec.Enabled = enabled != 0
		if cfg.Valid && cfg.String != "" {
			if err := json.Unmarshal([]byte(cfg.String), &rec.Config); err != nil {
				return nil, fmt.Errorf("decoding config of %s: %w", rec.Address, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device records: %w", err)
	}
	return records, nil
}

// SaveRecords replaces the table contents in one transaction.
func (s *SQLiteStore) SaveRecords(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM device_records"); err != nil {
		return fmt.Errorf("clearing device records: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, rec := range records {
		var cfg sql.NullString
		if len(rec.Config) > 0 {
			b, err := json.Marshal(rec.Config)
			if err != nil {
				return fmt.Errorf("encoding config of %s: %w", rec.Address, err)
			}
			cfg = sql.NullString{String: string(b), Valid: true}
		}
		enabled := 0
		if rec.Enabled {
			enabled = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_records (position, id, address, unit, enabled, config, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, rec.ID, rec.Address, rec.Unit, enabled, cfg, now,
		); err != nil {
			return fmt.Errorf("inserting device record %s: %w", rec.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device records: %w", err)
	}
	return nil
}
