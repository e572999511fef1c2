package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Rule records and lookup tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS rule_records (
					vendor TEXT NOT NULL,
					carrier TEXT NOT NULL,
					rule_tariff INTEGER NOT NULL,
					rule_number TEXT NOT NULL,
					category INTEGER NOT NULL,
					item_no INTEGER NOT NULL,
					seq_no INTEGER NOT NULL,
					pax_type TEXT NOT NULL DEFAULT '',
					penalty1_amount TEXT NOT NULL DEFAULT '0',
					penalty1_currency TEXT NOT NULL DEFAULT '',
					penalty2_amount TEXT NOT NULL DEFAULT '0',
					penalty2_currency TEXT NOT NULL DEFAULT '',
					min_amount TEXT NOT NULL DEFAULT '0',
					min_currency TEXT NOT NULL DEFAULT '',
					percent TEXT NOT NULL DEFAULT '0',
					rec_rule_number TEXT NOT NULL DEFAULT '',
					rec_fare_class TEXT NOT NULL DEFAULT '',
					rec_rule_tariff INTEGER NOT NULL DEFAULT 0,
					fare_type_item_no INTEGER NOT NULL DEFAULT 0,
					waiver_item_no INTEGER NOT NULL DEFAULT 0,
					carrier_appl_item_no INTEGER NOT NULL DEFAULT 0,
					discount_tags TEXT NOT NULL DEFAULT '    ',
					scope TEXT NOT NULL,
					calc_option TEXT NOT NULL,
					cancellation_ind TEXT NOT NULL,
					high_low TEXT NOT NULL,
					form_of_refund TEXT NOT NULL,
					fare_break_ind TEXT NOT NULL,
					reprice_basis TEXT NOT NULL,
					rule_tariff_ind TEXT NOT NULL,
					fare_class_mode TEXT NOT NULL,
					same_fare TEXT NOT NULL,
					normal_special TEXT NOT NULL,
					owrt TEXT NOT NULL,
					fare_amount_ind TEXT NOT NULL,
					booking_code_ind TEXT NOT NULL,
					flown TEXT NOT NULL,
					departure TEXT NOT NULL,
					orig_sched_flight TEXT NOT NULL,
					tax_nonrefundable BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (vendor, carrier, rule_tariff, rule_number, category, item_no, seq_no)
				)`,

				`CREATE TABLE IF NOT EXISTS fare_type_tables (
					vendor TEXT NOT NULL,
					item_no INTEGER NOT NULL,
					seq INTEGER NOT NULL,
					fare_type TEXT NOT NULL,
					appl TEXT NOT NULL,
					effective TEXT,
					discontinue TEXT,
					PRIMARY KEY (vendor, item_no, seq)
				)`,

				`CREATE TABLE IF NOT EXISTS carrier_applications (
					vendor TEXT NOT NULL,
					item_no INTEGER NOT NULL,
					carrier TEXT NOT NULL,
					effective TEXT,
					discontinue TEXT,
					PRIMARY KEY (vendor, item_no, carrier)
				)`,

				`CREATE TABLE IF NOT EXISTS flat_penalties (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor TEXT NOT NULL,
					carrier TEXT NOT NULL,
					rule_tariff INTEGER NOT NULL,
					rule_number TEXT NOT NULL,
					item_no INTEGER NOT NULL DEFAULT 0,
					penalty1_amount TEXT NOT NULL DEFAULT '0',
					penalty1_currency TEXT NOT NULL DEFAULT '',
					penalty2_amount TEXT NOT NULL DEFAULT '0',
					penalty2_currency TEXT NOT NULL DEFAULT '',
					percent TEXT NOT NULL DEFAULT '0',
					high_low TEXT NOT NULL DEFAULT ' ',
					dep_window INTEGER NOT NULL,
					applies_change BOOLEAN NOT NULL DEFAULT 0,
					applies_refund BOOLEAN NOT NULL DEFAULT 0,
					not_permitted BOOLEAN NOT NULL DEFAULT 0
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Exchange rates",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS exchange_rates (
					currency TEXT PRIMARY KEY,
					per_nuc TEXT NOT NULL,
					decimals INTEGER NOT NULL DEFAULT 2,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Lookup indexes",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_rule_records_fare ON rule_records(vendor, carrier, rule_tariff, rule_number, category)`,
				`CREATE INDEX IF NOT EXISTS idx_rule_records_carrier ON rule_records(carrier)`,
				`CREATE INDEX IF NOT EXISTS idx_flat_penalties_fare ON flat_penalties(vendor, carrier, rule_tariff, rule_number)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
