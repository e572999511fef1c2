package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
)

// FareTypeRow is a dated row of a fare-type table.
type FareTypeRow struct {
	Effective   time.Time
	Discontinue time.Time
	FareType    string
	Seq         int
	Appl        model.FareTypeAppl
}

// FareTypeTableData is a whole fare-type table as imported.
type FareTypeTableData struct {
	Vendor string
	Rows   []FareTypeRow
	ItemNo int
}

// CarrierRow is a dated carrier of a carrier application table.
type CarrierRow struct {
	Effective   time.Time
	Discontinue time.Time
	Carrier     string
}

// CarrierTable is a whole carrier application table as imported.
type CarrierTable struct {
	Vendor   string
	Carriers []CarrierRow
	ItemNo   int
}

// SaveFareTypeTable replaces a fare-type table.
func (s *SQLiteStorage) SaveFareTypeTable(ctx context.Context, table FareTypeTableData) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateItem(table.Vendor, table.ItemNo); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM fare_type_tables WHERE vendor = ? AND item_no = ?`,
			table.Vendor, table.ItemNo); err != nil {
			return fmt.Errorf("failed to clear fare type table %d: %w", table.ItemNo, err)
		}
		for i, row := range table.Rows {
			seq := row.Seq
			if seq == 0 {
				seq = i + 1
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fare_type_tables (vendor, item_no, seq, fare_type, appl, effective, discontinue)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, table.Vendor, table.ItemNo, seq, row.FareType, char(byte(row.Appl)),
				formatDate(row.Effective), formatDate(row.Discontinue))
			if err != nil {
				return fmt.Errorf("failed to save fare type %s: %w", row.FareType, err)
			}
		}
		return nil
	})
}

// FareTypeTable implements service.RuleSupply. Only rows in force on asOf are
// returned.
func (s *SQLiteStorage) FareTypeTable(ctx context.Context, vendor string, itemNo int, asOf time.Time) ([]model.FareTypeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	day := asOf.UTC().Format(dateLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT fare_type, appl
		FROM fare_type_tables
		WHERE vendor = ? AND item_no = ?
		  AND (effective IS NULL OR effective <= ?)
		  AND (discontinue IS NULL OR discontinue > ?)
		ORDER BY seq
	`, vendor, itemNo, day, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query fare type table %d: %w", itemNo, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.FareTypeEntry
	for rows.Next() {
		var fareType, appl string
		if err := rows.Scan(&fareType, &appl); err != nil {
			return nil, fmt.Errorf("failed to scan fare type: %w", err)
		}
		entries = append(entries, model.FareTypeEntry{
			FareType: fareType,
			Appl:     model.FareTypeAppl(byteOf(appl)),
		})
	}
	return entries, rows.Err()
}

// SaveCarrierApplications replaces a carrier application table.
func (s *SQLiteStorage) SaveCarrierApplications(ctx context.Context, table CarrierTable) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateItem(table.Vendor, table.ItemNo); err != nil {
		return err
	}
	for _, c := range table.Carriers {
		if err := validateString(c.Carrier, "carrier"); err != nil {
			return fmt.Errorf("%w: table %d: %w", ErrInvalidTable, table.ItemNo, err)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM carrier_applications WHERE vendor = ? AND item_no = ?`,
			table.Vendor, table.ItemNo); err != nil {
			return fmt.Errorf("failed to clear carrier table %d: %w", table.ItemNo, err)
		}
		for _, c := range table.Carriers {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO carrier_applications (vendor, item_no, carrier, effective, discontinue)
				VALUES (?, ?, ?, ?, ?)
			`, table.Vendor, table.ItemNo, c.Carrier, formatDate(c.Effective), formatDate(c.Discontinue))
			if err != nil {
				return fmt.Errorf("failed to save carrier %s: %w", c.Carrier, err)
			}
		}
		return nil
	})
}

// CarrierApplications implements service.RuleSupply.
func (s *SQLiteStorage) CarrierApplications(ctx context.Context, vendor string, itemNo int, asOf time.Time) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	day := asOf.UTC().Format(dateLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT carrier, effective, discontinue
		FROM carrier_applications
		WHERE vendor = ? AND item_no = ?
		  AND (effective IS NULL OR effective <= ?)
		  AND (discontinue IS NULL OR discontinue > ?)
		ORDER BY carrier
	`, vendor, itemNo, day, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query carrier table %d: %w", itemNo, err)
	}
	defer func() { _ = rows.Close() }()

	var carriers []string
	for rows.Next() {
		var carrier string
		var effective, discontinue sql.NullString
		if err := rows.Scan(&carrier, &effective, &discontinue); err != nil {
			return nil, fmt.Errorf("failed to scan carrier: %w", err)
		}
		// Stored dates are checked so corruption surfaces instead of matching silently.
		if _, err := parseDate(effective); err != nil {
			return nil, err
		}
		if _, err := parseDate(discontinue); err != nil {
			return nil, err
		}
		carriers = append(carriers, carrier)
	}
	return carriers, rows.Err()
}
