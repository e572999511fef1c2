package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/rexpenalty/internal/model"
)

// FlatPenaltyEntry is a category 16 record filed under its governing rule.
type FlatPenaltyEntry struct {
	Record *model.FlatPenaltyRecord
	Rule   GoverningRule
}

// SaveFlatPenalties replaces the flat penalties of every rule named in entries.
func (s *SQLiteStorage) SaveFlatPenalties(ctx context.Context, entries []FlatPenaltyEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFlatEntries(entries); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		cleared := make(map[GoverningRule]bool)
		for _, e := range entries {
			if cleared[e.Rule] {
				continue
			}
			cleared[e.Rule] = true
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM flat_penalties
				WHERE vendor = ? AND carrier = ? AND rule_tariff = ? AND rule_number = ?
			`, e.Rule.Vendor, e.Rule.Carrier, e.Rule.RuleTariff, e.Rule.RuleNumber); err != nil {
				return fmt.Errorf("failed to clear flat penalties of %s: %w", e.Rule, err)
			}
		}

		for _, e := range entries {
			r := e.Record
			_, err := tx.ExecContext(ctx, `
				INSERT INTO flat_penalties (
					vendor, carrier, rule_tariff, rule_number, item_no,
					penalty1_amount, penalty1_currency, penalty2_amount, penalty2_currency,
					percent, high_low, dep_window, applies_change, applies_refund, not_permitted
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, e.Rule.Vendor, e.Rule.Carrier, e.Rule.RuleTariff, e.Rule.RuleNumber, r.ItemNo,
				r.Penalty1.Amount.String(), string(r.Penalty1.Currency),
				r.Penalty2.Amount.String(), string(r.Penalty2.Currency),
				r.Percent.String(), char(byte(r.HighLow)), int(r.Window),
				r.Change, r.Refund, r.NotPermitted)
			if err != nil {
				return fmt.Errorf("failed to save flat penalty under %s: %w", e.Rule, err)
			}
		}
		return nil
	})
}

// FlatPenalties implements service.RuleSupply.
func (s *SQLiteStorage) FlatPenalties(ctx context.Context, fare *model.FareUsage) ([]*model.FlatPenaltyRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if fare == nil {
		return nil, fmt.Errorf("%w: fare", ErrNilParameter)
	}

	rule := ForFare(fare.Fare)
	rows, err := s.db.QueryContext(ctx, `
		SELECT vendor, item_no, penalty1_amount, penalty1_currency, penalty2_amount, penalty2_currency,
		       percent, high_low, dep_window, applies_change, applies_refund, not_permitted
		FROM flat_penalties
		WHERE vendor = ? AND carrier = ? AND rule_tariff = ? AND rule_number = ?
		ORDER BY id
	`, rule.Vendor, rule.Carrier, rule.RuleTariff, rule.RuleNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query flat penalties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*model.FlatPenaltyRecord
	for rows.Next() {
		var (
			r                    model.FlatPenaltyRecord
			p1, p1Cur, p2, p2Cur string
			percent, highLow     string
			window               int
		)
		if err := rows.Scan(&r.Vendor, &r.ItemNo, &p1, &p1Cur, &p2, &p2Cur,
			&percent, &highLow, &window, &r.Change, &r.Refund, &r.NotPermitted); err != nil {
			return nil, fmt.Errorf("failed to scan flat penalty: %w", err)
		}
		if r.Penalty1, err = money(p1, p1Cur); err != nil {
			return nil, err
		}
		if r.Penalty2, err = money(p2, p2Cur); err != nil {
			return nil, err
		}
		if r.Percent, err = parseDecimal(percent); err != nil {
			return nil, err
		}
		r.HighLow = model.HighLow(byteOf(highLow))
		r.Window = model.Window(window)
		records = append(records, &r)
	}
	return records, rows.Err()
}
