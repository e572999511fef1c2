package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// GoverningRule identifies the fare rule a record belongs to.
type GoverningRule struct {
	Vendor     string `json:"vendor"`
	Carrier    string `json:"carrier"`
	RuleNumber string `json:"rule_number"`
	RuleTariff int    `json:"rule_tariff"`
}

// ForFare returns the governing rule of a priced fare.
func ForFare(fare model.Fare) GoverningRule {
	return GoverningRule{
		Vendor:     fare.Vendor,
		Carrier:    fare.Carrier,
		RuleNumber: fare.RuleNumber,
		RuleTariff: fare.RuleTariff,
	}
}

func (r GoverningRule) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", r.Vendor, r.Carrier, r.RuleTariff, r.RuleNumber)
}

// RuleEntry is a change or refund record filed under its governing rule.
type RuleEntry struct {
	Record *model.RuleRecord
	Rule   GoverningRule
}

const ruleColumns = `vendor, carrier, rule_tariff, rule_number, category, item_no, seq_no, pax_type,
	penalty1_amount, penalty1_currency, penalty2_amount, penalty2_currency, min_amount, min_currency, percent,
	rec_rule_number, rec_fare_class, rec_rule_tariff, fare_type_item_no, waiver_item_no, carrier_appl_item_no,
	discount_tags, scope, calc_option, cancellation_ind, high_low, form_of_refund, fare_break_ind,
	reprice_basis, rule_tariff_ind, fare_class_mode, same_fare, normal_special, owrt, fare_amount_ind,
	booking_code_ind, flown, departure, orig_sched_flight, tax_nonrefundable`

// ImportRules stores rule records, replacing any with the same identity. The
// whole batch is written in one transaction that is retried while the
// database is busy.
func (s *SQLiteStorage) ImportRules(ctx context.Context, entries []RuleEntry) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRuleEntries(entries); err != nil {
		return 0, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO rule_records (`+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range entries {
			r := e.Record
			_, err := stmt.ExecContext(ctx,
				e.Rule.Vendor, e.Rule.Carrier, e.Rule.RuleTariff, e.Rule.RuleNumber,
				int(r.Category), r.ItemNo, r.SeqNo, r.PaxType,
				r.Penalty1.Amount.String(), string(r.Penalty1.Currency),
				r.Penalty2.Amount.String(), string(r.Penalty2.Currency),
				r.MinAmount.Amount.String(), string(r.MinAmount.Currency),
				r.Percent.String(),
				r.RuleNumber, r.FareClass, r.RuleTariff,
				r.FareTypeTblItemNo, r.WaiverTblItemNo, r.CarrierApplItemNo,
				string(r.DiscountTags[:]),
				char(byte(r.Scope)), char(byte(r.CalcOption)), char(r.CancellationInd), char(byte(r.HighLow)),
				char(byte(r.FormOfRefund)), char(r.FareBreakInd), char(byte(r.RepriceBasis)),
				char(byte(r.RuleTariffInd)), char(byte(r.FareClassMode)), char(byte(r.SameFare)),
				char(byte(r.NormalSpecial)), char(byte(r.OWRT)), char(r.FareAmountInd), char(r.BookingCodeInd),
				char(byte(r.Flown)), char(byte(r.Departure)), char(byte(r.OrigSchedFlight)),
				r.TaxNonrefundable,
			)
			if err != nil {
				return fmt.Errorf("failed to save record %s under %s: %w", r.Key(), e.Rule, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("Imported rule records", "count", len(entries))
	return len(entries), nil
}

// EligibleRecords implements service.RuleSupply. Records filed under the fare's
// governing rule are returned in item and sequence order; records restricted
// to another passenger type are left out.
func (s *SQLiteStorage) EligibleRecords(ctx context.Context, fare *model.FareUsage, category model.Category, paxType string) ([]*model.RuleRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if fare == nil {
		return nil, fmt.Errorf("%w: fare", ErrNilParameter)
	}

	rule := ForFare(fare.Fare)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rule_records
		WHERE vendor = ? AND carrier = ? AND rule_tariff = ? AND rule_number = ?
		  AND category = ? AND (pax_type = '' OR pax_type = ?)
		ORDER BY item_no, seq_no
	`, rule.Vendor, rule.Carrier, rule.RuleTariff, rule.RuleNumber, int(category), paxType)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*model.RuleRecord
	for rows.Next() {
		entry, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, entry.Record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rule records: %w", err)
	}
	return records, nil
}

// ListRules returns every stored record, optionally limited to one carrier.
func (s *SQLiteStorage) ListRules(ctx context.Context, carrier string) ([]RuleEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rule_records
		WHERE ? = '' OR carrier = ?
		ORDER BY carrier, rule_tariff, rule_number, category, item_no, seq_no
	`, carrier, carrier)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []RuleEntry
	for rows.Next() {
		entry, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rule records: %w", err)
	}
	return entries, nil
}

// CountRules returns the number of stored rule records.
func (s *SQLiteStorage) CountRules(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rule records: %w", err)
	}
	return n, nil
}

func scanRule(rows *sql.Rows) (RuleEntry, error) {
	var (
		e                                      RuleEntry
		r                                      model.RuleRecord
		category                               int
		p1, p1Cur, p2, p2Cur, minAmt, minCur   string
		percent, tags                          string
		scope, calc, cancel, highLow, form     string
		fareBreak, basis, tariffInd, fareClass string
		same, normal, owrt, fareAmt, booking   string
		flown, departure, origSched            string
	)

	err := rows.Scan(
		&e.Rule.Vendor, &e.Rule.Carrier, &e.Rule.RuleTariff, &e.Rule.RuleNumber,
		&category, &r.ItemNo, &r.SeqNo, &r.PaxType,
		&p1, &p1Cur, &p2, &p2Cur, &minAmt, &minCur, &percent,
		&r.RuleNumber, &r.FareClass, &r.RuleTariff,
		&r.FareTypeTblItemNo, &r.WaiverTblItemNo, &r.CarrierApplItemNo,
		&tags, &scope, &calc, &cancel, &highLow, &form, &fareBreak,
		&basis, &tariffInd, &fareClass, &same, &normal, &owrt, &fareAmt,
		&booking, &flown, &departure, &origSched, &r.TaxNonrefundable,
	)
	if err != nil {
		return RuleEntry{}, fmt.Errorf("failed to scan rule record: %w", err)
	}

	r.Vendor = e.Rule.Vendor
	r.Category = model.Category(category)
	if r.Penalty1, err = money(p1, p1Cur); err != nil {
		return RuleEntry{}, err
	}
	if r.Penalty2, err = money(p2, p2Cur); err != nil {
		return RuleEntry{}, err
	}
	if r.MinAmount, err = money(minAmt, minCur); err != nil {
		return RuleEntry{}, err
	}
	if r.Percent, err = parseDecimal(percent); err != nil {
		return RuleEntry{}, err
	}
	for i := range r.DiscountTags {
		r.DiscountTags[i] = model.Blank
		if i < len(tags) {
			r.DiscountTags[i] = tags[i]
		}
	}

	r.Scope = model.FeeScope(byteOf(scope))
	r.CalcOption = model.CalcOption(byteOf(calc))
	r.CancellationInd = byteOf(cancel)
	r.HighLow = model.HighLow(byteOf(highLow))
	r.FormOfRefund = model.FormOfRefund(byteOf(form))
	r.FareBreakInd = byteOf(fareBreak)
	r.RepriceBasis = model.RepriceBasis(byteOf(basis))
	r.RuleTariffInd = model.TariffRestriction(byteOf(tariffInd))
	r.FareClassMode = model.FareClassMode(byteOf(fareClass))
	r.SameFare = model.SameFare(byteOf(same))
	r.NormalSpecial = model.NormalSpecial(byteOf(normal))
	r.OWRT = model.OWRT(byteOf(owrt))
	r.FareAmountInd = byteOf(fareAmt)
	r.BookingCodeInd = byteOf(booking)
	r.Flown = model.FlownApplicability(byteOf(flown))
	r.Departure = model.DepartureInd(byteOf(departure))
	r.OrigSchedFlight = model.OrigSchedFlight(byteOf(origSched))

	e.Record = &r
	return e, nil
}

// char stores an indicator byte as a one-character string.
func char(b byte) string {
	if b == 0 {
		b = model.Blank
	}
	return string([]byte{b})
}

func byteOf(s string) byte {
	if s == "" {
		return model.Blank
	}
	return s[0]
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad amount %q", common.ErrDatabaseCorrupted, s)
	}
	return d, nil
}

func money(amount, currency string) (model.Money, error) {
	d, err := parseDecimal(amount)
	if err != nil {
		return model.Money{}, err
	}
	return model.NewMoney(d, model.CurrencyCode(currency)), nil
}
