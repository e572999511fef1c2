package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/currency"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// SaveRate stores how many units of a currency make one NUC.
func (s *SQLiteStorage) SaveRate(ctx context.Context, code model.CurrencyCode, perNUC decimal.Decimal, decimals int32) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(string(code), "currency"); err != nil {
		return err
	}
	if !perNUC.IsPositive() {
		return fmt.Errorf("%w: %s rate must be positive, got %s", ErrInvalidRate, code, perNUC)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (currency, per_nuc, decimals, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(currency) DO UPDATE SET
			per_nuc = excluded.per_nuc,
			decimals = excluded.decimals,
			updated_at = CURRENT_TIMESTAMP
	`, string(code), perNUC.String(), decimals)
	if err != nil {
		return fmt.Errorf("failed to save rate for %s: %w", code, busy(err))
	}
	return nil
}

// LoadRates builds a rate table from every stored rate.
func (s *SQLiteStorage) LoadRates(ctx context.Context) (*currency.RateTable, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT currency, per_nuc, decimals FROM exchange_rates ORDER BY currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	table := currency.NewRateTable()
	count := 0
	for rows.Next() {
		var code, rate string
		var decimals int32
		if err := rows.Scan(&code, &rate, &decimals); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		perNUC, err := parseDecimal(rate)
		if err != nil {
			return nil, err
		}
		if err := table.SetRate(model.CurrencyCode(code), perNUC, decimals); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRate, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read exchange rates: %w", err)
	}

	slog.Debug("Loaded exchange rates", "count", count)
	return table, nil
}
