// Package service defines the interfaces for the engine's collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// RuleSupply provides read-only rule data. Implementations are expected to be
// externally cached and cheap to call.
type RuleSupply interface {
	// EligibleRecords returns the records of a category that apply to a fare
	// for the passenger type, before any engine-side filtering.
	EligibleRecords(ctx context.Context, fare *model.FareUsage, category model.Category, paxType string) ([]*model.RuleRecord, error)
	FareTypeTable(ctx context.Context, vendor string, itemNo int, asOf time.Time) ([]model.FareTypeEntry, error)
	CarrierApplications(ctx context.Context, vendor string, itemNo int, asOf time.Time) ([]string, error)
	// FlatPenalties returns category 16 records for a fare.
	FlatPenalties(ctx context.Context, fare *model.FareUsage) ([]*model.FlatPenaltyRecord, error)
}

// CurrencyConverter converts amounts between currencies. It must be
// deterministic within one request.
type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to model.CurrencyCode) (decimal.Decimal, error)
}

// Rounder is implemented by converters that know each currency's precision.
type Rounder interface {
	Round(m model.Money) model.Money
}

// DiagnosticSink receives structured records describing every decision.
type DiagnosticSink interface {
	// Active reports whether records are being collected. An active sink
	// disables validation caching.
	Active() bool
	Record(rec model.DiagnosticRecord)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
