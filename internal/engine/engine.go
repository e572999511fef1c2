// Package engine selects the cheapest valid rule-record permutation for a
// voluntary exchange or refund.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/Veraticus/rexpenalty/internal/diagnostic"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/penalty"
	"github.com/Veraticus/rexpenalty/internal/permutation"
	"github.com/Veraticus/rexpenalty/internal/service"
	"github.com/Veraticus/rexpenalty/internal/validation"
	"github.com/google/uuid"
)

// Engine orchestrates permutation generation, validation and penalty
// calculation.
type Engine struct {
	supply service.RuleSupply
	conv   service.CurrencyConverter
	sink   service.DiagnosticSink
	cfg    config.EngineConfig
}

// New creates an engine with the default configuration.
func New(supply service.RuleSupply, conv service.CurrencyConverter, sink service.DiagnosticSink) *Engine {
	return NewWithConfig(supply, conv, sink, config.DefaultEngineConfig())
}

// NewWithConfig creates an engine with custom configuration. The sink may be nil.
func NewWithConfig(supply service.RuleSupply, conv service.CurrencyConverter, sink service.DiagnosticSink, cfg config.EngineConfig) *Engine {
	return &Engine{
		supply: supply,
		conv:   conv,
		sink:   sink,
		cfg:    cfg,
	}
}

// RepriceRequest describes one exchange or refund.
type RepriceRequest struct {
	// Exchange is the itinerary being exchanged or refunded.
	Exchange *model.Itinerary
	// Repriced is the new itinerary. When Mapping is nil, fare components are
	// related to repriced usages with the same identity.
	Repriced  *model.Itinerary
	Mapping   validation.Mapping
	Waived    map[model.RecordKey]bool
	Passenger model.Passenger
	Category  model.Category
}

// Outcome is the result of a reprice.
type Outcome struct {
	Winner    *model.Permutation `json:"-"`
	Rejected  map[string]int     `json:"rejected,omitempty"`
	RequestID string             `json:"request_id"`
	// Charged is the winner's total raised to its minimum floor.
	Charged       model.Money        `json:"charged"`
	Total         model.Money        `json:"total"`
	Minimum       model.Money        `json:"minimum"`
	Highest       *model.Fee         `json:"highest,omitempty"`
	FormOfRefund  model.FormOfRefund `json:"form_of_refund"`
	Generated     int                `json:"generated"`
	Valid         int                `json:"valid"`
	WinnerNumber  int                `json:"winner"`
	TaxRefundable bool               `json:"tax_refundable"`
	Waived        bool               `json:"waived"`
}

// Reprice finds the valid permutation with the lowest charged penalty. The
// first permutation seen wins an exact tie. It returns common.ErrNoValidSolution
// when no permutation survives validation.
func (e *Engine) Reprice(ctx context.Context, req RepriceRequest) (*Outcome, error) {
	if req.Exchange == nil {
		return nil, fmt.Errorf("%w: exchange itinerary is required", common.ErrMissingFare)
	}

	out := &Outcome{
		RequestID: uuid.NewString(),
		Rejected:  make(map[string]int),
	}
	slog.Info("Starting reprice",
		"request_id", out.RequestID,
		"category", req.Category.String(),
		"fare_components", len(req.Exchange.FareComponents()))

	components, err := permutation.Collect(ctx, e.supply, req.Exchange, req.Category, req.Passenger)
	if err != nil {
		return nil, err
	}
	diagnostic.ReportMissingMatches(e.sink, permutation.WithoutRecords(components))

	perms, err := permutation.NewGenerator(permutation.Options{}).Generate(components)
	if err != nil {
		return nil, err
	}
	out.Generated = len(perms)

	calc, err := e.calculator(req)
	if err != nil {
		return nil, err
	}
	validator := validation.NewValidator(e.supply, e.sink, validation.NewCache(), req.Exchange.ApplicationDate)
	mapping := req.Mapping
	if mapping == nil {
		mapping = MapByIdentity(req.Exchange, req.Repriced)
	}

	var winner *model.Permutation
	for _, perm := range perms {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		res, err := validator.Validate(ctx, perm, mapping)
		if err != nil {
			return nil, fmt.Errorf("permutation %d: %w", perm.Number, err)
		}
		if !res.Passed {
			out.Rejected[rejection(res)]++
			continue
		}
		out.Valid++

		if err := calc.Calculate(perm); err != nil {
			return nil, fmt.Errorf("permutation %d: %w", perm.Number, err)
		}
		charged, err := penalty.Charged(perm, e.conv)
		if err != nil {
			return nil, err
		}
		if winner == nil || charged.Amount.LessThan(out.Charged.Amount) {
			winner = perm
			out.Charged = charged
		}
	}

	if winner == nil {
		slog.Info("No valid permutation",
			"request_id", out.RequestID,
			"generated", out.Generated,
			"rejected", out.Rejected)
		return nil, fmt.Errorf("%w: %d permutations generated, none valid", common.ErrNoValidSolution, out.Generated)
	}

	out.Winner = winner
	out.WinnerNumber = winner.Number
	out.Total = winner.TotalPenalty
	out.Minimum = winner.MinimumPenalty
	out.FormOfRefund = winner.FormOfRefund
	out.TaxRefundable = !winner.TaxNonrefundable
	out.Waived = winner.Waived
	if fee, ok := winner.HighestFee(); ok {
		out.Highest = &fee
	}

	slog.Info("Reprice complete",
		"request_id", out.RequestID,
		"generated", out.Generated,
		"valid", out.Valid,
		"winner", out.WinnerNumber,
		"charged", out.Charged.String())
	return out, nil
}

func (e *Engine) calculator(req RepriceRequest) (*penalty.Calculator, error) {
	discounts, err := penalty.NewDiscountApplier(e.cfg.DiscountVariant, req.Passenger)
	if err != nil {
		return nil, err
	}
	return penalty.NewCalculator(req.Exchange, penalty.Options{
		Converter:   e.conv,
		Discounts:   discounts,
		Adjuster:    penalty.NewAdjuster(e.cfg.AdjusterMode),
		Sink:        e.sink,
		Waived:      req.Waived,
		Currency:    e.cfg.SettlementCurrency,
		SubjectMode: e.cfg.SubjectMode,
	}), nil
}

func rejection(res validation.Result) string {
	if res.BasisMismatch {
		return "REPRICE INDICATOR"
	}
	return res.FailedCheck.String()
}

// MapByIdentity relates each exchange fare component to the repriced fare
// usage with the same identity. Components without a counterpart stay
// unmapped and impose no constraint.
func MapByIdentity(exchange, repriced *model.Itinerary) validation.Mapping {
	mapping := make(validation.Mapping)
	if exchange == nil || repriced == nil {
		return mapping
	}
	for _, fu := range exchange.FareComponents() {
		if r, ok := repriced.FareUsage(fu.ID); ok {
			mapping[fu.ID] = append(mapping[fu.ID], r)
		}
	}
	return mapping
}
