package fixture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/Veraticus/rexpenalty/internal/engine"
	"github.com/Veraticus/rexpenalty/internal/estimator"
	"github.com/Veraticus/rexpenalty/internal/service"
)

// Runner executes scenarios. By default each scenario is served from its own
// embedded library; Supply and Converter replace that, for example with a
// SQLite rule store.
type Runner struct {
	Supply    service.RuleSupply
	Converter service.CurrencyConverter
	Sink      service.DiagnosticSink
	Config    config.EngineConfig
}

// NewRunner creates a runner with the given engine settings.
func NewRunner(cfg config.EngineConfig) *Runner {
	return &Runner{Config: cfg}
}

func (r *Runner) collaborators(sc *Scenario) (service.RuleSupply, service.CurrencyConverter, error) {
	supply := r.Supply
	if supply == nil {
		mem, err := NewMemorySupply(&sc.Library)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		supply = mem
	}

	conv := r.Converter
	if conv == nil {
		rates, err := sc.RateTable()
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		conv = rates
	}
	return supply, conv, nil
}

// Quote reprices the scenario and returns the cheapest valid solution.
func (r *Runner) Quote(ctx context.Context, sc *Scenario) (*engine.Outcome, error) {
	supply, conv, err := r.collaborators(sc)
	if err != nil {
		return nil, err
	}
	req, err := r.repriceRequest(sc)
	if err != nil {
		return nil, err
	}
	return engine.NewWithConfig(supply, conv, r.Sink, r.Config).Reprice(ctx, req)
}

// Estimate quotes the maximum change and refund penalties of the exchange
// itinerary.
func (r *Runner) Estimate(ctx context.Context, sc *Scenario) (*estimator.Response, error) {
	supply, conv, err := r.collaborators(sc)
	if err != nil {
		return nil, err
	}
	itin, err := sc.ExchangeItinerary()
	if err != nil {
		return nil, err
	}
	waived, err := sc.WaivedRecords()
	if err != nil {
		return nil, err
	}
	return estimator.New(supply, conv, r.Sink, r.Config).Estimate(ctx, estimator.Request{
		Itinerary:        itin,
		Waived:           waived,
		Passenger:        sc.PassengerModel(),
		DomesticOverride: sc.DomesticOverride,
	})
}

// Check runs the scenario in its mode and compares the result with its
// expectation.
func (r *Runner) Check(ctx context.Context, sc *Scenario) Verdict {
	v := Verdict{Scenario: sc.Name}

	switch sc.Mode {
	case ModeEstimate:
		v.Estimate, v.Err = r.Estimate(ctx, sc)
		v.Failures = sc.Expect.checkError(v.Err)
		if v.Err == nil {
			v.Failures = append(v.Failures, sc.Expect.checkEstimate(v.Estimate)...)
		}
	default:
		v.Outcome, v.Err = r.Quote(ctx, sc)
		v.Failures = sc.Expect.checkError(v.Err)
		if v.Err == nil {
			v.Failures = append(v.Failures, sc.Expect.checkOutcome(v.Outcome)...)
		}
	}

	if !v.Passed() {
		slog.Debug("Scenario failed", "scenario", sc.Name, "failures", v.Failures)
	}
	return v
}

func (r *Runner) repriceRequest(sc *Scenario) (engine.RepriceRequest, error) {
	exchange, err := sc.ExchangeItinerary()
	if err != nil {
		return engine.RepriceRequest{}, err
	}
	repriced, err := sc.RepricedItinerary()
	if err != nil {
		return engine.RepriceRequest{}, err
	}
	if repriced == nil {
		repriced = exchange
	}
	mapping, err := sc.ResolveMapping(repriced)
	if err != nil {
		return engine.RepriceRequest{}, err
	}
	waived, err := sc.WaivedRecords()
	if err != nil {
		return engine.RepriceRequest{}, err
	}
	category, err := sc.CategoryModel()
	if err != nil {
		return engine.RepriceRequest{}, err
	}

	return engine.RepriceRequest{
		Exchange:  exchange,
		Repriced:  repriced,
		Mapping:   mapping,
		Waived:    waived,
		Passenger: sc.PassengerModel(),
		Category:  category,
	}, nil
}
