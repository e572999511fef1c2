// Package estimator quotes the maximum change and refund penalty of an
// itinerary without repricing it.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/penalty"
	"github.com/Veraticus/rexpenalty/internal/permutation"
	"github.com/Veraticus/rexpenalty/internal/service"
	"github.com/google/uuid"
)

// ErrEmptyItinerary is returned for an itinerary without fare components.
var ErrEmptyItinerary = errors.New("itinerary has no fare components")

// Fee is the quoted penalty of one departure window. A non-refundable fee has
// no amount.
type Fee struct {
	Amount        *model.Money `json:"amount,omitempty"`
	MissingData   []string     `json:"missing_data,omitempty"`
	NonRefundable bool         `json:"non_refundable"`
}

// WindowFees holds the fees before and after departure.
type WindowFees struct {
	Before Fee `json:"before"`
	After  Fee `json:"after"`
	// FlatPenalty marks the windows quoted from flat penalty records.
	FlatPenalty model.Window `json:"flat_penalty,omitempty"`
}

func (w *WindowFees) set(window model.Window, fee Fee) {
	if window == model.WindowBefore {
		w.Before = fee
	} else {
		w.After = fee
	}
}

// Get returns the fee of one window.
func (w WindowFees) Get(window model.Window) Fee {
	if window == model.WindowBefore {
		return w.Before
	}
	return w.After
}

// Response is a complete estimate.
type Response struct {
	RequestID string     `json:"request_id"`
	Change    WindowFees `json:"change"`
	Refund    WindowFees `json:"refund"`
}

// Request describes the itinerary to quote.
type Request struct {
	Itinerary *model.Itinerary
	Waived    map[model.RecordKey]bool
	Passenger model.Passenger
	// DomesticOverride lets a domestic pricing unit take the record of an
	// international unit when that yields a higher fee.
	DomesticOverride bool
}

// Estimator quotes maximum penalties.
type Estimator struct {
	supply service.RuleSupply
	conv   service.CurrencyConverter
	sink   service.DiagnosticSink
	cfg    config.EngineConfig
}

// New creates an estimator. The sink may be nil.
func New(supply service.RuleSupply, conv service.CurrencyConverter, sink service.DiagnosticSink, cfg config.EngineConfig) *Estimator {
	return &Estimator{
		supply: supply,
		conv:   conv,
		sink:   sink,
		cfg:    cfg,
	}
}

var windows = []model.Window{model.WindowBefore, model.WindowAfter}

// Estimate quotes both the change and the refund penalty.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Response, error) {
	id := uuid.NewString()
	slog.Info("Estimating maximum penalty", "request_id", id, "fare_components", len(req.Itinerary.FareComponents()))

	change, err := e.quote(ctx, req, model.CategoryChange, id)
	if err != nil {
		return nil, err
	}
	refund, err := e.quote(ctx, req, model.CategoryRefund, id)
	if err != nil {
		return nil, err
	}
	return &Response{RequestID: id, Change: change, Refund: refund}, nil
}

// Change quotes the change penalty.
func (e *Estimator) Change(ctx context.Context, req Request) (WindowFees, error) {
	return e.quote(ctx, req, model.CategoryChange, uuid.NewString())
}

// Refund quotes the refund penalty.
func (e *Estimator) Refund(ctx context.Context, req Request) (WindowFees, error) {
	return e.quote(ctx, req, model.CategoryRefund, uuid.NewString())
}

func (e *Estimator) quote(ctx context.Context, req Request, category model.Category, id string) (WindowFees, error) {
	if req.Itinerary == nil || len(req.Itinerary.FareComponents()) == 0 {
		return WindowFees{}, ErrEmptyItinerary
	}

	calc, err := e.calculator(req)
	if err != nil {
		return WindowFees{}, err
	}

	components, err := permutation.Collect(ctx, e.supply, req.Itinerary, category, req.Passenger)
	if err != nil {
		return WindowFees{}, err
	}

	components, err = e.byCarrier(ctx, req.Itinerary, components)
	if err != nil {
		return WindowFees{}, err
	}

	var out WindowFees
	for _, w := range windows {
		gen := permutation.NewGenerator(permutation.Options{Window: w, Estimate: true})
		admissible := gen.Filter(components)

		var fee Fee
		if missing := permutation.WithoutRecords(admissible); len(missing) > 0 {
			slog.Debug("Falling back to flat penalties",
				"request_id", id,
				"category", category.String(),
				"window", w.String(),
				"fare_components", missing)
			fee, err = e.flat(ctx, req, calc, category, w)
			out.FlatPenalty |= w
		} else if category == model.CategoryChange {
			fee, err = e.changeWindow(req, calc, gen, admissible)
		} else {
			fee, err = e.refundWindow(ctx, req, calc, gen, admissible, w)
		}
		if err != nil {
			return WindowFees{}, fmt.Errorf("%s %s departure: %w", category, w, err)
		}
		slog.Debug("Quoted window",
			"request_id", id,
			"category", category.String(),
			"window", w.String(),
			"non_refundable", fee.NonRefundable)
		out.set(w, fee)
	}
	return out, nil
}

// calculator creates a fresh calculator for the request. Every window prices
// its own permutations.
func (e *Estimator) calculator(req Request) (*penalty.Calculator, error) {
	discounts, err := penalty.NewDiscountApplier(e.cfg.DiscountVariant, req.Passenger)
	if err != nil {
		return nil, err
	}
	return penalty.NewCalculator(req.Itinerary, penalty.Options{
		Converter:   e.conv,
		Discounts:   discounts,
		Adjuster:    penalty.NewAdjuster(e.cfg.AdjusterMode),
		Sink:        e.sink,
		Waived:      req.Waived,
		Currency:    e.cfg.SettlementCurrency,
		SubjectMode: e.cfg.SubjectMode,
	}), nil
}

// byCarrier drops records whose carrier application table excludes the
// validating carrier.
func (e *Estimator) byCarrier(ctx context.Context, itin *model.Itinerary, components []permutation.ComponentRecords) ([]permutation.ComponentRecords, error) {
	out := make([]permutation.ComponentRecords, len(components))
	for i, c := range components {
		kept := make([]*model.RuleRecord, 0, len(c.Records))
		for _, rec := range c.Records {
			ok, err := e.carrierApplies(ctx, itin, rec)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, rec)
			}
		}
		out[i] = permutation.ComponentRecords{
			Fare:            c.Fare,
			FareComponentID: c.FareComponentID,
			Records:         kept,
		}
	}
	return out, nil
}

// AnyCarrier in a carrier application table admits every carrier.
const AnyCarrier = "$$"

func (e *Estimator) carrierApplies(ctx context.Context, itin *model.Itinerary, rec *model.RuleRecord) (bool, error) {
	if rec.CarrierApplItemNo == 0 {
		return true, nil
	}
	carriers, err := e.supply.CarrierApplications(ctx, rec.Vendor, rec.CarrierApplItemNo, itin.ApplicationDate)
	if err != nil {
		return false, fmt.Errorf("carrier applications %s/%d: %w", rec.Vendor, rec.CarrierApplItemNo, err)
	}
	for _, cxr := range carriers {
		if cxr == AnyCarrier || cxr == itin.ValidatingCarrier {
			return true, nil
		}
	}
	return false, nil
}

func (e *Estimator) round(m model.Money) model.Money {
	if r, ok := e.conv.(service.Rounder); ok {
		return r.Round(m)
	}
	return model.NewMoney(m.Amount.Round(e.cfg.Rounding), m.Currency)
}

func (e *Estimator) amount(m model.Money) *model.Money {
	rounded := e.round(m)
	return &rounded
}
