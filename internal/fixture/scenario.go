package fixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/validation"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Scenario modes.
const (
	ModeQuote    = "quote"
	ModeEstimate = "estimate"
)

// Scenario is one penalty request with the rule data it needs and, optionally,
// the result it is expected to produce.
type Scenario struct {
	Repriced    *ItineraryDoc       `yaml:"repriced"`
	Mapping     map[string][]string `yaml:"mapping"`
	Expect      *Expectation        `yaml:"expect"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Mode        string              `yaml:"mode"`
	Category    string              `yaml:"category"`
	Path        string              `yaml:"-"`
	Waived      []string            `yaml:"waived"`
	Passenger   PassengerDoc        `yaml:"passenger"`
	Exchange    ItineraryDoc        `yaml:"exchange"`
	Library     `yaml:",inline"`
	// DomesticOverride prices domestic units with international records in
	// estimates.
	DomesticOverride bool `yaml:"domestic_override"`
}

// PassengerDoc describes the traveller.
type PassengerDoc struct {
	Type     string `yaml:"type"`
	Infant   bool   `yaml:"infant"`
	Child    bool   `yaml:"child"`
	WithSeat bool   `yaml:"with_seat"`
}

// ItineraryDoc is a priced fare path.
type ItineraryDoc struct {
	ApplicationDate     string           `yaml:"application_date"`
	CalculationCurrency string           `yaml:"calculation_currency"`
	ValidatingCarrier   string           `yaml:"validating_carrier"`
	PricingUnits        []PricingUnitDoc `yaml:"pricing_units"`
}

// PricingUnitDoc is a pricing unit.
type PricingUnitDoc struct {
	ID         string         `yaml:"id"`
	FareUsages []FareUsageDoc `yaml:"fare_usages"`
	PlusUps    []PlusUpDoc    `yaml:"plus_ups"`
}

// PlusUpDoc is a minimum-fare plus-up. Without a fare component it belongs to
// the whole unit.
type PlusUpDoc struct {
	Amount        string `yaml:"amount"`
	FareComponent string `yaml:"fare_component"`
	Kind          string `yaml:"kind"`
}

// FareUsageDoc is a priced fare component.
type FareUsageDoc struct {
	Fare           FareDoc      `yaml:"fare"`
	ID             string       `yaml:"id"`
	Board          string       `yaml:"board"`
	Off            string       `yaml:"off"`
	OriginCurrency string       `yaml:"origin_currency"`
	Amount         string       `yaml:"amount"`
	Total          string       `yaml:"total"`
	Surcharges     string       `yaml:"surcharges"`
	Stopovers      string       `yaml:"stopovers"`
	Transfers      string       `yaml:"transfers"`
	Differentials  string       `yaml:"differentials"`
	RetrievalBasis string       `yaml:"retrieval_basis"`
	Segments       []SegmentDoc `yaml:"segments"`
	International  bool         `yaml:"international"`
	// Flown marks the default single segment as flown.
	Flown bool `yaml:"flown"`
}

// SegmentDoc is a travel segment.
type SegmentDoc struct {
	Board string `yaml:"board"`
	Off   string `yaml:"off"`
	Flown bool   `yaml:"flown"`
}

// FareDoc holds the tariff attributes of a fare.
type FareDoc struct {
	Discount             *DiscountDoc `yaml:"discount"`
	Vendor               string       `yaml:"vendor"`
	Carrier              string       `yaml:"carrier"`
	Rule                 string       `yaml:"rule"`
	FareClass            string       `yaml:"fare_class"`
	FareType             string       `yaml:"fare_type"`
	Cabin                string       `yaml:"cabin"`
	OWRT                 string       `yaml:"owrt"`
	NUCAmount            string       `yaml:"nuc_amount"`
	Tariff               int          `yaml:"tariff"`
	FareClassAppTariff   int          `yaml:"fare_class_app_tariff"`
	Private              bool         `yaml:"private"`
	Normal               bool         `yaml:"normal"`
	FailsSameBookingCode bool         `yaml:"fails_same_booking_code"`
}

// DiscountDoc is a category 19/22 discount.
type DiscountDoc struct {
	PaxType  string `yaml:"pax_type"`
	Percent  string `yaml:"percent"`
	Category int    `yaml:"category"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	sc.Path = path
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if sc.Mode == "" {
		sc.Mode = ModeQuote
	}
	if sc.Mode != ModeQuote && sc.Mode != ModeEstimate {
		return nil, fmt.Errorf("%w: scenario %s: unknown mode %q", common.ErrInvalidConfig, sc.Name, sc.Mode)
	}
	return &sc, nil
}

// LoadDir reads every .yaml and .yml scenario in a directory, sorted by file
// name. Subdirectories are not searched.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	var errs []error
	for _, name := range names {
		sc, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, errors.Join(errs...)
}

// ExchangeItinerary builds the itinerary being changed or refunded.
func (s *Scenario) ExchangeItinerary() (*model.Itinerary, error) {
	return s.Exchange.itinerary()
}

// RepricedItinerary builds the repriced itinerary, or nil when the scenario
// has none.
func (s *Scenario) RepricedItinerary() (*model.Itinerary, error) {
	if s.Repriced == nil {
		return nil, nil
	}
	return s.Repriced.itinerary()
}

// ResolveMapping relates exchange fare components to repriced fare usages. A
// nil result leaves the engine to map by identity.
func (s *Scenario) ResolveMapping(repriced *model.Itinerary) (validation.Mapping, error) {
	if len(s.Mapping) == 0 {
		return nil, nil
	}
	if repriced == nil {
		return nil, fmt.Errorf("%w: scenario %s maps fare components without a repriced itinerary", common.ErrInvalidConfig, s.Name)
	}

	mapping := make(validation.Mapping, len(s.Mapping))
	for fc, ids := range s.Mapping {
		for _, id := range ids {
			fu, ok := repriced.FareUsage(id)
			if !ok {
				return nil, fmt.Errorf("%w: scenario %s maps %s to unknown fare usage %s", common.ErrInvalidConfig, s.Name, fc, id)
			}
			mapping[fc] = append(mapping[fc], fu)
		}
	}
	return mapping, nil
}

// WaivedRecords parses the waived record list. Each entry is "vendor/item/seq"
// or "item/seq" for the primary vendor.
func (s *Scenario) WaivedRecords() (map[model.RecordKey]bool, error) {
	if len(s.Waived) == 0 {
		return nil, nil
	}
	waived := make(map[model.RecordKey]bool, len(s.Waived))
	for _, w := range s.Waived {
		parts := strings.Split(w, "/")
		if len(parts) == 2 {
			parts = append([]string{model.ATPCOVendor}, parts...)
		}
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: waived record %q", common.ErrInvalidConfig, w)
		}
		item, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: waived record %q: %w", common.ErrInvalidConfig, w, err)
		}
		seq, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: waived record %q: %w", common.ErrInvalidConfig, w, err)
		}
		waived[model.RecordKey{Vendor: parts[0], ItemNo: item, SeqNo: seq}] = true
	}
	return waived, nil
}

// PassengerModel returns the passenger.
func (s *Scenario) PassengerModel() model.Passenger {
	pax := model.Passenger{
		Type:     s.Passenger.Type,
		Infant:   s.Passenger.Infant,
		Child:    s.Passenger.Child,
		WithSeat: s.Passenger.WithSeat,
	}
	if pax.Type == "" {
		pax.Type = "ADT"
	}
	return pax
}

// CategoryModel returns the requested category. Quotes default to change.
func (s *Scenario) CategoryModel() (model.Category, error) {
	if s.Category == "" {
		return model.CategoryChange, nil
	}
	return ParseCategory(s.Category)
}

func (d ItineraryDoc) itinerary() (*model.Itinerary, error) {
	itin := &model.Itinerary{
		CalculationCurrency: model.CurrencyCode(d.CalculationCurrency),
		ValidatingCarrier:   d.ValidatingCarrier,
	}
	if itin.CalculationCurrency == "" {
		itin.CalculationCurrency = model.NUC
	}
	if d.ApplicationDate != "" {
		t, err := time.Parse("2006-01-02", d.ApplicationDate)
		if err != nil {
			return nil, fmt.Errorf("%w: application date %q", common.ErrInvalidConfig, d.ApplicationDate)
		}
		itin.ApplicationDate = t
	}

	for _, pd := range d.PricingUnits {
		pu := &model.PricingUnit{ID: pd.ID}
		for _, fd := range pd.FareUsages {
			fu, err := fd.fareUsage(itin.CalculationCurrency)
			if err != nil {
				return nil, fmt.Errorf("fare usage %s: %w", fd.ID, err)
			}
			pu.FareUsages = append(pu.FareUsages, fu)
		}
		for _, up := range pd.PlusUps {
			amount, err := parseDecimal(up.Amount)
			if err != nil {
				return nil, fmt.Errorf("pricing unit %s plus-up: %w", pd.ID, err)
			}
			pu.PlusUps = append(pu.PlusUps, model.PlusUp{Amount: amount, FareComponentID: up.FareComponent, Kind: up.Kind})
		}
		itin.PricingUnits = append(itin.PricingUnits, pu)
	}
	return itin, nil
}

func (d FareUsageDoc) fareUsage(calc model.CurrencyCode) (*model.FareUsage, error) {
	fare, err := d.Fare.fare()
	if err != nil {
		return nil, err
	}
	basis, err := indicator("retrieval_basis", d.RetrievalBasis)
	if err != nil {
		return nil, err
	}

	fu := &model.FareUsage{
		ID:             d.ID,
		Fare:           fare,
		BoardPoint:     d.Board,
		OffPoint:       d.Off,
		OriginCurrency: model.CurrencyCode(d.OriginCurrency),
		RetrievalBasis: model.RepriceBasis(basis),
		International:  d.International,
	}
	if fu.RetrievalBasis == model.RepriceBasisUnspecified {
		fu.RetrievalBasis = model.RepriceBasisTicketIssue
	}

	fu.FareAmount, err = model.ParseMoney(d.Amount, calc)
	if err != nil {
		return nil, err
	}
	if fu.OriginCurrency == "" {
		fu.OriginCurrency = fu.FareAmount.Currency
	}
	if fu.Fare.NucAmount.IsZero() && fu.FareAmount.Currency == model.NUC {
		fu.Fare.NucAmount = fu.FareAmount.Amount
	}

	amounts := []struct {
		dst *decimal.Decimal
		s   string
	}{
		{&fu.TotalAmount, d.Total},
		{&fu.Surcharges, d.Surcharges},
		{&fu.Stopovers, d.Stopovers},
		{&fu.Transfers, d.Transfers},
		{&fu.Differentials, d.Differentials},
	}
	for _, a := range amounts {
		v, err := parseDecimal(a.s)
		if err != nil {
			return nil, err
		}
		*a.dst = v
	}
	if d.Total == "" {
		fu.TotalAmount = fu.FareAmount.Amount
	}

	if len(d.Segments) == 0 {
		fu.Segments = []model.Segment{{Board: d.Board, Off: d.Off, Order: 1, Unflown: !d.Flown}}
	}
	for i, sd := range d.Segments {
		fu.Segments = append(fu.Segments, model.Segment{Board: sd.Board, Off: sd.Off, Order: i + 1, Unflown: !sd.Flown})
	}
	return fu, nil
}

func (d FareDoc) fare() (model.Fare, error) {
	owrt, err := indicator("owrt", d.OWRT)
	if err != nil {
		return model.Fare{}, err
	}
	nuc, err := parseDecimal(d.NUCAmount)
	if err != nil {
		return model.Fare{}, err
	}

	fare := model.Fare{
		Vendor:               vendorOr(d.Vendor),
		Carrier:              d.Carrier,
		RuleNumber:           d.Rule,
		FareClass:            d.FareClass,
		FareType:             d.FareType,
		Cabin:                d.Cabin,
		RuleTariff:           d.Tariff,
		FareClassAppTariff:   d.FareClassAppTariff,
		OWRT:                 model.OWRT(owrt),
		NucAmount:            nuc,
		Normal:               d.Normal,
		FailsSameBookingCode: d.FailsSameBookingCode,
	}
	if d.Private {
		fare.TariffCategory = model.TariffPrivate
	}
	if d.Discount != nil {
		pct, err := parseDecimal(d.Discount.Percent)
		if err != nil {
			return model.Fare{}, err
		}
		fare.Discount = &model.Discount{
			PaxType:  d.Discount.PaxType,
			Percent:  pct,
			Category: model.DiscountCategory(d.Discount.Category),
		}
	}
	return fare, nil
}
