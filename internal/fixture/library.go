// Package fixture loads YAML rule libraries and scenarios and runs them
// through the penalty engine.
package fixture

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/currency"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/storage"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Library is a rule data file: records grouped under their governing fare
// rule, plus the tables and exchange rates they reference.
type Library struct {
	Rules     []RuleDoc     `yaml:"rules"`
	FareTypes []FareTypeDoc `yaml:"fare_types"`
	Carriers  []CarrierDoc  `yaml:"carrier_tables"`
	Rates     []RateDoc     `yaml:"rates"`
}

// RuleDoc holds the records of one governing fare rule.
type RuleDoc struct {
	Vendor  string      `yaml:"vendor"`
	Carrier string      `yaml:"carrier"`
	Rule    string      `yaml:"rule"`
	Records []RecordDoc `yaml:"records"`
	Flat    []FlatDoc   `yaml:"flat_penalties"`
	Tariff  int         `yaml:"tariff"`
}

// RecordDoc is a change or refund record. Indicators are written as their
// single-character codes; an omitted indicator is blank.
type RecordDoc struct {
	Category         string `yaml:"category"`
	Pax              string `yaml:"pax"`
	Percent          string `yaml:"percent"`
	Penalty1         string `yaml:"penalty1"`
	Penalty2         string `yaml:"penalty2"`
	Minimum          string `yaml:"minimum"`
	Scope            string `yaml:"scope"`
	CalcOption       string `yaml:"calc_option"`
	HighLow          string `yaml:"high_low"`
	FormOfRefund     string `yaml:"form_of_refund"`
	RepriceBasis     string `yaml:"reprice_basis"`
	RecordRule       string `yaml:"record_rule"`
	RecordFareClass  string `yaml:"record_fare_class"`
	FareClassMode    string `yaml:"fare_class_mode"`
	SameFare         string `yaml:"same_fare"`
	NormalSpecial    string `yaml:"normal_special"`
	OWRT             string `yaml:"owrt"`
	Flown            string `yaml:"flown"`
	Departure        string `yaml:"departure"`
	OrigSchedFlight  string `yaml:"orig_sched_flight"`
	DiscountTags     string `yaml:"discount_tags"`
	Item             int    `yaml:"item"`
	Seq              int    `yaml:"seq"`
	RecordTariff     int    `yaml:"record_tariff"`
	FareTypeTable    int    `yaml:"fare_type_table"`
	WaiverTable      int    `yaml:"waiver_table"`
	CarrierTable     int    `yaml:"carrier_table"`
	HundredPercent   bool   `yaml:"hundred_percent"`
	FareBreak        bool   `yaml:"fare_break"`
	ExactTariff      bool   `yaml:"exact_tariff"`
	FareAmountHigher bool   `yaml:"fare_amount_higher"`
	BookingCode      bool   `yaml:"booking_code"`
	TaxNonrefundable bool   `yaml:"tax_nonrefundable"`
}

// FlatDoc is a category 16 flat penalty.
type FlatDoc struct {
	Penalty1     string `yaml:"penalty1"`
	Penalty2     string `yaml:"penalty2"`
	Percent      string `yaml:"percent"`
	HighLow      string `yaml:"high_low"`
	Window       string `yaml:"window"`
	Item         int    `yaml:"item"`
	Change       bool   `yaml:"change"`
	Refund       bool   `yaml:"refund"`
	NotPermitted bool   `yaml:"not_permitted"`
}

// FareTypeDoc is a fare-type table.
type FareTypeDoc struct {
	Vendor  string          `yaml:"vendor"`
	Entries []FareTypeEntry `yaml:"entries"`
	Item    int             `yaml:"item"`
}

// FareTypeEntry is one dated fare type of a table.
type FareTypeEntry struct {
	Type        string `yaml:"type"`
	Effective   string `yaml:"effective"`
	Discontinue string `yaml:"discontinue"`
	Forbidden   bool   `yaml:"forbidden"`
}

// CarrierDoc is a carrier application table.
type CarrierDoc struct {
	Vendor      string   `yaml:"vendor"`
	Effective   string   `yaml:"effective"`
	Discontinue string   `yaml:"discontinue"`
	Carriers    []string `yaml:"carriers"`
	Item        int      `yaml:"item"`
}

// RateDoc is the number of currency units worth one NUC.
type RateDoc struct {
	Decimals *int32 `yaml:"decimals"`
	Currency string `yaml:"currency"`
	PerNUC   string `yaml:"per_nuc"`
}

// ImportStats counts what Import wrote.
type ImportStats struct {
	Records       int
	FlatPenalties int
	FareTypes     int
	Carriers      int
	Rates         int
}

// LoadLibrary reads a rule library file.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule library: %w", err)
	}

	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to parse rule library %s: %w", path, err)
	}
	return &lib, nil
}

// Import writes the library into a rule store.
func (l *Library) Import(ctx context.Context, store *storage.SQLiteStorage) (ImportStats, error) {
	var stats ImportStats

	rules, flat, err := l.Entries()
	if err != nil {
		return stats, err
	}
	if len(rules) > 0 {
		if stats.Records, err = store.ImportRules(ctx, rules); err != nil {
			return stats, err
		}
	}
	if len(flat) > 0 {
		if err := store.SaveFlatPenalties(ctx, flat); err != nil {
			return stats, err
		}
		stats.FlatPenalties = len(flat)
	}

	tables, err := l.FareTypeTables()
	if err != nil {
		return stats, err
	}
	for _, t := range tables {
		if err := store.SaveFareTypeTable(ctx, t); err != nil {
			return stats, err
		}
		stats.FareTypes++
	}

	carriers, err := l.CarrierTables()
	if err != nil {
		return stats, err
	}
	for _, t := range carriers {
		if err := store.SaveCarrierApplications(ctx, t); err != nil {
			return stats, err
		}
		stats.Carriers++
	}

	for _, r := range l.Rates {
		perNUC, decimals, err := r.parse()
		if err != nil {
			return stats, err
		}
		if err := store.SaveRate(ctx, model.CurrencyCode(r.Currency), perNUC, decimals); err != nil {
			return stats, err
		}
		stats.Rates++
	}

	return stats, nil
}

// Entries converts the rules into storage entries.
func (l *Library) Entries() ([]storage.RuleEntry, []storage.FlatPenaltyEntry, error) {
	var rules []storage.RuleEntry
	var flat []storage.FlatPenaltyEntry

	for _, doc := range l.Rules {
		gov := doc.governing()
		for i, rd := range doc.Records {
			rec, err := rd.record(gov.Vendor)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %s record %d: %w", gov, i, err)
			}
			rules = append(rules, storage.RuleEntry{Rule: gov, Record: rec})
		}
		for i, fd := range doc.Flat {
			rec, err := fd.record(gov.Vendor)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %s flat penalty %d: %w", gov, i, err)
			}
			flat = append(flat, storage.FlatPenaltyEntry{Rule: gov, Record: rec})
		}
	}
	return rules, flat, nil
}

// FareTypeTables converts the fare-type tables.
func (l *Library) FareTypeTables() ([]storage.FareTypeTableData, error) {
	tables := make([]storage.FareTypeTableData, 0, len(l.FareTypes))
	for _, doc := range l.FareTypes {
		table := storage.FareTypeTableData{Vendor: vendorOr(doc.Vendor), ItemNo: doc.Item}
		for i, e := range doc.Entries {
			eff, err := parseDay(e.Effective)
			if err != nil {
				return nil, err
			}
			disc, err := parseDay(e.Discontinue)
			if err != nil {
				return nil, err
			}
			appl := model.FareTypePermitted
			if e.Forbidden {
				appl = model.FareTypeForbidden
			}
			table.Rows = append(table.Rows, storage.FareTypeRow{
				FareType:    e.Type,
				Appl:        appl,
				Seq:         i + 1,
				Effective:   eff,
				Discontinue: disc,
			})
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// CarrierTables converts the carrier application tables.
func (l *Library) CarrierTables() ([]storage.CarrierTable, error) {
	tables := make([]storage.CarrierTable, 0, len(l.Carriers))
	for _, doc := range l.Carriers {
		eff, err := parseDay(doc.Effective)
		if err != nil {
			return nil, err
		}
		disc, err := parseDay(doc.Discontinue)
		if err != nil {
			return nil, err
		}
		table := storage.CarrierTable{Vendor: vendorOr(doc.Vendor), ItemNo: doc.Item}
		for _, c := range doc.Carriers {
			table.Carriers = append(table.Carriers, storage.CarrierRow{Carrier: c, Effective: eff, Discontinue: disc})
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// RateTable builds a converter from the library rates. NUC is always known.
func (l *Library) RateTable() (*currency.RateTable, error) {
	table := currency.NewRateTable()
	for _, r := range l.Rates {
		perNUC, decimals, err := r.parse()
		if err != nil {
			return nil, err
		}
		if err := table.SetRate(model.CurrencyCode(r.Currency), perNUC, decimals); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func (r RateDoc) parse() (decimal.Decimal, int32, error) {
	perNUC, err := decimal.NewFromString(r.PerNUC)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("%w: rate for %s: %w", common.ErrInvalidConfig, r.Currency, err)
	}
	decimals := int32(2)
	if r.Decimals != nil {
		decimals = *r.Decimals
	}
	return perNUC, decimals, nil
}

func (d RuleDoc) governing() storage.GoverningRule {
	return storage.GoverningRule{
		Vendor:     vendorOr(d.Vendor),
		Carrier:    d.Carrier,
		RuleNumber: d.Rule,
		RuleTariff: d.Tariff,
	}
}

func (d RecordDoc) record(vendor string) (*model.RuleRecord, error) {
	category, err := ParseCategory(d.Category)
	if err != nil {
		return nil, err
	}

	rec := &model.RuleRecord{
		Vendor:            vendor,
		Category:          category,
		ItemNo:            d.Item,
		SeqNo:             d.Seq,
		PaxType:           d.Pax,
		RuleNumber:        d.RecordRule,
		FareClass:         d.RecordFareClass,
		RuleTariff:        d.RecordTariff,
		FareTypeTblItemNo: d.FareTypeTable,
		WaiverTblItemNo:   d.WaiverTable,
		CarrierApplItemNo: d.CarrierTable,
		CancellationInd:   flag(d.HundredPercent, model.CancellationHundredPercent),
		FareBreakInd:      flag(d.FareBreak, model.FareBreakChangeAllowed),
		FareAmountInd:     flag(d.FareAmountHigher, model.FareAmountStrictlyHigher),
		BookingCodeInd:    flag(d.BookingCode, model.BookingCodeRequired),
		RuleTariffInd:     model.TariffRestriction(flag(d.ExactTariff, byte(model.TariffExact))),
		TaxNonrefundable:  d.TaxNonrefundable,
	}

	if rec.Percent, err = parseDecimal(d.Percent); err != nil {
		return nil, err
	}
	if rec.Penalty1, err = parseAmount(d.Penalty1); err != nil {
		return nil, err
	}
	if rec.Penalty2, err = parseAmount(d.Penalty2); err != nil {
		return nil, err
	}
	if rec.MinAmount, err = parseAmount(d.Minimum); err != nil {
		return nil, err
	}

	if len(d.DiscountTags) > len(rec.DiscountTags) {
		return nil, fmt.Errorf("%w: discount tags %q longer than %d", common.ErrCorruptRuleData, d.DiscountTags, len(rec.DiscountTags))
	}
	for i := range rec.DiscountTags {
		rec.DiscountTags[i] = model.Blank
		if i < len(d.DiscountTags) {
			rec.DiscountTags[i] = d.DiscountTags[i]
		}
	}

	scope := d.Scope
	if scope == "" {
		scope = string(rune(model.FeeScopeFareComponent))
	}
	indicators := []struct {
		dst  *byte
		name string
		val  string
	}{
		{(*byte)(&rec.Scope), "scope", scope},
		{(*byte)(&rec.CalcOption), "calc_option", d.CalcOption},
		{(*byte)(&rec.HighLow), "high_low", d.HighLow},
		{(*byte)(&rec.FormOfRefund), "form_of_refund", d.FormOfRefund},
		{(*byte)(&rec.RepriceBasis), "reprice_basis", d.RepriceBasis},
		{(*byte)(&rec.FareClassMode), "fare_class_mode", d.FareClassMode},
		{(*byte)(&rec.SameFare), "same_fare", d.SameFare},
		{(*byte)(&rec.NormalSpecial), "normal_special", d.NormalSpecial},
		{(*byte)(&rec.OWRT), "owrt", d.OWRT},
		{(*byte)(&rec.Flown), "flown", d.Flown},
		{(*byte)(&rec.Departure), "departure", d.Departure},
		{(*byte)(&rec.OrigSchedFlight), "orig_sched_flight", d.OrigSchedFlight},
	}
	for _, ind := range indicators {
		b, err := indicator(ind.name, ind.val)
		if err != nil {
			return nil, err
		}
		*ind.dst = b
	}

	return rec, nil
}

func (d FlatDoc) record(vendor string) (*model.FlatPenaltyRecord, error) {
	window, err := model.ParseWindow(d.Window)
	if err != nil {
		return nil, err
	}
	highLow, err := indicator("high_low", d.HighLow)
	if err != nil {
		return nil, err
	}

	rec := &model.FlatPenaltyRecord{
		Vendor:       vendor,
		ItemNo:       d.Item,
		Window:       window,
		Change:       d.Change,
		Refund:       d.Refund,
		NotPermitted: d.NotPermitted,
		HighLow:      model.HighLow(highLow),
	}
	if rec.Percent, err = parseDecimal(d.Percent); err != nil {
		return nil, err
	}
	if rec.Penalty1, err = parseAmount(d.Penalty1); err != nil {
		return nil, err
	}
	if rec.Penalty2, err = parseAmount(d.Penalty2); err != nil {
		return nil, err
	}
	return rec, nil
}

// ParseCategory accepts "change", "refund", "flat" or the category number.
func ParseCategory(s string) (model.Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "change", "31":
		return model.CategoryChange, nil
	case "refund", "33":
		return model.CategoryRefund, nil
	case "flat", "16":
		return model.CategoryFlatPenalty, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return 0, fmt.Errorf("%w: unsupported category %d", common.ErrInvalidConfig, n)
	}
	return 0, fmt.Errorf("%w: unknown category %q", common.ErrInvalidConfig, s)
}

// indicator reads a single-character code. Unknown codes are kept as written
// so that the engine rejects them as corrupt data.
func indicator(name, s string) (byte, error) {
	switch len(s) {
	case 0:
		return model.Blank, nil
	case 1:
		return s[0], nil
	default:
		return 0, fmt.Errorf("%w: %s %q is not a single character", common.ErrCorruptRuleData, name, s)
	}
}

func flag(set bool, b byte) byte {
	if set {
		return b
	}
	return model.Blank
}

func vendorOr(vendor string) string {
	if vendor == "" {
		return model.ATPCOVendor
	}
	return vendor
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad number %q: %w", s, err)
	}
	return d, nil
}

// parseAmount reads an optional "amount CUR" value. An empty string is an
// absent amount.
func parseAmount(s string) (model.Money, error) {
	if strings.TrimSpace(s) == "" {
		return model.Money{}, nil
	}
	return model.ParseMoney(s, "")
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}
