package fixture

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/storage"
)

type tableKey struct {
	vendor string
	item   int
}

// MemorySupply serves a rule library from memory. It answers the same
// queries as the SQLite store and is safe for concurrent readers once built.
type MemorySupply struct {
	records   map[storage.GoverningRule][]*model.RuleRecord
	flat      map[storage.GoverningRule][]*model.FlatPenaltyRecord
	fareTypes map[tableKey][]storage.FareTypeRow
	carriers  map[tableKey][]storage.CarrierRow
}

// NewMemorySupply indexes a library.
func NewMemorySupply(lib *Library) (*MemorySupply, error) {
	s := &MemorySupply{
		records:   make(map[storage.GoverningRule][]*model.RuleRecord),
		flat:      make(map[storage.GoverningRule][]*model.FlatPenaltyRecord),
		fareTypes: make(map[tableKey][]storage.FareTypeRow),
		carriers:  make(map[tableKey][]storage.CarrierRow),
	}
	if lib == nil {
		return s, nil
	}

	rules, flat, err := lib.Entries()
	if err != nil {
		return nil, err
	}
	for _, e := range rules {
		s.records[e.Rule] = append(s.records[e.Rule], e.Record)
	}
	for rule, recs := range s.records {
		sort.SliceStable(recs, func(i, j int) bool {
			if recs[i].ItemNo != recs[j].ItemNo {
				return recs[i].ItemNo < recs[j].ItemNo
			}
			return recs[i].SeqNo < recs[j].SeqNo
		})
		s.records[rule] = recs
	}
	for _, e := range flat {
		s.flat[e.Rule] = append(s.flat[e.Rule], e.Record)
	}

	tables, err := lib.FareTypeTables()
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		s.fareTypes[tableKey{t.Vendor, t.ItemNo}] = t.Rows
	}

	carriers, err := lib.CarrierTables()
	if err != nil {
		return nil, err
	}
	for _, t := range carriers {
		key := tableKey{t.Vendor, t.ItemNo}
		s.carriers[key] = append(s.carriers[key], t.Carriers...)
	}
	return s, nil
}

// EligibleRecords implements service.RuleSupply.
func (s *MemorySupply) EligibleRecords(_ context.Context, fare *model.FareUsage, category model.Category, paxType string) ([]*model.RuleRecord, error) {
	if fare == nil {
		return nil, fmt.Errorf("%w: fare", storage.ErrNilParameter)
	}
	var out []*model.RuleRecord
	for _, rec := range s.records[storage.ForFare(fare.Fare)] {
		if rec.Category != category {
			continue
		}
		if rec.PaxType != "" && rec.PaxType != paxType {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// FareTypeTable implements service.RuleSupply.
func (s *MemorySupply) FareTypeTable(_ context.Context, vendor string, itemNo int, asOf time.Time) ([]model.FareTypeEntry, error) {
	var out []model.FareTypeEntry
	for _, row := range s.fareTypes[tableKey{vendor, itemNo}] {
		if inForce(row.Effective, row.Discontinue, asOf) {
			out = append(out, model.FareTypeEntry{FareType: row.FareType, Appl: row.Appl})
		}
	}
	return out, nil
}

// CarrierApplications implements service.RuleSupply.
func (s *MemorySupply) CarrierApplications(_ context.Context, vendor string, itemNo int, asOf time.Time) ([]string, error) {
	var out []string
	for _, row := range s.carriers[tableKey{vendor, itemNo}] {
		if inForce(row.Effective, row.Discontinue, asOf) {
			out = append(out, row.Carrier)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FlatPenalties implements service.RuleSupply.
func (s *MemorySupply) FlatPenalties(_ context.Context, fare *model.FareUsage) ([]*model.FlatPenaltyRecord, error) {
	if fare == nil {
		return nil, fmt.Errorf("%w: fare", storage.ErrNilParameter)
	}
	return s.flat[storage.ForFare(fare.Fare)], nil
}

// inForce compares whole days: effective is inclusive, discontinue exclusive.
func inForce(effective, discontinue, asOf time.Time) bool {
	u := asOf.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	if !effective.IsZero() && effective.After(day) {
		return false
	}
	return discontinue.IsZero() || discontinue.After(day)
}
