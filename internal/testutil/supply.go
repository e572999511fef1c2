package testutil

import (
	"context"
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/stretchr/testify/mock"
)

// MockRuleSupply is a testify mock of service.RuleSupply.
type MockRuleSupply struct {
	mock.Mock
}

// EligibleRecords implements service.RuleSupply.
func (m *MockRuleSupply) EligibleRecords(ctx context.Context, fare *model.FareUsage, category model.Category, paxType string) ([]*model.RuleRecord, error) {
	args := m.Called(ctx, fare, category, paxType)
	recs, _ := args.Get(0).([]*model.RuleRecord)
	return recs, args.Error(1)
}

// FareTypeTable implements service.RuleSupply.
func (m *MockRuleSupply) FareTypeTable(ctx context.Context, vendor string, itemNo int, asOf time.Time) ([]model.FareTypeEntry, error) {
	args := m.Called(ctx, vendor, itemNo, asOf)
	entries, _ := args.Get(0).([]model.FareTypeEntry)
	return entries, args.Error(1)
}

// CarrierApplications implements service.RuleSupply.
func (m *MockRuleSupply) CarrierApplications(ctx context.Context, vendor string, itemNo int, asOf time.Time) ([]string, error) {
	args := m.Called(ctx, vendor, itemNo, asOf)
	carriers, _ := args.Get(0).([]string)
	return carriers, args.Error(1)
}

// FlatPenalties implements service.RuleSupply.
func (m *MockRuleSupply) FlatPenalties(ctx context.Context, fare *model.FareUsage) ([]*model.FlatPenaltyRecord, error) {
	args := m.Called(ctx, fare)
	recs, _ := args.Get(0).([]*model.FlatPenaltyRecord)
	return recs, args.Error(1)
}

// RecordingSink collects diagnostic records in memory.
type RecordingSink struct {
	Records []model.DiagnosticRecord
	// Inactive turns the sink off while keeping it attached.
	Inactive bool
}

// Active implements service.DiagnosticSink.
func (s *RecordingSink) Active() bool {
	return !s.Inactive
}

// Record implements service.DiagnosticSink.
func (s *RecordingSink) Record(rec model.DiagnosticRecord) {
	s.Records = append(s.Records, rec)
}

// OfKind returns the collected records of one kind.
func (s *RecordingSink) OfKind(kind model.DiagnosticKind) []model.DiagnosticRecord {
	var out []model.DiagnosticRecord
	for _, r := range s.Records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
