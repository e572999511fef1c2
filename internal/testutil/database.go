// Package testutil provides rule record and itinerary builders, collaborator
// fakes and an in-memory rule store for tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/storage"
)

// TestDB is an in-memory rule store for tests.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database that is closed when the
// test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedRules(testutil.LH2445, testutil.NewRecord(100, 1).WithPercent("10").Build())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &TestDB{Storage: store, t: t}
}

// LH2445 is the governing rule of the fare built by NewFareUsage.
var LH2445 = storage.GoverningRule{Vendor: model.ATPCOVendor, Carrier: "LH", RuleNumber: "2445", RuleTariff: 21}

// SeedRules files records under a governing rule or fails the test.
func (db *TestDB) SeedRules(rule storage.GoverningRule, records ...*model.RuleRecord) {
	db.t.Helper()

	entries := make([]storage.RuleEntry, len(records))
	for i, rec := range records {
		entries[i] = storage.RuleEntry{Rule: rule, Record: rec}
	}
	if _, err := db.Storage.ImportRules(context.Background(), entries); err != nil {
		db.t.Fatalf("failed to seed rules: %v", err)
	}
}
