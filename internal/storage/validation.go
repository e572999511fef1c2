// Package storage provides the SQLite rule store for the penalty engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/rexpenalty/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrEmptySlice   = errors.New("slice cannot be empty")
	ErrInvalidRule  = errors.New("invalid rule")
	ErrInvalidTable = errors.New("invalid table")
	ErrInvalidRate  = errors.New("invalid exchange rate")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateGoverningRule(rule GoverningRule) error {
	if strings.TrimSpace(rule.Vendor) == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Carrier) == "" {
		return fmt.Errorf("%w: missing carrier", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.RuleNumber) == "" {
		return fmt.Errorf("%w: missing rule number", ErrInvalidRule)
	}
	return nil
}

// validateRuleEntries validates rule records before import. Corrupt indicators
// are refused here so they never reach the engine.
func validateRuleEntries(entries []RuleEntry) error {
	if entries == nil {
		return fmt.Errorf("%w: entries", ErrNilParameter)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: entries", ErrEmptySlice)
	}

	for i, e := range entries {
		if err := validateGoverningRule(e.Rule); err != nil {
			return fmt.Errorf("entry at index %d: %w", i, err)
		}
		if e.Record == nil {
			return fmt.Errorf("entry at index %d: %w: record", i, ErrNilParameter)
		}
		if e.Record.Category != model.CategoryChange && e.Record.Category != model.CategoryRefund {
			return fmt.Errorf("entry at index %d: %w: category %s cannot be imported as a rule record", i, ErrInvalidRule, e.Record.Category)
		}
		if err := e.Record.Validate(); err != nil {
			return fmt.Errorf("entry at index %d: %w: %v", i, ErrInvalidRule, err)
		}
	}
	return nil
}

func validateFlatEntries(entries []FlatPenaltyEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: flat penalties", ErrEmptySlice)
	}
	for i, e := range entries {
		if err := validateGoverningRule(e.Rule); err != nil {
			return fmt.Errorf("flat penalty at index %d: %w", i, err)
		}
		if e.Record == nil {
			return fmt.Errorf("flat penalty at index %d: %w: record", i, ErrNilParameter)
		}
		if e.Record.Window == 0 {
			return fmt.Errorf("flat penalty at index %d: %w: no departure window", i, ErrInvalidRule)
		}
		if !e.Record.Change && !e.Record.Refund {
			return fmt.Errorf("flat penalty at index %d: %w: applies to neither change nor refund", i, ErrInvalidRule)
		}
	}
	return nil
}

func validateItem(vendor string, itemNo int) error {
	if strings.TrimSpace(vendor) == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidTable)
	}
	if itemNo <= 0 {
		return fmt.Errorf("%w: item number must be positive, got %d", ErrInvalidTable, itemNo)
	}
	return nil
}
