// Package model defines the core domain types shared across the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// ExpenseRecord represents a single expense. It is the unit of both training
// and inference input and is immutable once created.
type ExpenseRecord struct {
	Date     time.Time
	Merchant string
	Notes    string
	Category string // Label, present on training records only
	Amount   float64
}

// Validate ensures the record is usable as model input.
func (e *ExpenseRecord) Validate() error {
	if e.Merchant == "" {
		return fmt.Errorf("merchant is required")
	}
	if e.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", e.Amount)
	}
	return nil
}

// Key returns a stable identity for deduplication across training sets.
// Two records with the same merchant, amount, and date are the same sample.
func (e *ExpenseRecord) Key() string {
	data := fmt.Sprintf("%s:%.2f:%s",
		e.Merchant,
		e.Amount,
		e.Date.Format("2006-01-02"))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
