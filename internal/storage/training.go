package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

var _ service.TrainingCache = (*SQLiteStore)(nil)

// trainingRecord is the persisted form of an expense training sample.
type trainingRecord struct {
	Date     time.Time `json:"date"`
	Merchant string    `json:"merchant"`
	Notes    string    `json:"notes,omitempty"`
	Category string    `json:"category"`
	Amount   float64   `json:"amount"`
}

// LoadTrainingSet returns the cached training set for a user, or nil when no
// set has been saved yet.
func (s *SQLiteStore) LoadTrainingSet(ctx context.Context, userID string) ([]model.ExpenseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM training_cache WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query training set: %w", err)
	}

	var stored []trainingRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal training set: %w", err)
	}

	records := make([]model.ExpenseRecord, len(stored))
	for i, r := range stored {
		records[i] = model.ExpenseRecord{
			Date:     r.Date,
			Merchant: r.Merchant,
			Notes:    r.Notes,
			Category: r.Category,
			Amount:   r.Amount,
		}
	}
	return records, nil
}

// SaveTrainingSet replaces the cached training set for a user.
func (s *SQLiteStore) SaveTrainingSet(ctx context.Context, userID string, records []model.ExpenseRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	stored := make([]trainingRecord, len(records))
	for i, r := range records {
		stored[i] = trainingRecord{
			Date:     r.Date,
			Merchant: r.Merchant,
			Notes:    r.Notes,
			Category: r.Category,
			Amount:   r.Amount,
		}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal training set: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO training_cache (user_id, records, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET records = excluded.records, updated_at = excluded.updated_at`,
		userID, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save training set: %w", err)
	}
	return nil
}

// LastTrainedAt returns when the user's model was last trained, or nil if the
// user has never trained.
func (s *SQLiteStore) LastTrainedAt(ctx context.Context, userID string) (*time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT last_trained_at FROM training_meta WHERE user_id = ?`, userID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last trained time: %w", err)
	}
	return &t, nil
}

// SetLastTrainedAt records the completion time of a training run.
func (s *SQLiteStore) SetLastTrainedAt(ctx context.Context, userID string, t time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_meta (user_id, last_trained_at) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET last_trained_at = excluded.last_trained_at`,
		userID, t)
	if err != nil {
		return fmt.Errorf("failed to save last trained time: %w", err)
	}
	return nil
}
