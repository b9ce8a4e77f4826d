// Package feedback implements the durable, append-only ledger of user
// corrections and acceptances, one JSONL file per user.
package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

const (
	trendWindowDays = 30
	ledgerFileName  = "feedback.jsonl"
)

// Ledger stores one append-only feedback file per user under a base
// directory. Appends for the same user are serialized through a per-user
// mutex so concurrent submissions cannot interleave within a record.
type Ledger struct {
	locks   map[string]*sync.Mutex
	baseDir string
	mu      sync.Mutex
}

var _ service.Ledger = (*Ledger)(nil)

// NewLedger creates a ledger rooted at baseDir.
func NewLedger(baseDir string) (*Ledger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: feedback directory", common.ErrMissingConfig)
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create feedback directory: %w", err)
	}
	return &Ledger{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

func (l *Ledger) userFile(userID string) string {
	return filepath.Join(l.baseDir, userID, ledgerFileName)
}

// Append validates, derives the ledger-owned fields, assigns a feedback ID,
// and writes one immutable entry. Validation failures are caller-input
// errors and happen before any side effect; write failures propagate because
// silently losing feedback corrupts the learning loop.
func (l *Ledger) Append(ctx context.Context, record *model.FeedbackRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrInvalidFeedback, err)
	}

	record.FeedbackID = uuid.NewString()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Derive()

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal feedback record: %w", err)
	}

	lock := l.userLock(record.UserID)
	lock.Lock()
	defer lock.Unlock()

	err = common.WithRetry(ctx, func() error {
		return l.appendLine(record.UserID, data)
	}, service.RetryOptions{MaxAttempts: 3})
	if err != nil {
		return "", fmt.Errorf("failed to persist feedback: %w", err)
	}

	slog.Info("Feedback stored",
		"feedback_id", record.FeedbackID,
		"user_id", record.UserID,
		"feedback_type", record.FeedbackType)

	return record.FeedbackID, nil
}

func (l *Ledger) appendLine(userID string, data []byte) error {
	path := l.userFile(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create user feedback directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("Failed to close feedback file", "error", closeErr)
		}
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append feedback record: %w", err)
	}
	return f.Sync()
}

// load reads every record in a user's ledger, oldest first.
func (l *Ledger) load(userID string) ([]model.FeedbackRecord, error) {
	f, err := os.Open(l.userFile(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []model.FeedbackRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r model.FeedbackRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("corrupt feedback record: %w", err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback file: %w", err)
	}
	return records, nil
}

// Stats derives counts, acceptance rate, confidence averages, the top
// correction pairs, and the trailing-30-day weekly acceptance trend.
func (l *Ledger) Stats(_ context.Context, userID string) (*model.FeedbackStats, error) {
	records, err := l.load(userID)
	if err != nil {
		return nil, err
	}

	stats := &model.FeedbackStats{
		UserID:        userID,
		MostCorrected: []model.CorrectionPair{},
		Trend:         []model.WeeklyTrendPoint{},
	}
	if len(records) == 0 {
		return stats, nil
	}

	var confAcceptedSum, confCorrectedSum float64
	corrections := make(map[model.CorrectionPair]int)

	for _, r := range records {
		stats.TotalPredictions++
		switch r.FeedbackType {
		case model.FeedbackAccepted:
			stats.AcceptedCount++
			confAcceptedSum += r.Confidence
		case model.FeedbackCorrected:
			stats.CorrectedCount++
			confCorrectedSum += r.Confidence
			pair := model.CorrectionPair{Predicted: r.PredictedCategory, Actual: r.ActualCategory}
			corrections[pair]++
		case model.FeedbackRejected:
			stats.RejectedCount++
		}
	}

	stats.AcceptanceRate = float64(stats.AcceptedCount) / float64(stats.TotalPredictions) * 100
	if stats.AcceptedCount > 0 {
		stats.AvgConfidenceAccepted = confAcceptedSum / float64(stats.AcceptedCount)
	}
	if stats.CorrectedCount > 0 {
		stats.AvgConfidenceCorrected = confCorrectedSum / float64(stats.CorrectedCount)
	}

	stats.MostCorrected = topCorrections(corrections, 5)
	stats.Trend = weeklyTrend(records, time.Now().AddDate(0, 0, -trendWindowDays))

	return stats, nil
}

func topCorrections(corrections map[model.CorrectionPair]int, limit int) []model.CorrectionPair {
	pairs := make([]model.CorrectionPair, 0, len(corrections))
	for pair, count := range corrections {
		pair.Count = count
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].Predicted != pairs[j].Predicted {
			return pairs[i].Predicted < pairs[j].Predicted
		}
		return pairs[i].Actual < pairs[j].Actual
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

func weeklyTrend(records []model.FeedbackRecord, cutoff time.Time) []model.WeeklyTrendPoint {
	type weekCounts struct {
		total    int
		accepted int
	}
	weeks := make(map[int]*weekCounts)
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		_, week := r.Timestamp.ISOWeek()
		wc, ok := weeks[week]
		if !ok {
			wc = &weekCounts{}
			weeks[week] = wc
		}
		wc.total++
		if r.FeedbackType == model.FeedbackAccepted {
			wc.accepted++
		}
	}

	trend := make([]model.WeeklyTrendPoint, 0, len(weeks))
	for week, wc := range weeks {
		trend = append(trend, model.WeeklyTrendPoint{
			Week:           week,
			Total:          wc.total,
			Accepted:       wc.accepted,
			AcceptanceRate: float64(wc.accepted) / float64(wc.total) * 100,
		})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Week < trend[j].Week })
	return trend
}

// History returns up to limit records, most recent first.
func (l *Ledger) History(_ context.Context, userID string, limit int) ([]model.FeedbackRecord, error) {
	records, err := l.load(userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ExtractTrainingData converts ledger entries into labeled training records:
// entries with an actual category and confidence at or above the threshold,
// labeled with the actual category the user settled on.
func (l *Ledger) ExtractTrainingData(_ context.Context, userID string, minConfidence float64) ([]model.ExpenseRecord, error) {
	records, err := l.load(userID)
	if err != nil {
		return nil, err
	}

	var training []model.ExpenseRecord
	for _, r := range records {
		if r.ActualCategory == "" || r.Confidence < minConfidence {
			continue
		}
		training = append(training, model.ExpenseRecord{
			Merchant: r.Merchant,
			Amount:   r.Amount,
			Date:     r.Date,
			Notes:    r.Notes,
			Category: r.ActualCategory,
		})
	}

	slog.Info("Extracted training data from feedback",
		"user_id", userID,
		"samples", len(training))
	return training, nil
}

// Clear removes a user's entire ledger. This is a test/reset operation; it is
// the only way feedback is ever deleted.
func (l *Ledger) Clear(_ context.Context, userID string) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(l.userFile(userID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear feedback: %w", err)
	}
	slog.Info("Cleared feedback", "user_id", userID)
	return nil
}

// ListUsers returns every user with a feedback ledger on disk, sorted.
func (l *Ledger) ListUsers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var users []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.baseDir, entry.Name(), ledgerFileName)); err == nil {
			users = append(users, entry.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}
