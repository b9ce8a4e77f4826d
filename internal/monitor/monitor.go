// Package monitor tracks prediction outcomes over time and derives rolling
// accuracy, confidence calibration, and improvement trends from them.
package monitor

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

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

const improvementMinSamples = 20

// Monitor appends prediction outcomes to a per-user JSONL log and computes
// snapshots on demand. The log is independent of the feedback ledger even
// though both are populated from the same feedback events.
type Monitor struct {
	locks   map[string]*sync.Mutex
	baseDir string
	mu      sync.Mutex
}

var _ service.OutcomeLog = (*Monitor)(nil)

// NewMonitor creates a monitor rooted at baseDir.
func NewMonitor(baseDir string) (*Monitor, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: metrics directory", common.ErrMissingConfig)
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return &Monitor{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (m *Monitor) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

func (m *Monitor) userFile(userID string) string {
	return filepath.Join(m.baseDir, userID, "outcomes.jsonl")
}

// Record appends one outcome tuple. Failures propagate; a dropped outcome
// skews every snapshot derived later.
func (m *Monitor) Record(_ context.Context, outcome model.PredictionOutcome) error {
	if outcome.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}
	outcome.HasFeedback = outcome.ActualCategory != ""

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	lock := m.userLock(outcome.UserID)
	lock.Lock()
	defer lock.Unlock()

	path := m.userFile(outcome.UserID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create user metrics directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open outcome log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	return f.Sync()
}

func (m *Monitor) load(userID string) ([]model.PredictionOutcome, error) {
	f, err := os.Open(m.userFile(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open outcome log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var outcomes []model.PredictionOutcome
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var o model.PredictionOutcome
		if err := json.Unmarshal(line, &o); err != nil {
			return nil, fmt.Errorf("corrupt outcome record: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outcome log: %w", err)
	}
	return outcomes, nil
}

// AccuracyMetrics computes the snapshot over the trailing window. Lack of
// data yields an explicit empty snapshot, never an error.
func (m *Monitor) AccuracyMetrics(_ context.Context, userID string, windowDays int) (*model.AccuracySnapshot, error) {
	outcomes, err := m.load(userID)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -windowDays)
	var withFeedback []model.PredictionOutcome
	for _, o := range outcomes {
		if o.Timestamp.Before(cutoff) {
			continue
		}
		if o.ActualCategory == "" {
			continue
		}
		withFeedback = append(withFeedback, o)
	}

	snapshot := emptySnapshot(userID, windowDays)
	if len(withFeedback) == 0 {
		return snapshot, nil
	}

	correct := 0
	perCategory := make(map[string]*model.CategoryAccuracy)
	for _, o := range withFeedback {
		ca, ok := perCategory[o.ActualCategory]
		if !ok {
			ca = &model.CategoryAccuracy{}
			perCategory[o.ActualCategory] = ca
		}
		ca.Total++
		if o.IsCorrect {
			correct++
			ca.Correct++
		}
	}
	for cat, ca := range perCategory {
		ca.Accuracy = float64(ca.Correct) / float64(ca.Total)
		snapshot.CategoryAccuracy[cat] = *ca
	}

	snapshot.TotalPredictions = len(withFeedback)
	snapshot.CorrectPredictions = correct
	snapshot.OverallAccuracy = float64(correct) / float64(len(withFeedback))
	snapshot.Calibration = calibrationBins(withFeedback)
	snapshot.Trend = weeklyAccuracy(withFeedback)
	snapshot.VersionComparison = versionComparison(withFeedback)
	snapshot.LastUpdated = time.Now()

	return snapshot, nil
}

func emptySnapshot(userID string, windowDays int) *model.AccuracySnapshot {
	return &model.AccuracySnapshot{
		UserID:            userID,
		PeriodDays:        windowDays,
		CategoryAccuracy:  make(map[string]model.CategoryAccuracy),
		Calibration:       []model.CalibrationBin{},
		Trend:             []model.WeeklyAccuracyPoint{},
		VersionComparison: []model.VersionAccuracy{},
		LastUpdated:       time.Now(),
	}
}

// calibrationBins compares stated confidence against realized accuracy for
// the [0,0.6), [0.6,0.8), [0.8,1.0] ranges. Empty bins are omitted.
func calibrationBins(outcomes []model.PredictionOutcome) []model.CalibrationBin {
	bounds := []struct {
		label  string
		lo, hi float64
		inclHi bool
	}{
		{"Low (0-60%)", 0.0, 0.6, false},
		{"Medium (60-80%)", 0.6, 0.8, false},
		{"High (80-100%)", 0.8, 1.0, true},
	}

	bins := make([]model.CalibrationBin, 0, len(bounds))
	for _, b := range bounds {
		var confSum float64
		count, correct := 0, 0
		for _, o := range outcomes {
			in := o.Confidence >= b.lo && (o.Confidence < b.hi || (b.inclHi && o.Confidence <= b.hi))
			if !in {
				continue
			}
			count++
			confSum += o.Confidence
			if o.IsCorrect {
				correct++
			}
		}
		if count == 0 {
			continue
		}
		avgConf := confSum / float64(count)
		accuracy := float64(correct) / float64(count)
		calibrationError := avgConf - accuracy
		if calibrationError < 0 {
			calibrationError = -calibrationError
		}
		bins = append(bins, model.CalibrationBin{
			Range:            b.label,
			AvgConfidence:    avgConf,
			ActualAccuracy:   accuracy,
			Count:            count,
			CalibrationError: calibrationError,
		})
	}
	return bins
}

func weeklyAccuracy(outcomes []model.PredictionOutcome) []model.WeeklyAccuracyPoint {
	type weekCounts struct {
		total   int
		correct int
	}
	weeks := make(map[int]*weekCounts)
	for _, o := range outcomes {
		_, week := o.Timestamp.ISOWeek()
		wc, ok := weeks[week]
		if !ok {
			wc = &weekCounts{}
			weeks[week] = wc
		}
		wc.total++
		if o.IsCorrect {
			wc.correct++
		}
	}

	trend := make([]model.WeeklyAccuracyPoint, 0, len(weeks))
	for week, wc := range weeks {
		trend = append(trend, model.WeeklyAccuracyPoint{
			Week:     week,
			Accuracy: float64(wc.correct) / float64(wc.total),
			Total:    wc.total,
			Correct:  wc.correct,
		})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Week < trend[j].Week })
	return trend
}

func versionComparison(outcomes []model.PredictionOutcome) []model.VersionAccuracy {
	type versionCounts struct {
		total   int
		correct int
	}
	versions := make(map[string]*versionCounts)
	for _, o := range outcomes {
		vc, ok := versions[o.ModelVersion]
		if !ok {
			vc = &versionCounts{}
			versions[o.ModelVersion] = vc
		}
		vc.total++
		if o.IsCorrect {
			vc.correct++
		}
	}

	comparison := make([]model.VersionAccuracy, 0, len(versions))
	for version, vc := range versions {
		comparison = append(comparison, model.VersionAccuracy{
			ModelVersion: version,
			Accuracy:     float64(vc.correct) / float64(vc.total),
			Total:        vc.total,
			Correct:      vc.correct,
		})
	}
	sort.Slice(comparison, func(i, j int) bool {
		return comparison[i].ModelVersion > comparison[j].ModelVersion
	})
	return comparison
}

// ImprovementMetrics splits the feedback-bearing history chronologically in
// half and compares early accuracy against recent accuracy. Requires at
// least 20 qualifying records.
func (m *Monitor) ImprovementMetrics(_ context.Context, userID string) (*model.ImprovementReport, error) {
	outcomes, err := m.load(userID)
	if err != nil {
		return nil, err
	}

	var withFeedback []model.PredictionOutcome
	for _, o := range outcomes {
		if o.ActualCategory != "" {
			withFeedback = append(withFeedback, o)
		}
	}

	if len(withFeedback) < improvementMinSamples {
		return &model.ImprovementReport{
			HasImprovement:   false,
			Message:          "Insufficient data for trend analysis",
			SamplesNeeded:    improvementMinSamples,
			SamplesAvailable: len(withFeedback),
		}, nil
	}

	sort.SliceStable(withFeedback, func(i, j int) bool {
		return withFeedback[i].Timestamp.Before(withFeedback[j].Timestamp)
	})

	mid := len(withFeedback) / 2
	early, recent := withFeedback[:mid], withFeedback[mid:]
	earlyAccuracy := accuracyOf(early)
	recentAccuracy := accuracyOf(recent)
	improvement := recentAccuracy - earlyAccuracy

	report := &model.ImprovementReport{
		HasImprovement:   improvement > 0.05,
		EarlyAccuracy:    earlyAccuracy,
		RecentAccuracy:   recentAccuracy,
		Improvement:      improvement,
		ImprovementPct:   improvement * 100,
		EarlySamples:     len(early),
		RecentSamples:    len(recent),
		SamplesAvailable: len(withFeedback),
	}
	if report.HasImprovement {
		report.Message = fmt.Sprintf("Model improved by %+.1f%%", report.ImprovementPct)
	} else {
		report.Message = "Model performance stable"
	}

	slog.Debug("Computed improvement metrics",
		"user_id", userID,
		"improvement", improvement)
	return report, nil
}

func accuracyOf(outcomes []model.PredictionOutcome) float64 {
	if len(outcomes) == 0 {
		return 0.0
	}
	correct := 0
	for _, o := range outcomes {
		if o.IsCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(outcomes))
}
