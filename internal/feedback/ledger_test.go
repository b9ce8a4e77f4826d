package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(t.TempDir())
	require.NoError(t, err)
	return l
}

func accepted(userID, merchant string, confidence float64, ts time.Time) *model.FeedbackRecord {
	return &model.FeedbackRecord{
		UserID:            userID,
		Merchant:          merchant,
		Amount:            25,
		PredictedCategory: "Food & Dining",
		Confidence:        confidence,
		FeedbackType:      model.FeedbackAccepted,
		Timestamp:         ts,
		Date:              ts,
	}
}

func corrected(userID, merchant, predicted, actual string, ts time.Time) *model.FeedbackRecord {
	return &model.FeedbackRecord{
		UserID:            userID,
		Merchant:          merchant,
		Amount:            40,
		PredictedCategory: predicted,
		ActualCategory:    actual,
		Confidence:        0.6,
		FeedbackType:      model.FeedbackCorrected,
		Timestamp:         ts,
		Date:              ts,
	}
}

func TestNewLedger_RequiresBaseDir(t *testing.T) {
	_, err := NewLedger("")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestAppend_DerivesAndAssignsID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := accepted("user-1", "Corner Cafe", 0.9, time.Now())
	id, err := l.Append(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.FeedbackID)
	assert.True(t, rec.IsCorrect)
	assert.Equal(t, "Food & Dining", rec.ActualCategory)

	history, err := l.History(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].FeedbackID)
}

func TestAppend_ValidationErrors(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.FeedbackRecord)
	}{
		{"missing user", func(r *model.FeedbackRecord) { r.UserID = "" }},
		{"missing merchant", func(r *model.FeedbackRecord) { r.Merchant = "" }},
		{"zero amount", func(r *model.FeedbackRecord) { r.Amount = 0 }},
		{"confidence above one", func(r *model.FeedbackRecord) { r.Confidence = 1.5 }},
		{"unknown type", func(r *model.FeedbackRecord) { r.FeedbackType = "maybe" }},
		{"correction without actual", func(r *model.FeedbackRecord) {
			r.FeedbackType = model.FeedbackCorrected
			r.ActualCategory = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := accepted("user-1", "Corner Cafe", 0.9, time.Now())
			tt.mutate(rec)
			_, err := l.Append(ctx, rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidFeedback)
		})
	}

	// Nothing should have been written.
	history, err := l.History(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStats(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, accepted("user-1", "Corner Cafe", 0.9, now))
		require.NoError(t, err)
	}
	_, err := l.Append(ctx, corrected("user-1", "Central Market", "Shopping", "Groceries", now))
	require.NoError(t, err)
	_, err = l.Append(ctx, corrected("user-1", "Central Market", "Shopping", "Groceries", now))
	require.NoError(t, err)
	_, err = l.Append(ctx, corrected("user-1", "Uber Trip", "Shopping", "Transportation", now))
	require.NoError(t, err)

	stats, err := l.Stats(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 6, stats.TotalPredictions)
	assert.Equal(t, 3, stats.AcceptedCount)
	assert.Equal(t, 3, stats.CorrectedCount)
	assert.Zero(t, stats.RejectedCount)
	assert.InDelta(t, 50.0, stats.AcceptanceRate, 1e-9)
	assert.InDelta(t, 0.9, stats.AvgConfidenceAccepted, 1e-9)
	assert.InDelta(t, 0.6, stats.AvgConfidenceCorrected, 1e-9)

	require.NotEmpty(t, stats.MostCorrected)
	top := stats.MostCorrected[0]
	assert.Equal(t, "Shopping", top.Predicted)
	assert.Equal(t, "Groceries", top.Actual)
	assert.Equal(t, 2, top.Count)

	assert.NotEmpty(t, stats.Trend)
}

func TestStats_EmptyLedger(t *testing.T) {
	l := newTestLedger(t)

	stats, err := l.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPredictions)
	assert.NotNil(t, stats.MostCorrected)
	assert.NotNil(t, stats.Trend)
}

func TestHistory_MostRecentFirstWithLimit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := accepted("user-1", "Corner Cafe", 0.9, base.AddDate(0, 0, i))
		_, err := l.Append(ctx, rec)
		require.NoError(t, err)
	}

	history, err := l.History(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
	assert.Equal(t, base.AddDate(0, 0, 4).Unix(), history[0].Timestamp.Unix())
}

func TestExtractTrainingData(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	_, err := l.Append(ctx, accepted("user-1", "Corner Cafe", 0.9, now))
	require.NoError(t, err)
	_, err = l.Append(ctx, corrected("user-1", "Central Market", "Shopping", "Groceries", now))
	require.NoError(t, err)

	rejected := accepted("user-1", "Mystery Shop", 0.3, now)
	rejected.FeedbackType = model.FeedbackRejected
	_, err = l.Append(ctx, rejected)
	require.NoError(t, err)

	t.Run("labels follow the user's final category", func(t *testing.T) {
		training, err := l.ExtractTrainingData(ctx, "user-1", 0)
		require.NoError(t, err)
		require.Len(t, training, 2)
		assert.Equal(t, "Food & Dining", training[0].Category)
		assert.Equal(t, "Groceries", training[1].Category)
	})

	t.Run("confidence threshold filters", func(t *testing.T) {
		training, err := l.ExtractTrainingData(ctx, "user-1", 0.8)
		require.NoError(t, err)
		require.Len(t, training, 1)
		assert.Equal(t, "Corner Cafe", training[0].Merchant)
	})
}

func TestClear(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, accepted("user-1", "Corner Cafe", 0.9, time.Now()))
	require.NoError(t, err)

	require.NoError(t, l.Clear(ctx, "user-1"))

	history, err := l.History(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	// Clearing an absent ledger is not an error.
	assert.NoError(t, l.Clear(ctx, "user-1"))
}

func TestListUsers(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	users, err := l.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = l.Append(ctx, accepted("zoe", "Corner Cafe", 0.9, time.Now()))
	require.NoError(t, err)
	_, err = l.Append(ctx, accepted("adam", "Corner Cafe", 0.9, time.Now()))
	require.NoError(t, err)

	users, err = l.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"adam", "zoe"}, users)
}
