package retrain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendworth/sift/internal/model"
)

type listingLedger struct {
	fakeLedger
	users []string
}

func (l *listingLedger) ListUsers(context.Context) ([]string, error) {
	return l.users, nil
}

func TestNewScheduler(t *testing.T) {
	t.Run("empty spec disables", func(t *testing.T) {
		s, err := NewScheduler("", nil, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, s.schedule)
	})

	t.Run("valid spec", func(t *testing.T) {
		s, err := NewScheduler("0 3 * * *", nil, nil, nil)
		require.NoError(t, err)
		assert.NotNil(t, s.schedule)
	})

	t.Run("invalid spec", func(t *testing.T) {
		_, err := NewScheduler("not a cron line", nil, nil, nil)
		assert.Error(t, err)
	})
}

func TestEvaluateAll_SubmitsForTriggeredUsers(t *testing.T) {
	ledger := &listingLedger{
		fakeLedger: fakeLedger{
			stats: &model.FeedbackStats{
				TotalPredictions: 50,
				AcceptedCount:    45,
				AcceptanceRate:   90.0,
			},
			training: trainingSet(10),
		},
		users: []string{"user-1"},
	}
	cache := newFakeCache()
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -8)
	engine := NewEngine(ledger, cache)
	runner := NewRunner(ledger, cache, &fakeStore{})
	s, err := NewScheduler("0 3 * * *", engine, runner, ledger)
	require.NoError(t, err)

	s.EvaluateAll(context.Background())
	runner.Wait()

	// The scheduled trigger fired and the job ran to completion.
	_, err = runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()
}

func TestEvaluateAll_SkipsQuietUsers(t *testing.T) {
	ledger := &listingLedger{
		fakeLedger: fakeLedger{
			stats: &model.FeedbackStats{TotalPredictions: 5, AcceptedCount: 5, AcceptanceRate: 100.0},
		},
		users: []string{"user-1"},
	}
	engine := NewEngine(ledger, newFakeCache())
	runner := NewRunner(ledger, newFakeCache(), &fakeStore{})
	s, err := NewScheduler("0 3 * * *", engine, runner, ledger)
	require.NoError(t, err)

	s.EvaluateAll(context.Background())
	runner.Wait()

	// No job was submitted, so a fresh submit succeeds immediately.
	_, err = runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()
}
