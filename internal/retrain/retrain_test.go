package retrain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/model"
)

type fakeLedger struct {
	stats    *model.FeedbackStats
	training []model.ExpenseRecord
}

func (f *fakeLedger) Append(context.Context, *model.FeedbackRecord) (string, error) {
	return "", nil
}

func (f *fakeLedger) Stats(_ context.Context, userID string) (*model.FeedbackStats, error) {
	if f.stats != nil {
		return f.stats, nil
	}
	return &model.FeedbackStats{UserID: userID}, nil
}

func (f *fakeLedger) History(context.Context, string, int) ([]model.FeedbackRecord, error) {
	return nil, nil
}

func (f *fakeLedger) ExtractTrainingData(context.Context, string, float64) ([]model.ExpenseRecord, error) {
	return f.training, nil
}

func (f *fakeLedger) Clear(context.Context, string) error { return nil }

func (f *fakeLedger) ListUsers(context.Context) ([]string, error) { return nil, nil }

type fakeCache struct {
	sets        map[string][]model.ExpenseRecord
	lastTrained map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		sets:        make(map[string][]model.ExpenseRecord),
		lastTrained: make(map[string]time.Time),
	}
}

func (f *fakeCache) LoadTrainingSet(_ context.Context, userID string) ([]model.ExpenseRecord, error) {
	return f.sets[userID], nil
}

func (f *fakeCache) SaveTrainingSet(_ context.Context, userID string, records []model.ExpenseRecord) error {
	f.sets[userID] = records
	return nil
}

func (f *fakeCache) LastTrainedAt(_ context.Context, userID string) (*time.Time, error) {
	if t, ok := f.lastTrained[userID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakeCache) SetLastTrainedAt(_ context.Context, userID string, t time.Time) error {
	f.lastTrained[userID] = t
	return nil
}

type fakeStore struct {
	saved       []model.ModelInfo
	nextVersion int
}

func (f *fakeStore) SaveArtifact(_ context.Context, info model.ModelInfo, artifact, state []byte) (int, error) {
	if len(artifact) == 0 || len(state) == 0 {
		return 0, fmt.Errorf("empty artifact or state")
	}
	f.nextVersion++
	info.Version = f.nextVersion
	f.saved = append(f.saved, info)
	return f.nextVersion, nil
}

func (f *fakeStore) LoadArtifact(context.Context, model.ArtifactID) (*model.ModelInfo, []byte, []byte, error) {
	return nil, nil, nil, common.ErrNotFound
}

func (f *fakeStore) ListVersions(context.Context, string) ([]model.ModelInfo, error) {
	return nil, nil
}

func (f *fakeStore) Promote(context.Context, string, int) error { return nil }

func trainingSet(perCategory int) []model.ExpenseRecord {
	categories := []struct {
		category string
		merchant string
	}{
		{"Food & Dining", "Corner Cafe"},
		{"Groceries", "Central Market"},
		{"Transportation", "Uber Trip"},
	}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var records []model.ExpenseRecord
	i := 0
	for _, c := range categories {
		for j := 0; j < perCategory; j++ {
			records = append(records, model.ExpenseRecord{
				Date:     base.AddDate(0, 0, i),
				Merchant: c.merchant,
				Category: c.category,
				Amount:   10 + float64(i),
			})
			i++
		}
	}
	return records
}

func TestShouldRetrain_NoTriggers(t *testing.T) {
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 10,
		AcceptedCount:    5,
		CorrectedCount:   5,
		AcceptanceRate:   50.0,
	}}, newFakeCache())

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, decision.ShouldRetrain)
	assert.Empty(t, decision.Reasons)
	assert.NotNil(t, decision.Reasons)
}

func TestShouldRetrain_LowAcceptance(t *testing.T) {
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 20,
		AcceptedCount:    13,
		CorrectedCount:   7,
		AcceptanceRate:   65.0,
	}}, newFakeCache())

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Contains(t, decision.Reasons, "Low acceptance rate: 65.0%")
}

func TestShouldRetrain_SufficientCorrections(t *testing.T) {
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 12,
		AcceptedCount:    2,
		CorrectedCount:   10,
		AcceptanceRate:   16.7,
	}}, newFakeCache())

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Contains(t, decision.Reasons, "Sufficient corrections: 10")
}

func TestShouldRetrain_Scheduled(t *testing.T) {
	cache := newFakeCache()
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -8)
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 50,
		AcceptedCount:    45,
		AcceptanceRate:   90.0,
	}}, cache)

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Contains(t, decision.Reasons, "Scheduled retraining: 8 days since last")
}

func TestShouldRetrain_RecentTrainingSuppressesSchedule(t *testing.T) {
	cache := newFakeCache()
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -2)
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 60,
		AcceptedCount:    55,
		AcceptanceRate:   91.7,
	}}, cache)

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, decision.ShouldRetrain)
	assert.Empty(t, decision.Reasons)
}

func TestShouldRetrain_InitialThreshold(t *testing.T) {
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 50,
		AcceptedCount:    45,
		AcceptanceRate:   90.0,
	}}, newFakeCache())

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Contains(t, decision.Reasons, "Initial training threshold reached")
}

func TestShouldRetrain_ReasonsAccumulate(t *testing.T) {
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 60,
		AcceptedCount:    20,
		CorrectedCount:   40,
		AcceptanceRate:   33.3,
	}}, newFakeCache())

	decision, err := engine.ShouldRetrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Len(t, decision.Reasons, 3)
}

func TestScheduleFor(t *testing.T) {
	cache := newFakeCache()
	trained := time.Now().AddDate(0, 0, -3)
	cache.lastTrained["user-1"] = trained
	engine := NewEngine(&fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 30,
		AcceptedCount:    28,
		AcceptanceRate:   93.3,
	}}, cache)

	schedule, err := engine.ScheduleFor(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", schedule.UserID)
	assert.False(t, schedule.ShouldRetrain)
	assert.Equal(t, 30, schedule.FeedbackCount)
	require.NotNil(t, schedule.LastTrainedAt)
	require.NotNil(t, schedule.NextScheduledAt)
	assert.True(t, schedule.NextScheduledAt.Equal(trained.AddDate(0, 0, 7)))
	require.NotNil(t, schedule.DaysSinceTraining)
	assert.Equal(t, 3, *schedule.DaysSinceTraining)
}

func TestScheduleFor_NeverTrained(t *testing.T) {
	engine := NewEngine(&fakeLedger{}, newFakeCache())

	schedule, err := engine.ScheduleFor(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, schedule.LastTrainedAt)
	assert.Nil(t, schedule.NextScheduledAt)
	assert.Nil(t, schedule.DaysSinceTraining)
}

func TestMergeTrainingSets(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	cached := []model.ExpenseRecord{
		{Date: date, Merchant: "Corner Cafe", Amount: 12.50, Category: "Shopping"},
		{Date: date, Merchant: "Central Market", Amount: 80, Category: "Groceries"},
	}
	fresh := []model.ExpenseRecord{
		{Date: date, Merchant: "Corner Cafe", Amount: 12.50, Category: "Food & Dining"},
		{Date: date, Merchant: "Uber Trip", Amount: 22, Category: "Transportation"},
	}

	merged := mergeTrainingSets(cached, fresh)

	require.Len(t, merged, 3)
	// The corrected label wins; first-seen position is kept.
	assert.Equal(t, "Corner Cafe", merged[0].Merchant)
	assert.Equal(t, "Food & Dining", merged[0].Category)
	assert.Equal(t, "Central Market", merged[1].Merchant)
	assert.Equal(t, "Uber Trip", merged[2].Merchant)
}

func TestMergeTrainingSets_Empty(t *testing.T) {
	assert.Empty(t, mergeTrainingSets(nil, nil))
}

func TestRetrain_InsufficientData(t *testing.T) {
	cache := newFakeCache()
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -1)
	runner := NewRunner(&fakeLedger{training: trainingSet(2)}, cache, &fakeStore{})

	result, err := runner.Retrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "insufficient training data: 6 samples")
	assert.Equal(t, 20, result.SamplesRequired)
	assert.Equal(t, 6, result.TrainSamples)
}

func TestRetrain_InitialPathRequiresMoreSamples(t *testing.T) {
	// 30 samples clear the retraining minimum but a never-trained user is
	// held to the initial-training one.
	runner := NewRunner(&fakeLedger{training: trainingSet(10)}, newFakeCache(), &fakeStore{})

	result, err := runner.Retrain(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "insufficient training data: 30 samples")
	assert.Equal(t, 50, result.SamplesRequired)
	assert.Equal(t, 30, result.TrainSamples)
}

func TestRetrain_InitialPathTrains(t *testing.T) {
	cache := newFakeCache()
	runner := NewRunner(&fakeLedger{training: trainingSet(17)}, cache, &fakeStore{})

	result, err := runner.Retrain(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "1", result.ModelVersion)
	_, trained := cache.lastTrained["user-1"]
	assert.True(t, trained)
}

func TestRetrain_FullPipeline(t *testing.T) {
	ledger := &fakeLedger{training: trainingSet(10)}
	cache := newFakeCache()
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -10)
	store := &fakeStore{}
	runner := NewRunner(ledger, cache, store)

	result, err := runner.Retrain(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "1", result.ModelVersion)
	assert.NotEmpty(t, result.Metrics)

	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Equal(t, "user-1", saved.UserID)
	assert.Equal(t, model.StageProduction, saved.Stage)
	assert.Len(t, saved.Classes, 3)
	assert.NotEmpty(t, saved.FeatureNames)
	assert.NotEmpty(t, saved.Hyperparameters)

	assert.Len(t, cache.sets["user-1"], 30)
	_, trained := cache.lastTrained["user-1"]
	assert.True(t, trained)
}

func TestRetrain_MergesWithCachedSet(t *testing.T) {
	full := trainingSet(10)
	ledger := &fakeLedger{training: full[:12]}
	cache := newFakeCache()
	cache.sets["user-1"] = full
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -10)
	runner := NewRunner(ledger, cache, &fakeStore{})

	result, err := runner.Retrain(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	// Fresh samples are duplicates of the cached head; nothing grows.
	assert.Len(t, cache.sets["user-1"], 30)
}

type blockingLedger struct {
	fakeLedger
	release chan struct{}
}

func (b *blockingLedger) ExtractTrainingData(ctx context.Context, userID string, minConfidence float64) ([]model.ExpenseRecord, error) {
	<-b.release
	return b.fakeLedger.ExtractTrainingData(ctx, userID, minConfidence)
}

func TestSubmit_RejectsConcurrentJobs(t *testing.T) {
	ledger := &blockingLedger{release: make(chan struct{})}
	runner := NewRunner(ledger, newFakeCache(), &fakeStore{})

	jobID, err := runner.Submit("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	_, err = runner.Submit("user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRetrainInFlight)

	// A different user is unaffected.
	otherID, err := runner.Submit("user-2")
	require.NoError(t, err)
	assert.NotEqual(t, jobID, otherID)

	close(ledger.release)
	runner.Wait()

	// Once the job finishes the user can submit again.
	_, err = runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()
}

func TestSubmit_RequiresUserID(t *testing.T) {
	runner := NewRunner(&fakeLedger{}, newFakeCache(), &fakeStore{})
	_, err := runner.Submit("")
	assert.Error(t, err)
}

func TestJobStatus(t *testing.T) {
	runner := NewRunner(&fakeLedger{}, newFakeCache(), &fakeStore{})

	jobID, err := runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()

	job, err := runner.JobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.State)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Success)
	assert.Contains(t, job.Error, "insufficient training data")

	_, err = runner.JobStatus("no-such-job")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestJobStatus_SucceededJob(t *testing.T) {
	cache := newFakeCache()
	cache.lastTrained["user-1"] = time.Now().AddDate(0, 0, -10)
	runner := NewRunner(&fakeLedger{training: trainingSet(10)}, cache, &fakeStore{})

	jobID, err := runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()

	job, err := runner.JobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, "1", job.Result.ModelVersion)
	assert.Empty(t, job.Error)
}

func TestTrigger_SkipsWhenNoTriggerFired(t *testing.T) {
	ledger := &fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 10,
		AcceptedCount:    10,
		AcceptanceRate:   100.0,
	}}
	cache := newFakeCache()
	decisions := NewEngine(ledger, cache)
	runner := NewRunner(ledger, cache, &fakeStore{})

	res, err := Trigger(context.Background(), decisions, runner, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, TriggerStatusSkipped, res.Status)
	assert.False(t, res.Triggered)
	assert.Empty(t, res.JobID)
	assert.NotNil(t, res.Reasons)

	// Nothing was queued, so the user is not in flight.
	_, err = runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()
}

func TestTrigger_ForceQueues(t *testing.T) {
	ledger := &fakeLedger{stats: &model.FeedbackStats{
		TotalPredictions: 10,
		AcceptedCount:    10,
		AcceptanceRate:   100.0,
	}}
	cache := newFakeCache()
	decisions := NewEngine(ledger, cache)
	runner := NewRunner(ledger, cache, &fakeStore{})

	res, err := Trigger(context.Background(), decisions, runner, "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, TriggerStatusQueued, res.Status)
	assert.True(t, res.Triggered)
	assert.NotEmpty(t, res.JobID)
	runner.Wait()
}

func TestTrigger_QueuesWhenWarranted(t *testing.T) {
	ledger := &fakeLedger{
		stats: &model.FeedbackStats{
			TotalPredictions: 50,
			AcceptedCount:    45,
			AcceptanceRate:   90.0,
		},
		training: trainingSet(17),
	}
	cache := newFakeCache()
	decisions := NewEngine(ledger, cache)
	runner := NewRunner(ledger, cache, &fakeStore{})

	res, err := Trigger(context.Background(), decisions, runner, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, TriggerStatusQueued, res.Status)
	assert.True(t, res.Triggered)
	assert.Contains(t, res.Reasons, "Initial training threshold reached")
	runner.Wait()

	job, err := runner.JobStatus(res.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.State)
}

func TestSubmit_PrunesFinishedJobs(t *testing.T) {
	runner := NewRunner(&fakeLedger{}, newFakeCache(), &fakeStore{})
	runner.SetRetention(0)

	jobID, err := runner.Submit("user-1")
	require.NoError(t, err)
	runner.Wait()

	// The next submission sweeps out expired records.
	_, err = runner.Submit("user-2")
	require.NoError(t, err)
	runner.Wait()

	_, err = runner.JobStatus(jobID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
