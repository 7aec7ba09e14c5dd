package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/queue"
	"github.com/revaspay/onboarding/internal/services/onboarding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, ev *onboarding.Event) (*onboarding.Result, error) {
	args := m.Called(ctx, ev)
	if res := args.Get(0); res != nil {
		return res.(*onboarding.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockStaleSyncer struct {
	mock.Mock
}

func (m *MockStaleSyncer) SyncStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

func webhookJobFor(t *testing.T, kind, body string) queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeVerificationWebhook, WebhookJobPayload{Kind: kind, Body: []byte(body)})
	require.NoError(t, err)
	return *job
}

func TestWebhookJobProcessesEvent(t *testing.T) {
	handler := new(MockEventHandler)
	handler.On("Handle", mock.Anything, mock.MatchedBy(func(ev *onboarding.Event) bool {
		return ev.Kind == onboarding.EventKindLiveness && ev.RequestID == "LD00077" && ev.Status == "LIVENESS_PASSED"
	})).Return(&onboarding.Result{
		Outcome:   onboarding.ResultResolved,
		RequestID: "LD00077",
		Status:    models.OnboardingStatusLivenessPassed,
	}, nil)

	job := NewWebhookJob(handler, nil)
	out, err := job.Process(context.Background(), webhookJobFor(t, "liveness", `{"requestId":"LD00077","status":"LIVENESS_PASSED"}`))

	require.NoError(t, err)
	assert.Equal(t, onboarding.ResultResolved, out.(map[string]interface{})["outcome"])
	handler.AssertExpectations(t)
}

func TestWebhookJobMalformedIsPermanent(t *testing.T) {
	handler := new(MockEventHandler)
	job := NewWebhookJob(handler, nil)

	_, err := job.Process(context.Background(), webhookJobFor(t, "payments", `{"requestId":"X"}`))
	assert.True(t, queue.IsPermanent(err))

	_, err = job.Process(context.Background(), webhookJobFor(t, "kyc", `{"status":"APPROVED"}`))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, onboarding.ErrInvalidInput)

	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestWebhookJobStoreErrorIsRetried(t *testing.T) {
	handler := new(MockEventHandler)
	handler.On("Handle", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	job := NewWebhookJob(handler, nil)
	_, err := job.Process(context.Background(), webhookJobFor(t, "kyb", `{"requestId":"KYB001","status":"APPROVED"}`))

	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
}

func TestWebhookJobEnqueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker()
	job := NewWebhookJob(new(MockEventHandler), queue.New(broker)).WithMaxRetries(2)

	_, err := job.Enqueue(ctx, onboarding.EventKindCOD, []byte(`{"requestId":"COD001"}`))
	require.NoError(t, err)

	queued, err := broker.Pop(ctx, queue.JobTypeVerificationWebhook, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, queued)

	var payload WebhookJobPayload
	require.NoError(t, queued.Decode(&payload))
	assert.Equal(t, "cod", payload.Kind)
	assert.Equal(t, 2, queued.MaxRetries)
	assert.JSONEq(t, `{"requestId":"COD001"}`, string(payload.Body))
}

func TestStaleSweeperRunOnce(t *testing.T) {
	syncer := new(MockStaleSyncer)
	syncer.On("SyncStale", mock.Anything, 6*time.Hour, 50).Return(3, nil).Once()
	syncer.On("SyncStale", mock.Anything, 6*time.Hour, 50).Return(0, errors.New("db down")).Once()

	sweeper := NewStaleSweeper(syncer, time.Minute, 6*time.Hour, 50)

	n, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = sweeper.RunOnce(context.Background())
	assert.Error(t, err)
	syncer.AssertExpectations(t)
}
