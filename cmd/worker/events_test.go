package main

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/cache"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

type MockJobSource struct{ mock.Mock }

func (m *MockJobSource) GetJob(ctx context.Context, jobID string) (*models.DubJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DubJob), args.Error(1)
}

type MockTrackCache struct{ mock.Mock }

func (m *MockTrackCache) Invalidate(ctx context.Context, sectionID string) error {
	return m.Called(ctx, sectionID).Error(0)
}

type MockPollTracker struct{ mock.Mock }

func (m *MockPollTracker) Track(jobID string) {
	m.Called(jobID)
}

type MockDeliverer struct{ mock.Mock }

func (m *MockDeliverer) Deliver(ctx context.Context, url string, event *models.DubJobEvent) error {
	return m.Called(ctx, url, event).Error(0)
}

type handlerMocks struct {
	jobs     *MockJobSource
	tracks   *MockTrackCache
	poller   *MockPollTracker
	delivery *MockDeliverer
}

func newTestHandler() (*eventHandler, *handlerMocks) {
	m := &handlerMocks{
		jobs:     new(MockJobSource),
		tracks:   new(MockTrackCache),
		poller:   new(MockPollTracker),
		delivery: new(MockDeliverer),
	}
	return &eventHandler{
		jobs:     m.jobs,
		tracks:   m.tracks,
		poller:   m.poller,
		delivery: m.delivery,
		timeout:  time.Second,
		logger:   logging.NewNopLogger(),
	}, m
}

func event(to models.DubJobState) *models.DubJobEvent {
	return &models.DubJobEvent{
		Event:     models.EventForState(to),
		JobID:     "job-1",
		SectionID: "sec-1",
		Language:  "ja",
		To:        to,
	}
}

func TestHandleSubmittedTracksJob(t *testing.T) {
	h, m := newTestHandler()
	m.poller.On("Track", "job-1").Return()

	require.NoError(t, h.handle(context.Background(), event(models.DubJobSubmitted)))

	m.poller.AssertExpectations(t)
	m.jobs.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
}

func TestHandleReadyInvalidatesAndDelivers(t *testing.T) {
	h, m := newTestHandler()
	ev := event(models.DubJobReady)

	m.tracks.On("Invalidate", mock.Anything, "sec-1").Return(nil)
	m.jobs.On("GetJob", mock.Anything, "job-1").Return(&models.DubJob{
		ID:      "job-1",
		Request: models.DubRequest{CallbackURL: "https://lms.example.com/hook"},
	}, nil)
	m.delivery.On("Deliver", mock.Anything, "https://lms.example.com/hook", ev).Return(nil)

	require.NoError(t, h.handle(context.Background(), ev))

	m.tracks.AssertExpectations(t)
	m.delivery.AssertExpectations(t)
}

func TestHandleFailedWithoutCallback(t *testing.T) {
	h, m := newTestHandler()
	m.jobs.On("GetJob", mock.Anything, "job-1").Return(&models.DubJob{ID: "job-1"}, nil)

	require.NoError(t, h.handle(context.Background(), event(models.DubJobFailed)))

	m.tracks.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	m.delivery.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDeliveryFailureIsRetried(t *testing.T) {
	h, m := newTestHandler()
	m.jobs.On("GetJob", mock.Anything, "job-1").Return(&models.DubJob{
		ID:      "job-1",
		Request: models.DubRequest{CallbackURL: "https://lms.example.com/hook"},
	}, nil)
	m.delivery.On("Deliver", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("503"))

	err := h.handle(context.Background(), event(models.DubJobFailed))
	assert.Error(t, err)
}

func TestHandleInvalidateFailure(t *testing.T) {
	h, m := newTestHandler()
	m.tracks.On("Invalidate", mock.Anything, "sec-1").Return(errors.New("redis down"))

	err := h.handle(context.Background(), event(models.DubJobReady))
	assert.Error(t, err)
	m.jobs.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
}

type countingExpirer struct {
	calls int
	n     int
}

func (e *countingExpirer) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	e.calls++
	return e.n, nil
}

func TestSweepOnceHoldsLockForInterval(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := cache.NewCache(mr.Host(), port, "", 0)
	require.NoError(t, err)
	defer c.Close()

	expirer := &countingExpirer{n: 2}
	logger := logging.NewNopLogger()
	now := time.Now()

	assert.Equal(t, 2, sweepOnce(context.Background(), c, expirer, time.Minute, now, logger))
	assert.Equal(t, 0, sweepOnce(context.Background(), c, expirer, time.Minute, now, logger))
	assert.Equal(t, 1, expirer.calls)

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, 2, sweepOnce(context.Background(), c, expirer, time.Minute, now, logger))
	assert.Equal(t, 2, expirer.calls)
}
