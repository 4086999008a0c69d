package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingValidator struct {
	mu    sync.Mutex
	seen  []identity.Identity
	valid map[identity.Identity]bool
}

func (v *recordingValidator) IsValid(_ context.Context, id identity.Identity) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = append(v.seen, id)
	return v.valid[id]
}

type failingJob struct{}

func (failingJob) Name() string                { return "failing" }
func (failingJob) Schedule() string            { return "@every 1h" }
func (failingJob) Run(_ context.Context) error { return errors.New("boom") }

func TestTokenSweep_ChecksBothTwinsInOrder(t *testing.T) {
	v := &recordingValidator{valid: map[identity.Identity]bool{identity.TwinA: true}}
	job := NewTokenSweep(v, "@every 15m", logging.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []identity.Identity{identity.TwinA, identity.TwinB}, v.seen)
}

func TestTokenSweep_StopsOnCancelledContext(t *testing.T) {
	v := &recordingValidator{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTokenSweep(v, "@every 15m", logging.Nop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, v.seen)
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	s := New(logging.Nop())
	v := &recordingValidator{}
	require.NoError(t, s.AddJob(NewTokenSweep(v, "@every 15m", logging.Nop())))
	require.NoError(t, s.AddJob(failingJob{}))

	res, err := s.RunNow(context.Background(), "token_sweep")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, v.seen, 2)

	res, err = s.RunNow(context.Background(), "failing")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)

	last, ok := s.LastResult("failing")
	require.True(t, ok)
	assert.Equal(t, "failing", last.JobName)

	_, err = s.RunNow(context.Background(), "missing")
	assert.Error(t, err)
}

func TestScheduler_AddJobRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := New(logging.Nop())
	v := &recordingValidator{}
	require.NoError(t, s.AddJob(NewTokenSweep(v, "@every 15m", logging.Nop())))
	assert.Error(t, s.AddJob(NewTokenSweep(v, "@every 15m", logging.Nop())))

	s2 := New(logging.Nop())
	assert.Error(t, s2.AddJob(NewTokenSweep(v, "not a schedule", logging.Nop())))
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(logging.Nop())
	require.NoError(t, s.AddJob(failingJob{}))
	s.Start()
	s.Stop()
}
