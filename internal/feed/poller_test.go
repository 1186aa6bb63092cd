package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-review-go/internal/logger"
	"call-review-go/internal/types"
)

type step struct {
	resp types.EscalationsResponse
	err  error
}

// scriptedSource answers ListEscalations from a script, repeating the last step.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int32
}

func (s *scriptedSource) ListEscalations(_ context.Context) (types.EscalationsResponse, error) {
	n := atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := int(n) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i].resp, s.steps[i].err
}

func ok(calls ...types.FlaggedCall) step {
	return step{resp: types.EscalationsResponse{Status: types.StatusSuccess, FlaggedCalls: calls}}
}

func call(id string, quality float64, devs ...types.Deviation) types.FlaggedCall {
	return types.FlaggedCall{
		CallID:          id,
		DurationSeconds: 60,
		Scores:          types.Scores{OverallQuality: quality, SOPCompliance: 0.5},
		SOPDeviations:   devs,
	}
}

func TestRefresh_FailureKeepsPreviousSnapshot(t *testing.T) {
	src := &scriptedSource{steps: []step{
		ok(call("A", 0.5), call("B", 0.4, types.Deviation{StartTime: 10, EndTime: 15, Severity: 0.8})),
		{err: errors.New("connection refused")},
		ok(call("B", 0.3), call("C", 0.9)),
	}}
	p := NewPoller(src, time.Minute, logger.Discard())
	ctx := context.Background()

	require.NoError(t, p.Refresh(ctx))
	first := p.Snapshot()
	assert.Equal(t, 2, first.Len())

	err := p.Refresh(ctx)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, first, p.Snapshot())

	require.NoError(t, p.Refresh(ctx))
	third := p.Snapshot()
	_, hasA := third.Lookup("A")
	assert.False(t, hasA)
	b, hasB := third.Lookup("B")
	require.True(t, hasB)
	assert.Equal(t, 0.3, b.Scores.OverallQuality)
	_, hasC := third.Lookup("C")
	assert.True(t, hasC)
}

func TestRefresh_NonSuccessStatusIsFailure(t *testing.T) {
	src := &scriptedSource{steps: []step{
		ok(call("A", 0.5)),
		{resp: types.EscalationsResponse{Status: "error"}},
	}}
	p := NewPoller(src, time.Minute, logger.Discard())

	var notified int
	p.Subscribe(func(Snapshot) { notified++ })

	require.NoError(t, p.Refresh(context.Background()))
	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, p.Snapshot().Len())
}

func TestRefresh_DropsInvalidAndDuplicateCalls(t *testing.T) {
	bad := call("X", 0.5, types.Deviation{StartTime: 50, EndTime: 70, Severity: 0.5})
	src := &scriptedSource{steps: []step{ok(call("A", 0.5), bad, call("A", 0.9))}}
	p := NewPoller(src, time.Minute, logger.Discard())

	require.NoError(t, p.Refresh(context.Background()))
	snap := p.Snapshot()
	require.Equal(t, 1, snap.Len())
	a, found := p.Lookup("A")
	require.True(t, found)
	assert.Equal(t, 0.5, a.Scores.OverallQuality)
}

func TestSnapshot_LookupByIDNotPosition(t *testing.T) {
	src := &scriptedSource{steps: []step{ok(call("A", 0.1), call("B", 0.2)), ok(call("B", 0.25), call("A", 0.15))}}
	p := NewPoller(src, time.Minute, logger.Discard())

	require.NoError(t, p.Refresh(context.Background()))
	require.NoError(t, p.Refresh(context.Background()))
	b, _ := p.Lookup("B")
	assert.Equal(t, 0.25, b.Scores.OverallQuality)
	assert.Equal(t, 2, p.Snapshot().Stats().ActiveEscalations)
}

func TestStartStop_NoCallbacksAfterStop(t *testing.T) {
	src := &scriptedSource{steps: []step{ok(call("A", 0.5))}}
	p := NewPoller(src, 5*time.Millisecond, logger.Discard())

	var notified int32
	p.Subscribe(func(Snapshot) { atomic.AddInt32(&notified, 1) })

	assert.False(t, p.Loaded())
	p.Start(context.Background())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&notified) >= 3 }, time.Second, time.Millisecond)
	assert.True(t, p.Loaded())

	p.Stop()
	fetches := atomic.LoadInt32(&src.calls)
	callbacks := atomic.LoadInt32(&notified)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, fetches, atomic.LoadInt32(&src.calls))
	assert.Equal(t, callbacks, atomic.LoadInt32(&notified))

	// a stray manual refresh after Stop does not notify either
	_ = p.Refresh(context.Background())
	assert.Equal(t, callbacks, atomic.LoadInt32(&notified))
}

func TestStart_FetchesImmediately(t *testing.T) {
	src := &scriptedSource{steps: []step{ok(call("A", 0.5))}}
	p := NewPoller(src, time.Hour, logger.Discard())
	p.Start(context.Background())
	defer p.Stop()

	assert.Eventually(t, func() bool { return p.Snapshot().Len() == 1 }, time.Second, time.Millisecond)
}

func TestStart_Twice_SingleLoop(t *testing.T) {
	src := &scriptedSource{steps: []step{ok(call("A", 0.5))}}
	p := NewPoller(src, 5*time.Millisecond, logger.Discard())

	p.Start(context.Background())
	p.Start(context.Background())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	fetches := atomic.LoadInt32(&src.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, fetches, atomic.LoadInt32(&src.calls))
}
