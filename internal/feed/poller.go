// Package feed keeps the list of flagged calls fresh by polling the backend.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"call-review-go/internal/metrics"
	"call-review-go/internal/types"
)

type Source interface {
	ListEscalations(ctx context.Context) (types.EscalationsResponse, error)
}

// FetchError is a failed refresh. The previous snapshot stays in place and
// the next tick tries again.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetch escalations: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

var errStatus = errors.New("feed status is not success")

type Poller struct {
	src      Source
	interval time.Duration
	now      func() time.Time
	log      *logrus.Entry

	refreshMu sync.Mutex // one refresh applies at a time

	mu      sync.RWMutex
	snap    Snapshot
	loaded  bool
	stopped bool
	subs    []func(Snapshot)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(src Source, interval time.Duration, log *logrus.Entry) *Poller {
	return &Poller{
		src:      src,
		interval: interval,
		now:      time.Now,
		log:      log.WithField("component", "feed"),
		snap:     newSnapshot(nil, time.Time{}, time.Time{}),
	}
}

// Subscribe registers fn to receive every successfully applied snapshot.
// fn runs on the refreshing goroutine and must not call back into Refresh.
func (p *Poller) Subscribe(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Start fetches immediately and then once per interval until Stop or ctx ends.
// A poller runs at most once; later calls are ignored.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		p.log.Warn("feed poller already started")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		_ = p.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = p.Refresh(ctx)
			}
		}
	}()
	p.log.WithField("interval", p.interval.String()).Info("feed poller started")
}

// Stop cancels the timer and waits for the loop to exit. No subscriber is
// called after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	// wait out a Refresh started outside the loop
	p.refreshMu.Lock()
	p.refreshMu.Unlock()
	p.log.Info("feed poller stopped")
}

// Refresh runs one tick: fetch, validate, replace the snapshot, notify.
func (p *Poller) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	resp, err := p.src.ListEscalations(ctx)
	if err == nil && resp.Status != types.StatusSuccess {
		err = fmt.Errorf("%w: %q", errStatus, resp.Status)
	}
	if err != nil {
		p.markLoaded()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.FeedPollsTotal.WithLabelValues("error").Inc()
		p.log.WithError(err).Warn("escalation refresh failed, keeping previous snapshot")
		return &FetchError{Err: err}
	}

	calls := p.accept(resp.FlaggedCalls)
	snap := newSnapshot(calls, resp.Timestamp.Time, p.now())

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.snap = snap
	p.loaded = true
	subs := append([]func(Snapshot){}, p.subs...)
	p.mu.Unlock()

	metrics.FeedPollsTotal.WithLabelValues("success").Inc()
	metrics.FeedCalls.Set(float64(len(calls)))
	p.log.WithField("flagged_calls", len(calls)).Debug("escalations refreshed")

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// accept drops calls that break the data invariants or repeat an id.
func (p *Poller) accept(in []types.FlaggedCall) []types.FlaggedCall {
	out := make([]types.FlaggedCall, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		if err := c.Validate(); err != nil {
			metrics.DataQualityErrorsTotal.WithLabelValues("flagged_call").Inc()
			p.log.WithError(err).WithField("call_id", c.CallID).Warn("dropping invalid flagged call")
			continue
		}
		if seen[c.CallID] {
			metrics.DataQualityErrorsTotal.WithLabelValues("duplicate_call_id").Inc()
			p.log.WithField("call_id", c.CallID).Warn("dropping duplicate call id")
			continue
		}
		seen[c.CallID] = true
		out = append(out, c)
	}
	return out
}

func (p *Poller) markLoaded() {
	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Poller) Lookup(callID string) (types.FlaggedCall, bool) {
	return p.Snapshot().Lookup(callID)
}

// Loaded reports whether the first refresh attempt has finished.
func (p *Poller) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}
