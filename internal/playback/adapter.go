// Package playback keeps the clock of one loaded call recording.
//
// Decoding is delegated to a Loader; the Handle only tracks position,
// duration and play state, and emits position updates while playing.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"call-review-go/internal/metrics"
)

// Media is a loaded audio resource.
type Media interface {
	// Duration in seconds, or 0 if the loader could not tell.
	Duration() float64
	Close() error
}

type Loader interface {
	Load(ctx context.Context, url string) (Media, error)
}

// LoadError wraps any network or decoding failure while loading audio.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load audio %s: %v", e.URL, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Update is emitted from the ticker goroutine while a handle plays, and once
// more when it finishes.
type Update struct {
	Handle   *Handle
	Position float64
	Finished bool
}

// Adapter creates handles and owns at most one live handle at a time.
type Adapter struct {
	loader Loader
	tick   time.Duration
	now    func() time.Time
	log    *logrus.Entry

	mu   sync.Mutex
	live *Handle
}

func NewAdapter(loader Loader, tick time.Duration, log *logrus.Entry) *Adapter {
	return &Adapter{
		loader: loader,
		tick:   tick,
		now:    time.Now,
		log:    log.WithField("component", "playback"),
	}
}

// Live reports how many handles currently hold a resource (0 or 1).
func (a *Adapter) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live == nil {
		return 0
	}
	return 1
}

// Load releases the live handle, if any, then loads url. fallbackDuration is
// used when the loader cannot report a duration. If ctx is cancelled before
// the handle is installed, the media is closed and ctx.Err is returned.
func (a *Adapter) Load(ctx context.Context, url string, fallbackDuration float64, onUpdate func(Update)) (*Handle, error) {
	a.releaseLive()

	media, err := a.loader.Load(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.AudioLoadsTotal.WithLabelValues("cancelled").Inc()
			return nil, ctxErr
		}
		metrics.AudioLoadsTotal.WithLabelValues("error").Inc()
		var le *LoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &LoadError{URL: url, Err: err}
	}

	dur := media.Duration()
	if dur <= 0 {
		dur = fallbackDuration
	}
	h := &Handle{
		adapter:  a,
		url:      url,
		media:    media,
		duration: dur,
		onUpdate: onUpdate,
	}

	a.mu.Lock()
	if err := ctx.Err(); err != nil {
		a.mu.Unlock()
		_ = media.Close()
		metrics.AudioLoadsTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}
	prev := a.live
	a.live = h
	a.mu.Unlock()
	if prev != nil {
		prev.Release()
	}

	metrics.AudioHandlesLive.Set(1)
	metrics.AudioLoadsTotal.WithLabelValues("ready").Inc()
	a.log.WithFields(logrus.Fields{"url": url, "duration": dur}).Debug("audio ready")
	return h, nil
}

func (a *Adapter) releaseLive() {
	a.mu.Lock()
	h := a.live
	a.mu.Unlock()
	if h != nil {
		h.Release()
	}
}

func (a *Adapter) forget(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live == h {
		a.live = nil
		metrics.AudioHandlesLive.Set(0)
	}
}
