package playback

import (
	"math"
	"sync"
	"time"
)

// Handle is the clock of one loaded recording. All methods are safe for
// concurrent use and become no-ops once the handle is released.
type Handle struct {
	adapter  *Adapter
	url      string
	media    Media
	duration float64
	onUpdate func(Update)

	mu       sync.Mutex
	pos      float64   // position at anchor
	anchor   time.Time // wall time pos was taken, meaningful while playing
	playing  bool
	finished bool // reached the end by playing, not by seeking
	released bool
	run      chan struct{} // closed to stop the current ticker goroutine
}

func (h *Handle) URL() string       { return h.url }
func (h *Handle) Duration() float64 { return h.duration }

func (h *Handle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

func (h *Handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Play starts the clock. It reports whether the handle is playing afterwards.
// Playing after the recording finished restarts at zero; a seek to the end
// stays there.
func (h *Handle) Play() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.duration <= 0 {
		return false
	}
	if h.playing {
		return true
	}
	if h.finished {
		h.pos = 0
		h.finished = false
	}
	h.anchor = h.adapter.now()
	h.playing = true
	h.run = make(chan struct{})
	go h.loop(h.run)
	return true
}

func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing {
		return
	}
	h.pos = h.positionLocked()
	h.stopLocked()
}

// SeekTo moves to fraction of the duration, clamped to [0,1].
func (h *Handle) SeekTo(fraction float64) {
	switch {
	case fraction < 0 || math.IsNaN(fraction):
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.pos = fraction * h.duration
	h.anchor = h.adapter.now()
	h.finished = false
}

// Release stops playback and closes the media. Idempotent. It does not wait
// for the ticker goroutine; a tick racing with Release is dropped.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	if h.playing {
		h.pos = h.positionLocked()
		h.stopLocked()
	}
	h.mu.Unlock()

	if err := h.media.Close(); err != nil {
		h.adapter.log.WithError(err).WithField("url", h.url).Warn("close audio")
	}
	h.adapter.forget(h)
}

func (h *Handle) positionLocked() float64 {
	if !h.playing {
		return h.pos
	}
	p := h.pos + h.adapter.now().Sub(h.anchor).Seconds()
	if p > h.duration {
		p = h.duration
	}
	return p
}

func (h *Handle) stopLocked() {
	h.playing = false
	if h.run != nil {
		close(h.run)
		h.run = nil
	}
}

func (h *Handle) loop(run chan struct{}) {
	t := time.NewTicker(h.adapter.tick)
	defer t.Stop()
	for {
		select {
		case <-run:
			return
		case <-t.C:
			if !h.tick(run) {
				return
			}
		}
	}
}

// tick advances the clock for the run it belongs to and emits an update.
// It reports whether that run is still playing.
func (h *Handle) tick(run chan struct{}) bool {
	h.mu.Lock()
	if h.released || h.run != run {
		h.mu.Unlock()
		return false
	}
	u := Update{Handle: h, Position: h.positionLocked()}
	if u.Position >= h.duration {
		h.pos = h.duration
		h.finished = true
		h.stopLocked()
		u.Position = h.duration
		u.Finished = true
	}
	h.mu.Unlock()

	if h.onUpdate != nil {
		h.onUpdate(u)
	}
	return !u.Finished
}
