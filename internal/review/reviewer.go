// Package review coordinates the single expanded call: its audio handle,
// playback state, transcript alignment and feedback draft.
package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"call-review-go/internal/align"
	"call-review-go/internal/feedback"
	"call-review-go/internal/metrics"
	"call-review-go/internal/playback"
	"call-review-go/internal/types"
)

// Lookup resolves a call id against a feed snapshot.
type Lookup interface {
	Lookup(callID string) (types.FlaggedCall, bool)
}

type DetailSource interface {
	GetCallDetail(ctx context.Context, callID string) (types.CallDetail, error)
}

type session struct {
	gen    uint64
	call   types.FlaggedCall
	state  State
	handle *playback.Handle
	cancel context.CancelFunc

	duration   float64
	position   float64
	loadErr    error
	transcript []types.TranscriptSegment
	// pinned sessions were opened from call detail, not the feed, and
	// survive feed refreshes that do not list them
	pinned bool
}

// Reviewer owns at most one session. Opening a call tears down the previous
// session, and its audio handle, before anything else happens.
type Reviewer struct {
	feed    Lookup
	adapter *playback.Adapter
	drafts  *feedback.Drafts
	detail  DetailSource
	log     *logrus.Entry

	mu        sync.Mutex
	sess      *session
	gen       uint64
	listeners []func(View)
}

func New(feed Lookup, adapter *playback.Adapter, drafts *feedback.Drafts, log *logrus.Entry) *Reviewer {
	return &Reviewer{
		feed:    feed,
		adapter: adapter,
		drafts:  drafts,
		log:     log.WithField("component", "review"),
	}
}

// WithDetail makes expanding a call also fetch its transcript.
func (r *Reviewer) WithDetail(d DetailSource) *Reviewer {
	r.detail = d
	return r
}

// OnChange registers fn to receive the current view after every change,
// including position ticks.
func (r *Reviewer) OnChange(fn func(View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Select toggles callID: selecting the expanded call collapses it, selecting
// any other call collapses the current one and expands the new one.
func (r *Reviewer) Select(callID string) (View, error) {
	r.mu.Lock()
	if r.sess != nil && r.sess.call.CallID == callID {
		r.collapseLocked("toggled")
		r.mu.Unlock()
		return r.changed(), nil
	}
	call, ok := r.feed.Lookup(callID)
	if !ok {
		r.mu.Unlock()
		return r.View(), fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	r.openLocked(call, nil, false)
	r.mu.Unlock()
	return r.changed(), nil
}

// OpenDetail opens a call that came from a detail lookup (for example an
// agent's worst call) rather than the feed. Its transcript is used as is.
func (r *Reviewer) OpenDetail(detail types.CallDetail) View {
	r.mu.Lock()
	r.openLocked(detail.FlaggedCall, detail.Transcript, true)
	r.mu.Unlock()
	return r.changed()
}

func (r *Reviewer) openLocked(call types.FlaggedCall, transcript []types.TranscriptSegment, pinned bool) {
	if r.sess != nil {
		r.collapseLocked("replaced")
	}
	r.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:        r.gen,
		call:       call,
		state:      Collapsed,
		cancel:     cancel,
		duration:   call.DurationSeconds,
		transcript: transcript,
		pinned:     pinned,
	}
	r.sess = s
	r.setState(s, Expanding)
	r.drafts.Open(call)
	if transcript != nil {
		r.checkTranscript(call.CallID, transcript)
	}

	go r.load(ctx, s.gen, call)
	if r.detail != nil && transcript == nil {
		go r.fetchTranscript(ctx, s.gen, call.CallID)
	}
}

func (r *Reviewer) load(ctx context.Context, gen uint64, call types.FlaggedCall) {
	h, err := r.adapter.Load(ctx, call.AudioURL, call.DurationSeconds, r.onPosition)

	r.mu.Lock()
	s := r.sess
	if s == nil || s.gen != gen {
		r.mu.Unlock()
		if h != nil {
			h.Release()
		}
		return
	}
	if err != nil {
		s.loadErr = err
		r.setState(s, Error)
		r.log.WithError(err).WithField("call_id", call.CallID).Warn("audio load failed, controls disabled")
	} else {
		s.handle = h
		s.duration = h.Duration()
		r.setState(s, Ready)
	}
	r.mu.Unlock()
	r.changed()
}

func (r *Reviewer) fetchTranscript(ctx context.Context, gen uint64, callID string) {
	detail, err := r.detail.GetCallDetail(ctx, callID)
	if err != nil {
		if ctx.Err() == nil {
			r.log.WithError(err).WithField("call_id", callID).Warn("call detail unavailable, transcript hidden")
		}
		return
	}
	r.checkTranscript(callID, detail.Transcript)

	r.mu.Lock()
	s := r.sess
	if s == nil || s.gen != gen {
		r.mu.Unlock()
		return
	}
	s.transcript = detail.Transcript
	r.mu.Unlock()
	r.changed()
}

// checkTranscript reports overlapping segments. They are still shown and
// the aligner resolves overlaps by first match.
func (r *Reviewer) checkTranscript(callID string, segs []types.TranscriptSegment) {
	if err := align.ValidateSegments(segs); err != nil {
		metrics.DataQualityErrorsTotal.WithLabelValues("transcript_overlap").Inc()
		r.log.WithError(err).WithField("call_id", callID).Warn("transcript segments overlap")
	}
}

// Collapse closes the expanded call. Collapsing when nothing is open is a no-op.
func (r *Reviewer) Collapse() View {
	r.mu.Lock()
	if r.sess == nil {
		r.mu.Unlock()
		return r.View()
	}
	r.collapseLocked("collapsed")
	r.mu.Unlock()
	return r.changed()
}

func (r *Reviewer) collapseLocked(reason string) {
	s := r.sess
	s.cancel()
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	r.drafts.Discard(s.call.CallID)
	r.sess = nil
	metrics.SessionTransitionsTotal.WithLabelValues(string(Collapsed)).Inc()
	r.log.WithFields(logrus.Fields{"call_id": s.call.CallID, "reason": reason}).Info("review session closed")
}

func (r *Reviewer) Play() (View, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil {
		r.mu.Unlock()
		return r.View(), ErrNoSession
	}
	if s.state != Ready && s.state != Paused {
		r.mu.Unlock()
		return r.View(), nil
	}
	if s.handle.Play() {
		r.setState(s, Playing)
	}
	r.mu.Unlock()
	return r.changed(), nil
}

func (r *Reviewer) Pause() (View, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil {
		r.mu.Unlock()
		return r.View(), ErrNoSession
	}
	if s.state != Playing {
		r.mu.Unlock()
		return r.View(), nil
	}
	s.handle.Pause()
	s.position = s.handle.Position()
	r.setState(s, Paused)
	r.mu.Unlock()
	return r.changed(), nil
}

func (r *Reviewer) TogglePlay() (View, error) {
	r.mu.Lock()
	playing := r.sess != nil && r.sess.state == Playing
	r.mu.Unlock()
	if playing {
		return r.Pause()
	}
	return r.Play()
}

// SeekToDeviation jumps to the start of deviation index and makes sure the
// call is audible from there.
func (r *Reviewer) SeekToDeviation(index int) (View, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil {
		r.mu.Unlock()
		return r.View(), ErrNoSession
	}
	if index < 0 || index >= len(s.call.SOPDeviations) {
		r.mu.Unlock()
		return r.View(), fmt.Errorf("%w: %d", ErrNoDeviation, index)
	}
	if !s.state.controllable() || s.duration <= 0 {
		r.mu.Unlock()
		return r.View(), nil
	}

	wasPlaying := s.state == Playing
	r.setState(s, Seeking)
	s.handle.SeekTo(s.call.SOPDeviations[index].StartTime / s.duration)
	s.position = s.handle.Position()
	switch {
	case wasPlaying || s.handle.IsPlaying():
		r.setState(s, Playing)
	case s.handle.Play():
		r.setState(s, Playing)
	default:
		r.setState(s, Paused)
	}
	r.mu.Unlock()
	return r.changed(), nil
}

// Seek moves to fraction of the duration without changing play state.
func (r *Reviewer) Seek(fraction float64) (View, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil {
		r.mu.Unlock()
		return r.View(), ErrNoSession
	}
	if !s.state.controllable() {
		r.mu.Unlock()
		return r.View(), nil
	}
	s.handle.SeekTo(fraction)
	s.position = s.handle.Position()
	r.mu.Unlock()
	return r.changed(), nil
}

// onPosition applies ticks only from the handle the open session owns.
func (r *Reviewer) onPosition(u playback.Update) {
	r.mu.Lock()
	s := r.sess
	if s == nil || s.handle != u.Handle {
		r.mu.Unlock()
		return
	}
	s.position = u.Position
	if u.Finished && s.state == Playing {
		r.setState(s, Paused)
	}
	r.mu.Unlock()
	r.changed()
}

// SyncFeed updates the open session's backing call from a fresh snapshot.
// The session itself is untouched unless its call left the feed, in which
// case it is collapsed and its draft abandoned.
func (r *Reviewer) SyncFeed(snap Lookup) {
	r.mu.Lock()
	s := r.sess
	if s == nil || s.pinned {
		r.mu.Unlock()
		return
	}
	call, ok := snap.Lookup(s.call.CallID)
	if !ok {
		r.collapseLocked("left feed")
		r.mu.Unlock()
		r.changed()
		return
	}
	s.call = call
	r.mu.Unlock()
}

// Current returns the expanded call, if any.
func (r *Reviewer) Current() (types.FlaggedCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return types.FlaggedCall{}, false
	}
	return r.sess.call, true
}

func (r *Reviewer) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Reviewer) viewLocked() View {
	s := r.sess
	if s == nil {
		return View{State: Collapsed, AudioLoadState: AudioIdle, CurrentDeviation: -1,
			PositionLabel: align.FormatTimestamp(0), DurationLabel: align.FormatTimestamp(0)}
	}
	pos := s.position
	if s.handle != nil {
		pos = s.handle.Position()
	}
	call := s.call
	v := View{
		CallID:           call.CallID,
		State:            s.state,
		AudioLoadState:   s.state.audio(),
		IsPlaying:        s.state == Playing,
		Position:         pos,
		Duration:         s.duration,
		PositionLabel:    align.FormatTimestamp(pos),
		DurationLabel:    align.FormatTimestamp(s.duration),
		CurrentDeviation: -1,
		Transcript:       s.transcript,
		Call:             &call,
	}
	if i, ok := align.CurrentDeviation(pos, call.SOPDeviations); ok {
		v.CurrentDeviation = i
	}
	if seg, ok := align.CurrentSegment(pos, s.transcript); ok {
		v.CurrentSegment = &seg
	}
	if s.state == Error {
		v.AudioError = s.loadErr.Error()
		v.FallbackAudioURL = call.AudioURL
	}
	if d, ok := r.drafts.Get(call.CallID); ok {
		v.Draft = &d
	}
	return v
}

func (r *Reviewer) setState(s *session, to State) {
	if s.state == to {
		return
	}
	r.log.WithFields(logrus.Fields{"call_id": s.call.CallID, "from": s.state, "to": to}).Debug("session transition")
	s.state = to
	metrics.SessionTransitionsTotal.WithLabelValues(string(to)).Inc()
}

// changed publishes the current view to listeners. Never call with mu held.
func (r *Reviewer) changed() View {
	r.mu.Lock()
	v := r.viewLocked()
	listeners := append([]func(View){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
	return v
}
