// Package feedback captures coaching remarks per call and submits them.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-review-go/internal/metrics"
	"call-review-go/internal/types"
)

type Sender interface {
	SubmitFeedback(ctx context.Context, req types.FeedbackRequest) (types.FeedbackResponse, error)
}

// ValidationError blocks a submission before it reaches the network.
type ValidationError struct {
	CallID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feedback for call %s rejected: %s", e.CallID, e.Reason)
}

// SubmitError is a failed delivery. The draft is left intact for a retry.
type SubmitError struct {
	CallID string
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit feedback for call %s: %v", e.CallID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Ack is the transient confirmation shown after a successful submit.
type Ack struct {
	CallID    string    `json:"call_id"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Submitter struct {
	sender Sender
	drafts *Drafts
	log    *Log
	ackFor time.Duration
	now    func() time.Time
	logger *logrus.Entry

	mu       sync.Mutex
	ack      *Ack
	ackTimer *time.Timer
	onChange func()
}

func NewSubmitter(sender Sender, drafts *Drafts, log *Log, ackFor time.Duration, logger *logrus.Entry) *Submitter {
	return &Submitter{
		sender: sender,
		drafts: drafts,
		log:    log,
		ackFor: ackFor,
		now:    time.Now,
		logger: logger.WithField("component", "feedback"),
	}
}

// OnChange registers fn to run whenever the acknowledgement appears or clears.
func (s *Submitter) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Submit sends text as coaching feedback for callID. Whitespace-only text is
// rejected without a network call. On success the call's draft is cleared,
// the remark is logged and an acknowledgement is shown for the ack duration.
func (s *Submitter) Submit(ctx context.Context, callID string, agent types.Agent, text string) (types.FeedbackRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.FeedbackSubmissionsTotal.WithLabelValues("invalid").Inc()
		return types.FeedbackRecord{}, &ValidationError{CallID: callID, Reason: "remark is empty"}
	}
	if callID == "" {
		metrics.FeedbackSubmissionsTotal.WithLabelValues("invalid").Inc()
		return types.FeedbackRecord{}, &ValidationError{CallID: callID, Reason: "no call selected"}
	}

	log := s.logger.WithFields(logrus.Fields{"call_id": callID, "agent_id": agent.EmployeeID})
	_, err := s.sender.SubmitFeedback(ctx, types.FeedbackRequest{
		AgentName: agent.Name,
		AgentID:   agent.EmployeeID,
		CallID:    callID,
		Feedback:  text,
	})
	if err != nil {
		metrics.FeedbackSubmissionsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("feedback submit failed, draft kept")
		return types.FeedbackRecord{}, &SubmitError{CallID: callID, Err: err}
	}

	rec := types.FeedbackRecord{
		ID:        uuid.New().String(),
		CallID:    callID,
		AgentName: agent.Name,
		AgentID:   agent.EmployeeID,
		Remark:    text,
		Timestamp: s.now().UTC(),
	}
	s.log.Append(rec)
	s.drafts.clear(callID)
	s.showAck(callID, "Feedback sent to "+agent.Name)

	metrics.FeedbackSubmissionsTotal.WithLabelValues("accepted").Inc()
	log.WithField("feedback_id", rec.ID).Info("feedback accepted")
	return rec, nil
}

// Ack returns the acknowledgement currently on screen, if any.
func (s *Submitter) Ack() (Ack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ack == nil {
		return Ack{}, false
	}
	return *s.ack, true
}

// Close cancels a pending auto-dismiss.
func (s *Submitter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
	s.ack = nil
}

func (s *Submitter) showAck(callID, msg string) {
	s.mu.Lock()
	if s.ackTimer != nil {
		s.ackTimer.Stop()
	}
	ack := &Ack{CallID: callID, Message: msg, ExpiresAt: s.now().Add(s.ackFor)}
	s.ack = ack
	s.ackTimer = time.AfterFunc(s.ackFor, func() { s.dismiss(ack) })
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// dismiss clears ack if it is still the one on screen.
func (s *Submitter) dismiss(ack *Ack) {
	s.mu.Lock()
	if s.ack != ack {
		s.mu.Unlock()
		return
	}
	s.ack = nil
	s.ackTimer = nil
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
