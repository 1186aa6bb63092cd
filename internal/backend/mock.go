package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"call-review-go/internal/types"
)

// Mock is an in-process backend for demos (USE_MOCK_BACKEND=true). It serves
// a fixed feed and accepts every non-empty feedback.
type Mock struct {
	mu       sync.Mutex
	now      func() time.Time
	calls    []types.CallDetail
	received []types.FeedbackRequest
}

func NewMock() *Mock {
	return &Mock{now: time.Now, calls: mockCalls()}
}

func (m *Mock) ListEscalations(_ context.Context) (types.EscalationsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.FlaggedCall, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.FlaggedCall)
	}
	return types.EscalationsResponse{
		Status:       types.StatusSuccess,
		FlaggedCalls: out,
		Timestamp:    types.Timestamp{Time: m.now().UTC()},
	}, nil
}

func (m *Mock) GetCallDetail(_ context.Context, callID string) (types.CallDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.CallID == callID {
			return c, nil
		}
	}
	return types.CallDetail{}, &StatusError{Code: 404, Body: "call not found"}
}

func (m *Mock) WorstCall(_ context.Context, agentName string) (types.CallDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var worst *types.CallDetail
	for i, c := range m.calls {
		if !strings.EqualFold(c.Agent.Name, agentName) {
			continue
		}
		if worst == nil || c.Scores.OverallQuality < worst.Scores.OverallQuality {
			worst = &m.calls[i]
		}
	}
	if worst == nil {
		return types.CallDetail{}, &StatusError{Code: 404, Body: "no calls for agent"}
	}
	return *worst, nil
}

func (m *Mock) SubmitFeedback(_ context.Context, req types.FeedbackRequest) (types.FeedbackResponse, error) {
	if strings.TrimSpace(req.Feedback) == "" {
		return types.FeedbackResponse{}, &StatusError{Code: 400, Body: "empty feedback"}
	}
	m.mu.Lock()
	m.received = append(m.received, req)
	m.mu.Unlock()
	return types.FeedbackResponse{Status: types.StatusSuccess, Message: fmt.Sprintf("feedback stored for %s", req.CallID)}, nil
}

// Received returns the feedback the mock accepted, oldest first.
func (m *Mock) Received() []types.FeedbackRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.FeedbackRequest(nil), m.received...)
}

func mockCalls() []types.CallDetail {
	ts := func(s string) types.Timestamp {
		t, _ := time.Parse(time.RFC3339, s)
		return types.Timestamp{Time: t}
	}
	return []types.CallDetail{
		{
			FlaggedCall: types.FlaggedCall{
				CallID:               "CALL-1001",
				Agent:                types.Agent{Name: "Amit Singh", EmployeeID: "EMP-204"},
				City:                 types.City{Name: "Delhi", State: "Delhi"},
				CallTimestamp:        ts("2026-02-01T10:00:00Z"),
				DurationSeconds:      32,
				Scores:               types.Scores{OverallQuality: 0.42, SOPCompliance: 0.55},
				PrimaryIssueCategory: "delayed_battery_swap",
				SOPDeviations: []types.Deviation{
					{
						StartTime: 6, EndTime: 12, Severity: 0.8,
						WhatWasWrong:   "missed_empathy_statement",
						DeviatedPhrase: "Let me check the status.",
						ShouldHaveSaid: "I'm sorry you've been waiting. Let me check the status right away.",
					},
					{
						StartTime: 19, EndTime: 25, Severity: 0.45,
						WhatWasWrong:   "no_resolution_timeline",
						DeviatedPhrase: "I will escalate this.",
						ShouldHaveSaid: "I'm escalating this now and you'll have an update within 30 minutes.",
					},
				},
				SentimentTrajectory: []types.SentimentPoint{{Turn: 1, Score: 0.5}, {Turn: 2, Score: 0.2}, {Turn: 3, Score: 0.35}, {Turn: 4, Score: 0.1}},
				Analysis: types.Analysis{
					WhyFlagged:      "Customer frustration rose across the call without acknowledgement.",
					BusinessInsight: "Swap delays in Delhi drive repeat escalations.",
					CoachingInsight: "Acknowledge the wait before investigating.",
				},
				AudioURL: "https://example.invalid/audio/CALL-1001.wav",
			},
			AgentName: "Amit Singh",
			CallDate:  "2026-02-01T10:00:00",
			Transcript: []types.TranscriptSegment{
				{Start: 0, End: 5, Text: "Hello, this is Amit from Battery Smart. How may I help you?"},
				{Start: 6, End: 12, Text: "Yes, I have been waiting for my battery for 3 hours!", IsCritical: true},
				{Start: 13, End: 18, Text: "I understand your concern. Let me check the status."},
				{Start: 19, End: 25, Text: "This is ridiculous! I need it urgently!", IsCritical: true},
				{Start: 26, End: 32, Text: "I apologize for the delay. I will escalate this immediately."},
			},
		},
		{
			FlaggedCall: types.FlaggedCall{
				CallID:               "CALL-1002",
				Agent:                types.Agent{Name: "Priya Sharma", EmployeeID: "EMP-117"},
				City:                 types.City{Name: "Jaipur", State: "Rajasthan"},
				CallTimestamp:        ts("2026-02-01T11:15:00Z"),
				DurationSeconds:      25,
				Scores:               types.Scores{OverallQuality: 0.61, SOPCompliance: 0.7},
				PrimaryIssueCategory: "missed_callback",
				SentimentTrajectory:  []types.SentimentPoint{{Turn: 1, Score: 0.3}, {Turn: 2, Score: 0.25}},
				Analysis: types.Analysis{
					WhyFlagged:      "Customer threatened a formal complaint.",
					BusinessInsight: "Callback misses correlate with churn risk.",
					CoachingInsight: "Own the missed follow-up explicitly.",
				},
				AudioURL: "https://example.invalid/audio/CALL-1002.wav",
			},
			AgentName: "Priya Sharma",
			Transcript: []types.TranscriptSegment{
				{Start: 0, End: 5, Text: "Battery Smart customer service, this is Priya."},
				{Start: 6, End: 12, Text: "Your service is pathetic! Nobody called me back!", IsCritical: true,
					AISuggestion: "I sincerely apologize for missing your follow-up. Let me personally ensure this is resolved right away."},
				{Start: 13, End: 18, Text: "Let me check your complaint history."},
				{Start: 19, End: 25, Text: "I'm going to file a complaint against your company!", IsCritical: true},
			},
		},
	}
}
