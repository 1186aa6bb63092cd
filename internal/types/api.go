package types

import (
	"encoding/json"
	"strings"
	"time"
)

const StatusSuccess = "success"

// EscalationsResponse is the body of the escalation monitor endpoint.
type EscalationsResponse struct {
	Status       string        `json:"status"`
	FlaggedCalls []FlaggedCall `json:"flagged_calls"`
	Timestamp    Timestamp     `json:"timestamp"`
}

type FeedbackRequest struct {
	AgentName string `json:"agent_name"`
	AgentID   string `json:"agent_id,omitempty"`
	CallID    string `json:"call_id"`
	Feedback  string `json:"feedback"`
}

type FeedbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type FeedbackDraft struct {
	CallID    string    `json:"call_id"`
	AgentName string    `json:"agent_name"`
	AgentID   string    `json:"agent_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackRecord is one accepted coaching remark in the session log.
type FeedbackRecord struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	AgentName string    `json:"agent_name"`
	AgentID   string    `json:"agent_id"`
	Remark    string    `json:"remark"`
	Timestamp time.Time `json:"timestamp"`
}

// Timestamp accepts RFC3339 as well as the zone-less ISO form the backend
// sometimes emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
