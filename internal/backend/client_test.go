package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-review-go/internal/logger"
	"call-review-go/internal/types"
)

func newTestClient(url string) *Client {
	return New(url, 2*time.Second, logger.Discard(), WithMaxRetryTime(2*time.Second))
}

func TestListEscalations_DecodesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/escalations/monitor", r.URL.Path)
		w.Write([]byte(`{"status":"success","timestamp":"2026-02-01T10:00:00Z","flagged_calls":[
			{"call_id":"B","agent":{"name":"Amit","employee_id":"E1"},"duration_seconds":60,
			 "sop_deviations":[{"start_time":10,"end_time":15,"severity":0.8,"what_was_wrong":"x"}]}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL + "/api/").ListEscalations(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.FlaggedCalls, 1)
	assert.Equal(t, "E1", resp.FlaggedCalls[0].Agent.EmployeeID)
	assert.Equal(t, 10.0, resp.FlaggedCalls[0].SOPDeviations[0].StartTime)
}

func TestListEscalations_NoRetryOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListEscalations(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestGetCallDetail_RetriesTransientFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(types.CallDetail{
			FlaggedCall: types.FlaggedCall{CallID: "B"},
			Transcript:  []types.TranscriptSegment{{Start: 0, End: 4, Text: "hi"}},
		})
	}))
	defer srv.Close()

	detail, err := newTestClient(srv.URL).GetCallDetail(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "B", detail.CallID)
	assert.Len(t, detail.Transcript, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestGetCallDetail_NotFoundIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetCallDetail(context.Background(), "missing")
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestSubmitFeedback(t *testing.T) {
	var got types.FeedbackRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submit-feedback", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Feedback == "reject me" {
			w.Write([]byte(`{"status":"error","message":"nope"}`))
			return
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SubmitFeedback(context.Background(), types.FeedbackRequest{AgentName: "Amit", CallID: "B", Feedback: "greet first"})
	require.NoError(t, err)
	assert.Equal(t, "greet first", got.Feedback)

	_, err = c.SubmitFeedback(context.Background(), types.FeedbackRequest{AgentName: "Amit", CallID: "B", Feedback: "reject me"})
	assert.ErrorIs(t, err, ErrNotSuccess)
}

func TestMock_WorstCallAndFeedback(t *testing.T) {
	m := NewMock()
	worst, err := m.WorstCall(context.Background(), "amit singh")
	require.NoError(t, err)
	assert.Equal(t, "CALL-1001", worst.CallID)

	feed, err := m.ListEscalations(context.Background())
	require.NoError(t, err)
	for _, c := range feed.FlaggedCalls {
		assert.NoError(t, c.Validate())
	}

	_, err = m.SubmitFeedback(context.Background(), types.FeedbackRequest{CallID: "CALL-1001", Feedback: "ok"})
	require.NoError(t, err)
	assert.Len(t, m.Received(), 1)
}
