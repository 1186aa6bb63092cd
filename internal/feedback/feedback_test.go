package feedback

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"call-review-go/internal/logger"
	"call-review-go/internal/types"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []types.FeedbackRequest
}

func (f *fakeSender) SubmitFeedback(_ context.Context, req types.FeedbackRequest) (types.FeedbackResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.err != nil {
		return types.FeedbackResponse{}, f.err
	}
	return types.FeedbackResponse{Status: types.StatusSuccess}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var amit = types.Agent{Name: "Amit Singh", EmployeeID: "EMP-204"}

func setup(sender Sender, ackFor time.Duration) (*Submitter, *Drafts, *Log) {
	drafts := NewDrafts()
	log := NewLog()
	return NewSubmitter(sender, drafts, log, ackFor, logger.Discard()), drafts, log
}

func TestSubmit_RejectsBlankWithoutNetwork(t *testing.T) {
	sender := &fakeSender{}
	s, _, log := setup(sender, time.Second)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.Submit(context.Background(), "B", amit, text)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	}
	assert.Zero(t, sender.count())
	assert.Empty(t, log.Entries())
}

func TestSubmit_SuccessClearsDraftAndLogs(t *testing.T) {
	sender := &fakeSender{}
	s, drafts, log := setup(sender, time.Hour)
	defer s.Close()

	drafts.Open(types.FlaggedCall{CallID: "B", Agent: amit})
	_, err := drafts.Update("B", "Acknowledge the wait first.")
	require.NoError(t, err)

	rec, err := s.Submit(context.Background(), "B", amit, "Acknowledge the wait first.")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "EMP-204", rec.AgentID)

	d, ok := drafts.Get("B")
	require.True(t, ok)
	assert.Empty(t, d.Text)

	require.Len(t, log.Entries(), 1)
	assert.Len(t, log.ForCall("B"), 1)
	assert.Empty(t, log.ForCall("A"))
	assert.Equal(t, "EMP-204", sender.sent[0].AgentID)

	ack, shown := s.Ack()
	require.True(t, shown)
	assert.Equal(t, "B", ack.CallID)
}

func TestSubmit_FailurePreservesDraft(t *testing.T) {
	sender := &fakeSender{err: errors.New("502 bad gateway")}
	s, drafts, log := setup(sender, time.Second)

	drafts.Open(types.FlaggedCall{CallID: "B", Agent: amit})
	drafts.Update("B", "Offer a callback time.")

	_, err := s.Submit(context.Background(), "B", amit, "Offer a callback time.")
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "B", se.CallID)

	d, _ := drafts.Get("B")
	assert.Equal(t, "Offer a callback time.", d.Text)
	assert.Empty(t, log.Entries())
	_, shown := s.Ack()
	assert.False(t, shown)
}

func TestAck_AutoDismisses(t *testing.T) {
	s, _, _ := setup(&fakeSender{}, 20*time.Millisecond)

	var changes int32
	s.OnChange(func() { atomic.AddInt32(&changes, 1) })

	_, err := s.Submit(context.Background(), "B", amit, "Good recovery at the end.")
	require.NoError(t, err)
	_, shown := s.Ack()
	assert.True(t, shown)

	assert.Eventually(t, func() bool {
		_, shown := s.Ack()
		return !shown
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&changes))
}

func TestDrafts_Lifecycle(t *testing.T) {
	d := NewDrafts()
	_, err := d.Update("B", "x")
	assert.ErrorIs(t, err, ErrNoDraft)

	d.Open(types.FlaggedCall{CallID: "B", Agent: amit})
	d.Update("B", "keep me")
	reopened := d.Open(types.FlaggedCall{CallID: "B", Agent: types.Agent{Name: "Amit S.", EmployeeID: "EMP-204"}})
	assert.Equal(t, "keep me", reopened.Text)
	assert.Equal(t, "Amit S.", reopened.AgentName)

	d.Discard("B")
	_, ok := d.Get("B")
	assert.False(t, ok)

	// clearing a discarded draft does not resurrect it
	d.clear("B")
	_, ok = d.Get("B")
	assert.False(t, ok)
}

func TestLog_ExportXLSX(t *testing.T) {
	l := NewLog()
	l.Append(types.FeedbackRecord{ID: "1", CallID: "B", AgentName: "Amit Singh", AgentID: "EMP-204", Remark: "Greet properly",
		Timestamp: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)})

	var buf bytes.Buffer
	require.NoError(t, l.ExportXLSX(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Call ID", rows[0][1])
	assert.Equal(t, "Greet properly", rows[1][4])
	assert.Equal(t, "2026-02-01T10:00:00Z", rows[1][5])
}
