package feedback

import (
	"errors"
	"sync"
	"time"

	"call-review-go/internal/types"
)

var ErrNoDraft = errors.New("no open feedback draft for call")

// Drafts holds the in-progress coaching remark for each open call. A draft
// is abandoned, not saved, when its call is collapsed or leaves the feed.
type Drafts struct {
	mu     sync.Mutex
	now    func() time.Time
	drafts map[string]types.FeedbackDraft
}

func NewDrafts() *Drafts {
	return &Drafts{now: time.Now, drafts: map[string]types.FeedbackDraft{}}
}

// Open starts an empty draft for call, or returns the existing one for the
// same call id with the agent identity refreshed.
func (d *Drafts) Open(call types.FlaggedCall) types.FeedbackDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[call.CallID]
	if !ok {
		draft = types.FeedbackDraft{CallID: call.CallID, CreatedAt: d.now()}
	}
	draft.AgentName = call.Agent.Name
	draft.AgentID = call.Agent.EmployeeID
	d.drafts[call.CallID] = draft
	return draft
}

func (d *Drafts) Update(callID, text string) (types.FeedbackDraft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[callID]
	if !ok {
		return types.FeedbackDraft{}, ErrNoDraft
	}
	draft.Text = text
	d.drafts[callID] = draft
	return draft, nil
}

func (d *Drafts) Get(callID string) (types.FeedbackDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[callID]
	return draft, ok
}

// clear empties the text of an open draft; a discarded draft stays discarded.
func (d *Drafts) clear(callID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if draft, ok := d.drafts[callID]; ok {
		draft.Text = ""
		d.drafts[callID] = draft
	}
}

func (d *Drafts) Discard(callID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, callID)
}
