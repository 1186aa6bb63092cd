package feed

import (
	"time"

	"call-review-go/internal/aggregator"
	"call-review-go/internal/types"
)

// Snapshot is one immutable view of the escalation feed. Consumers address
// calls by CallID, never by slice position.
type Snapshot struct {
	Calls     []types.FlaggedCall `json:"flagged_calls"`
	Timestamp time.Time           `json:"timestamp"`
	FetchedAt time.Time           `json:"fetched_at"`

	index map[string]int
}

func newSnapshot(calls []types.FlaggedCall, ts, fetched time.Time) Snapshot {
	idx := make(map[string]int, len(calls))
	for i, c := range calls {
		idx[c.CallID] = i
	}
	return Snapshot{Calls: calls, Timestamp: ts, FetchedAt: fetched, index: idx}
}

func (s Snapshot) Lookup(callID string) (types.FlaggedCall, bool) {
	i, ok := s.index[callID]
	if !ok {
		return types.FlaggedCall{}, false
	}
	return s.Calls[i], true
}

func (s Snapshot) Len() int { return len(s.Calls) }

func (s Snapshot) Stats() aggregator.Insight {
	return aggregator.Aggregate(s.Calls)
}
