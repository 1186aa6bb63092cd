// Package align maps a playback position onto time-windowed call data.
//
// Lookups are linear scans: transcripts and deviation lists are a few
// dozen entries and updates arrive at the position tick rate.
package align

import (
	"fmt"
	"math"

	"call-review-go/internal/types"
)

// Window is anything with a closed [start, end] time range in seconds.
type Window interface {
	Window() (start, end float64)
}

// OverlapError reports the first pair of windows that are out of order or overlap.
type OverlapError struct {
	Index int
	Prev  [2]float64
	Next  [2]float64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("window %d [%.2f,%.2f] overlaps or precedes [%.2f,%.2f]",
		e.Index, e.Next[0], e.Next[1], e.Prev[0], e.Prev[1])
}

// Current returns the index of the first window containing pos.
// If upstream data overlaps, the earliest match in sequence order wins.
func Current[W Window](pos float64, windows []W) (int, bool) {
	if math.IsNaN(pos) {
		return -1, false
	}
	for i, w := range windows {
		start, end := w.Window()
		if start <= pos && pos <= end {
			return i, true
		}
	}
	return -1, false
}

func CurrentSegment(pos float64, segments []types.TranscriptSegment) (types.TranscriptSegment, bool) {
	i, ok := Current(pos, segments)
	if !ok {
		return types.TranscriptSegment{}, false
	}
	return segments[i], true
}

func CurrentDeviation(pos float64, deviations []types.Deviation) (int, bool) {
	return Current(pos, deviations)
}

// ValidateSegments checks that transcript segments are ordered, non-empty and
// non-overlapping. Segments that merely touch (end == next start) are allowed.
func ValidateSegments(segments []types.TranscriptSegment) error {
	for i, s := range segments {
		if s.Start >= s.End {
			return &OverlapError{Index: i, Prev: [2]float64{s.Start, s.End}, Next: [2]float64{s.Start, s.End}}
		}
		if i == 0 {
			continue
		}
		prev := segments[i-1]
		if s.Start < prev.End {
			return &OverlapError{Index: i, Prev: [2]float64{prev.Start, prev.End}, Next: [2]float64{s.Start, s.End}}
		}
	}
	return nil
}

// FormatTimestamp renders seconds as m:ss.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds <= 0 {
		return "0:00"
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
