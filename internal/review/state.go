package review

import (
	"errors"

	"call-review-go/internal/types"
)

type State string

const (
	Collapsed State = "collapsed"
	Expanding State = "expanding"
	Ready     State = "ready"
	Playing   State = "playing"
	Paused    State = "paused"
	Seeking   State = "seeking"
	Error     State = "error"
)

type AudioLoadState string

const (
	AudioIdle    AudioLoadState = "idle"
	AudioLoading AudioLoadState = "loading"
	AudioReady   AudioLoadState = "ready"
	AudioError   AudioLoadState = "error"
)

func (s State) audio() AudioLoadState {
	switch s {
	case Collapsed:
		return AudioIdle
	case Expanding:
		return AudioLoading
	case Error:
		return AudioError
	default:
		return AudioReady
	}
}

// controllable reports whether play/pause/seek act in this state.
func (s State) controllable() bool {
	return s == Ready || s == Playing || s == Paused
}

var (
	ErrNoSession   = errors.New("no call is expanded")
	ErrUnknownCall = errors.New("call is not in the current feed")
	ErrNoDeviation = errors.New("deviation index out of range")
)

// View is everything the UI renders for the expanded call. The current
// segment and deviation are derived from Position on every read.
type View struct {
	CallID           string                    `json:"call_id,omitempty"`
	State            State                     `json:"state"`
	AudioLoadState   AudioLoadState            `json:"audio_load_state"`
	IsPlaying        bool                      `json:"is_playing"`
	Position         float64                   `json:"position"`
	Duration         float64                   `json:"duration"`
	PositionLabel    string                    `json:"position_label"`
	DurationLabel    string                    `json:"duration_label"`
	CurrentDeviation int                       `json:"current_deviation"`
	CurrentSegment   *types.TranscriptSegment  `json:"current_segment,omitempty"`
	Transcript       []types.TranscriptSegment `json:"transcript,omitempty"`
	AudioError       string                    `json:"audio_error,omitempty"`
	FallbackAudioURL string                    `json:"fallback_audio_url,omitempty"`
	Call             *types.FlaggedCall        `json:"call,omitempty"`
	Draft            *types.FeedbackDraft      `json:"draft,omitempty"`
}
