package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCall marks feed data that breaks the deviation/score invariants.
var ErrInvalidCall = errors.New("invalid flagged call")

type Agent struct {
	Name       string `json:"name"`
	EmployeeID string `json:"employee_id"`
}

type City struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type Scores struct {
	OverallQuality float64 `json:"overall_quality"`
	SOPCompliance  float64 `json:"sop_compliance"`
}

type Analysis struct {
	WhyFlagged      string `json:"why_flagged"`
	BusinessInsight string `json:"business_insight"`
	CoachingInsight string `json:"coaching_insight"`
}

type SentimentPoint struct {
	Turn  int     `json:"turn"`
	Score float64 `json:"score"`
}

// Deviation is a time-bounded span where the agent left the SOP script.
type Deviation struct {
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Severity       float64 `json:"severity"`
	WhatWasWrong   string  `json:"what_was_wrong"`
	DeviatedPhrase string  `json:"deviated_phrase"`
	ShouldHaveSaid string  `json:"should_have_said"`
}

func (d Deviation) Window() (float64, float64) { return d.StartTime, d.EndTime }

// SeverityBand buckets severity the way the dashboard colours deviation cards.
func (d Deviation) SeverityBand() string {
	switch {
	case d.Severity >= 0.7:
		return "critical"
	case d.Severity >= 0.4:
		return "high"
	default:
		return "medium"
	}
}

// IssueLabel turns a category code like "missed_greeting" into "MISSED GREETING".
func (d Deviation) IssueLabel() string {
	return strings.ToUpper(strings.ReplaceAll(d.WhatWasWrong, "_", " "))
}

type FlaggedCall struct {
	CallID               string           `json:"call_id"`
	Agent                Agent            `json:"agent"`
	City                 City             `json:"city"`
	CallTimestamp        Timestamp        `json:"call_timestamp"`
	DurationSeconds      float64          `json:"duration_seconds"`
	Scores               Scores           `json:"scores"`
	SOPDeviations        []Deviation      `json:"sop_deviations"`
	SentimentTrajectory  []SentimentPoint `json:"sentiment_trajectory"`
	PrimaryIssueCategory string           `json:"primary_issue_category"`
	Analysis             Analysis         `json:"analysis"`
	AudioURL             string           `json:"audio_url"`
}

// Validate checks the invariants the review session relies on when seeking.
func (c FlaggedCall) Validate() error {
	if c.CallID == "" {
		return fmt.Errorf("%w: missing call_id", ErrInvalidCall)
	}
	if c.DurationSeconds < 0 {
		return fmt.Errorf("%w: call %s: negative duration %.2f", ErrInvalidCall, c.CallID, c.DurationSeconds)
	}
	if !unit(c.Scores.OverallQuality) || !unit(c.Scores.SOPCompliance) {
		return fmt.Errorf("%w: call %s: scores outside [0,1]", ErrInvalidCall, c.CallID)
	}
	for i, d := range c.SOPDeviations {
		if d.StartTime < 0 || d.StartTime > d.EndTime || d.EndTime > c.DurationSeconds {
			return fmt.Errorf("%w: call %s: deviation %d window [%.2f,%.2f] outside [0,%.2f]",
				ErrInvalidCall, c.CallID, i, d.StartTime, d.EndTime, c.DurationSeconds)
		}
		if !unit(d.Severity) {
			return fmt.Errorf("%w: call %s: deviation %d severity %.2f", ErrInvalidCall, c.CallID, i, d.Severity)
		}
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// TranscriptSegment is one line of the deep-review transcript.
type TranscriptSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	IsCritical   bool    `json:"is_critical"`
	AISuggestion string  `json:"ai_suggestion,omitempty"`
}

func (s TranscriptSegment) Window() (float64, float64) { return s.Start, s.End }

type SOPCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Actual   string `json:"actual"`
	Expected string `json:"expected,omitempty"`
}

// CallDetail is a flagged call plus the material only the deep-review view needs.
type CallDetail struct {
	FlaggedCall
	AgentName  string              `json:"agent_name,omitempty"`
	CallDate   string              `json:"call_date,omitempty"`
	Transcript []TranscriptSegment `json:"transcript"`
	SOPChecks  []SOPCheck          `json:"sop_checks,omitempty"`
}
