package aggregator

import "call-review-go/internal/types"

// Insight is the headline numbers shown above the escalation list.
type Insight struct {
	ActiveEscalations int            `json:"active_escalations"`
	AvgQuality        float64        `json:"avg_quality"`
	AvgSOPCompliance  float64        `json:"avg_sop_compliance"`
	TotalDeviations   int            `json:"total_deviations"`
	CategoryCounts    map[string]int `json:"category_counts"`
	SeverityBands     map[string]int `json:"severity_bands"`
	CityCounts        map[string]int `json:"city_counts"`
}

func Aggregate(calls []types.FlaggedCall) Insight {
	ins := Insight{
		ActiveEscalations: len(calls),
		CategoryCounts:    map[string]int{},
		SeverityBands:     map[string]int{},
		CityCounts:        map[string]int{},
	}
	if len(calls) == 0 {
		return ins
	}
	var quality, sop float64
	for _, c := range calls {
		quality += c.Scores.OverallQuality
		sop += c.Scores.SOPCompliance
		if c.PrimaryIssueCategory != "" {
			ins.CategoryCounts[c.PrimaryIssueCategory]++
		}
		if c.City.Name != "" {
			ins.CityCounts[c.City.Name]++
		}
		for _, d := range c.SOPDeviations {
			ins.SeverityBands[d.SeverityBand()]++
			ins.TotalDeviations++
		}
	}
	ins.AvgQuality = quality / float64(len(calls))
	ins.AvgSOPCompliance = sop / float64(len(calls))
	return ins
}
