package align

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-review-go/internal/types"
)

var transcript = []types.TranscriptSegment{
	{Start: 0, End: 5, Text: "Hello, this is Amit. How may I help you?"},
	{Start: 6, End: 12, Text: "I have been waiting for my battery for 3 hours!", IsCritical: true},
	{Start: 13, End: 18, Text: "I understand your concern. Let me check the status."},
}

func TestCurrentSegment(t *testing.T) {
	cases := []struct {
		pos  float64
		want int
	}{
		{0, 0}, {2.5, 0}, {5, 0}, {5.5, -1}, {6, 1}, {12, 1}, {17.9, 2}, {18.01, -1}, {-1, -1},
	}
	for _, tc := range cases {
		seg, ok := CurrentSegment(tc.pos, transcript)
		if tc.want < 0 {
			assert.False(t, ok, "pos %v", tc.pos)
			continue
		}
		require.True(t, ok, "pos %v", tc.pos)
		assert.Equal(t, transcript[tc.want], seg)
		assert.LessOrEqual(t, seg.Start, tc.pos)
		assert.GreaterOrEqual(t, seg.End, tc.pos)
	}
}

func TestCurrent_OverlapFirstMatchWins(t *testing.T) {
	overlapping := []types.TranscriptSegment{
		{Start: 0, End: 10, Text: "first"},
		{Start: 5, End: 15, Text: "second"},
	}
	seg, ok := CurrentSegment(7, overlapping)
	require.True(t, ok)
	assert.Equal(t, "first", seg.Text)
	assert.Error(t, ValidateSegments(overlapping))
}

func TestCurrentDeviation(t *testing.T) {
	devs := []types.Deviation{{StartTime: 10, EndTime: 15, Severity: 0.8}}

	i, ok := CurrentDeviation(10, devs)
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = CurrentDeviation(9.99, devs)
	assert.False(t, ok)

	_, ok = CurrentDeviation(math.NaN(), devs)
	assert.False(t, ok)

	_, ok = CurrentDeviation(3, nil)
	assert.False(t, ok)
}

func TestValidateSegments(t *testing.T) {
	assert.NoError(t, ValidateSegments(transcript))
	assert.NoError(t, ValidateSegments([]types.TranscriptSegment{{Start: 0, End: 5}, {Start: 5, End: 6}}))

	var oe *OverlapError
	err := ValidateSegments([]types.TranscriptSegment{{Start: 4, End: 4}})
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 0, oe.Index)

	err = ValidateSegments([]types.TranscriptSegment{{Start: 6, End: 8}, {Start: 1, End: 2}})
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 1, oe.Index)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "0:00", FormatTimestamp(0))
	assert.Equal(t, "0:00", FormatTimestamp(math.NaN()))
	assert.Equal(t, "0:10", FormatTimestamp(10.7))
	assert.Equal(t, "2:05", FormatTimestamp(125))
}
