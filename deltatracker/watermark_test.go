package deltatracker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func Test_NormalizeModifiedAt(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)

	testCases := []struct {
		description string
		input       time.Time
		expected    time.Time
	}{
		{
			description: "sub-second value is rounded up to the next second",
			input:       t0.Add(400 * time.Millisecond),
			expected:    t0.Add(time.Second),
		},
		{
			description: "one nanosecond past a second is rounded up",
			input:       t0.Add(time.Nanosecond),
			expected:    t0.Add(time.Second),
		},
		{
			description: "whole second stays unchanged",
			input:       t0.Add(5 * time.Second),
			expected:    t0.Add(5 * time.Second),
		},
		{
			description: "non-UTC zone is converted to UTC",
			input:       time.Date(2024, 1, 1, 1, 0, 0, 500_000_000, berlin),
			expected:    t0.Add(time.Second),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// act
			normalized := deltatracker.NormalizeModifiedAt(tc.input)

			// assert
			assert.True(t, tc.expected.Equal(normalized), "expected %s, got %s", tc.expected, normalized)
			assert.Equal(t, time.UTC, normalized.Location())
		})
	}
}

func Test_ModifiedBoundAfter(t *testing.T) {
	testCases := []struct {
		description       string
		previous          time.Time
		expectedAt        time.Time
		expectedInclusive bool
	}{
		{
			description:       "sub-second previous watermark yields an inclusive bound at the next second",
			previous:          t0.Add(400 * time.Millisecond),
			expectedAt:        t0.Add(time.Second),
			expectedInclusive: true,
		},
		{
			description:       "whole-second previous watermark yields an exclusive bound at that second",
			previous:          t0.Add(time.Second),
			expectedAt:        t0.Add(time.Second),
			expectedInclusive: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// act
			bound := deltatracker.ModifiedBoundAfter(tc.previous)

			// assert
			assert.True(t, tc.expectedAt.Equal(bound.At))
			assert.Equal(t, tc.expectedInclusive, bound.Inclusive)
		})
	}
}

func Test_ModifiedBound_Admits(t *testing.T) {
	subSecondBound := deltatracker.ModifiedBoundAfter(t0.Add(400 * time.Millisecond))
	wholeSecondBound := deltatracker.ModifiedBoundAfter(t0.Add(time.Second))

	testCases := []struct {
		description string
		bound       deltatracker.ModifiedBound
		modifiedAt  time.Time
		expected    bool
	}{
		{"value already reflected in a sub-second watermark", subSecondBound, t0.Add(400 * time.Millisecond), false},
		{"exact second after a sub-second watermark", subSecondBound, t0.Add(time.Second), true},
		{"later value after a sub-second watermark", subSecondBound, t0.Add(1500 * time.Millisecond), true},
		{"exact second of a whole-second watermark", wholeSecondBound, t0.Add(time.Second), false},
		{"sub-second past a whole-second watermark", wholeSecondBound, t0.Add(1001 * time.Millisecond), true},
		{"earlier value", wholeSecondBound, t0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// act / assert
			assert.Equal(t, tc.expected, tc.bound.Admits(tc.modifiedAt))
		})
	}
}

func Test_WatermarkOf(t *testing.T) {
	// arrange
	emptySource := deltatracker.Snapshot{TableID: "orders", CapturedAt: 1}
	filledSource := givenSnapshot(100, 100, t0)

	// act
	emptyWatermark := deltatracker.WatermarkOf(emptySource)
	filledWatermark := deltatracker.WatermarkOf(filledSource)

	// assert
	assert.False(t, emptyWatermark.HasPrimaryKey())
	assert.False(t, emptyWatermark.HasModifiedAt())
	assert.True(t, filledWatermark.HasPrimaryKey())
	assert.True(t, filledWatermark.HasModifiedAt())
	assert.Equal(t, int64(100), filledWatermark.MaxPrimaryKey)
	assert.Equal(t, int64(100), filledWatermark.TotalRowCount)
	assert.True(t, t0.Equal(filledWatermark.MaxModifiedAt))
}
