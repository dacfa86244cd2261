package deltatracker_test

import (
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

func Test_Snapshot_Validate(t *testing.T) {
	valid := givenSnapshot(100, 100, t0)

	testCases := []struct {
		description string
		mutate      func(s *deltatracker.Snapshot)
		expectedErr error
	}{
		{"valid snapshot", func(_ *deltatracker.Snapshot) {}, nil},
		{"negative deleted count is allowed", func(s *deltatracker.Snapshot) { s.DeletedCount = -3 }, nil},
		{"empty table id", func(s *deltatracker.Snapshot) { s.TableID = "" }, deltatracker.ErrEmptyTableID},
		{"zero captured at", func(s *deltatracker.Snapshot) { s.CapturedAt = 0 }, deltatracker.ErrNonPositiveCapturedAt},
		{"negative total", func(s *deltatracker.Snapshot) { s.TotalRowCount = -1 }, deltatracker.ErrNegativeTotalRowCount},
		{"negative created", func(s *deltatracker.Snapshot) { s.CreatedCount = -1 }, deltatracker.ErrNegativeCreatedCount},
		{"negative modified", func(s *deltatracker.Snapshot) { s.ModifiedCount = -1 }, deltatracker.ErrNegativeModifiedCount},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// arrange
			snapshot := valid
			tc.mutate(&snapshot)

			// act
			err := snapshot.Validate()

			// assert
			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_Snapshot_MarshalJSON_EmptySourceRendersNullWatermark(t *testing.T) {
	// arrange
	snapshot := deltatracker.Snapshot{TableID: tableID, CapturedAt: 42, RunUUID: "run-1"}

	// act
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(snapshot)

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"table_id": "EDW.fact.JDA_OutboundDetail",
		"captured_at": 42,
		"max_primary_key": null,
		"max_modified_at": null,
		"max_created_at": null,
		"total_row_count": 0,
		"created_count": 0,
		"modified_count": 0,
		"deleted_count": 0,
		"run_uuid": "run-1"
	}`, string(data))
}

func Test_Snapshot_JSON_KeepsSubSecondTimestamps(t *testing.T) {
	// arrange
	snapshot := givenSnapshot(7, 7, t0.Add(400*time.Millisecond))
	snapshot.DeletedCount = -1

	// act
	data, marshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(snapshot)
	var decoded deltatracker.Snapshot
	unmarshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &decoded)

	// assert
	require.NoError(t, marshalErr)
	require.NoError(t, unmarshalErr)
	assert.Contains(t, string(data), `"max_modified_at":"2024-01-01T00:00:00.4Z"`)
	assert.True(t, snapshot.MaxModifiedAt.Time.Equal(decoded.MaxModifiedAt.Time))
	assert.Equal(t, snapshot.MaxPrimaryKey, decoded.MaxPrimaryKey)
	assert.Equal(t, int64(-1), decoded.DeletedCount)
}

func Test_Snapshot_UnmarshalJSON_ShouldFail_WithMalformedTimestamp(t *testing.T) {
	// arrange
	data := []byte(`{"table_id":"t","captured_at":1,"max_modified_at":"yesterday"}`)

	// act
	var decoded deltatracker.Snapshot
	err := decoded.UnmarshalJSON(data)

	// assert
	assert.ErrorIs(t, err, deltatracker.ErrDecodingSnapshotFailed)
}
