package deltatracker

import (
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrNonPositiveCapturedAt is returned when a snapshot carries a run identifier that is not positive.
	ErrNonPositiveCapturedAt = errors.New("captured at must be positive")

	// ErrNegativeTotalRowCount is returned when a snapshot carries a negative total row count.
	ErrNegativeTotalRowCount = errors.New("total row count must not be negative")

	// ErrNegativeCreatedCount is returned when a snapshot carries a negative created count.
	ErrNegativeCreatedCount = errors.New("created count must not be negative")

	// ErrNegativeModifiedCount is returned when a snapshot carries a negative modified count.
	ErrNegativeModifiedCount = errors.New("modified count must not be negative")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

	// ErrProvisioningFailed is returned when the snapshot table could not be created.
	ErrProvisioningFailed = errors.New("provisioning snapshot table failed")

	// ErrDecodingSnapshotFailed is returned when a stored item cannot be converted back into a Snapshot.
	ErrDecodingSnapshotFailed = errors.New("decoding stored snapshot failed")
)

// Snapshot is the persisted state of one run for one tracked table: the watermark observed at capture
// time plus the deltas attributed to the interval since the previous snapshot.
type Snapshot struct {
	TableID       string        // Identifier of the tracked source table (partition key)
	CapturedAt    int64         // Strictly increasing run identifier (sort key)
	MaxPrimaryKey sql.NullInt64 // Largest primary key, invalid if the source table was empty
	MaxModifiedAt sql.NullTime  // Largest modification timestamp
	MaxCreatedAt  sql.NullTime  // Largest creation timestamp, informational only
	TotalRowCount int64         // Row count of the source table at capture time
	CreatedCount  int64         // Rows created since the previous snapshot
	ModifiedCount int64         // Pre-existing rows modified since the previous snapshot
	DeletedCount  int64         // Inferred deletions, may be negative when reads raced with writes
	RunUUID       string        // Correlation id of the run that wrote this snapshot
}

// IsBaseline reports whether the snapshot carries no deltas at all, which is always true for the first snapshot.
func (s Snapshot) IsBaseline() bool {
	return s.CreatedCount == 0 && s.ModifiedCount == 0 && s.DeletedCount == 0
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.TableID == "" {
		return ErrEmptyTableID
	}

	if s.CapturedAt <= 0 {
		return ErrNonPositiveCapturedAt
	}

	if s.TotalRowCount < 0 {
		return ErrNegativeTotalRowCount
	}

	if s.CreatedCount < 0 {
		return ErrNegativeCreatedCount
	}

	if s.ModifiedCount < 0 {
		return ErrNegativeModifiedCount
	}

	return nil
}

// snapshotDocument is the JSON form of a Snapshot with timestamps serialized as ISO-8601 strings.
type snapshotDocument struct {
	TableID       string  `json:"table_id"`
	CapturedAt    int64   `json:"captured_at"`
	MaxPrimaryKey *int64  `json:"max_primary_key"`
	MaxModifiedAt *string `json:"max_modified_at"`
	MaxCreatedAt  *string `json:"max_created_at"`
	TotalRowCount int64   `json:"total_row_count"`
	CreatedCount  int64   `json:"created_count"`
	ModifiedCount int64   `json:"modified_count"`
	DeletedCount  int64   `json:"deleted_count"`
	RunUUID       string  `json:"run_uuid"`
}

// MarshalJSON renders the snapshot with null watermark fields for an empty source and ISO-8601 timestamps.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	doc := snapshotDocument{
		TableID:       s.TableID,
		CapturedAt:    s.CapturedAt,
		TotalRowCount: s.TotalRowCount,
		CreatedCount:  s.CreatedCount,
		ModifiedCount: s.ModifiedCount,
		DeletedCount:  s.DeletedCount,
		RunUUID:       s.RunUUID,
	}

	if s.MaxPrimaryKey.Valid {
		maxPrimaryKey := s.MaxPrimaryKey.Int64
		doc.MaxPrimaryKey = &maxPrimaryKey
	}

	if s.MaxModifiedAt.Valid {
		maxModifiedAt := FormatTimestamp(s.MaxModifiedAt.Time)
		doc.MaxModifiedAt = &maxModifiedAt
	}

	if s.MaxCreatedAt.Valid {
		maxCreatedAt := FormatTimestamp(s.MaxCreatedAt.Time)
		doc.MaxCreatedAt = &maxCreatedAt
	}

	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(doc)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var doc snapshotDocument
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &doc); err != nil {
		return errors.Join(ErrDecodingSnapshotFailed, err)
	}

	decoded := Snapshot{
		TableID:       doc.TableID,
		CapturedAt:    doc.CapturedAt,
		TotalRowCount: doc.TotalRowCount,
		CreatedCount:  doc.CreatedCount,
		ModifiedCount: doc.ModifiedCount,
		DeletedCount:  doc.DeletedCount,
		RunUUID:       doc.RunUUID,
	}

	if doc.MaxPrimaryKey != nil {
		decoded.MaxPrimaryKey = sql.NullInt64{Int64: *doc.MaxPrimaryKey, Valid: true}
	}

	maxModifiedAt, err := ParseNullTimestamp(doc.MaxModifiedAt)
	if err != nil {
		return errors.Join(ErrDecodingSnapshotFailed, err)
	}
	decoded.MaxModifiedAt = maxModifiedAt

	maxCreatedAt, err := ParseNullTimestamp(doc.MaxCreatedAt)
	if err != nil {
		return errors.Join(ErrDecodingSnapshotFailed, err)
	}
	decoded.MaxCreatedAt = maxCreatedAt

	*s = decoded

	return nil
}

// FormatTimestamp serializes a timestamp as an ISO-8601 string in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses a timestamp written by FormatTimestamp.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}

	return t.UTC(), nil
}

// ParseNullTimestamp parses an optional timestamp, a nil or empty value yields an invalid sql.NullTime.
func ParseNullTimestamp(value *string) (sql.NullTime, error) {
	if value == nil || *value == "" {
		return sql.NullTime{}, nil
	}

	t, err := ParseTimestamp(*value)
	if err != nil {
		return sql.NullTime{}, err
	}

	return sql.NullTime{Time: t, Valid: true}, nil
}
