package dynamoengine

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

const (
	attrTableName   = "TableName"
	attrTimeStamp   = "TimeStamp"
	attrTotalCount  = "TotalCount"
	attrMaxModified = "MaxModified"
	attrMaxCreated  = "MaxCreated"

	// naiveISOLayout reads timestamps written without an offset, they are taken as UTC.
	naiveISOLayout = "2006-01-02T15:04:05.999999999"
)

var (
	// ErrMissingAttribute is returned when a stored item lacks a mandatory attribute.
	ErrMissingAttribute = errors.New("item attribute is missing")

	// ErrUnexpectedAttributeType is returned when a stored attribute cannot be read as the type the store writes.
	ErrUnexpectedAttributeType = errors.New("item attribute has an unexpected type")
)

// snapshotItem is the stored form of a snapshot. Nil fields are written as NULL attributes,
// absent attributes (items of the original baseline job have no counts) decode as nil or zero.
type snapshotItem struct {
	TableName     string  `dynamodbav:"TableName"`
	TimeStamp     *int64  `dynamodbav:"TimeStamp"`
	MaxID         *int64  `dynamodbav:"MaxID"`
	MaxModified   *string `dynamodbav:"MaxModified"`
	MaxCreated    *string `dynamodbav:"MaxCreated"`
	TotalCount    *int64  `dynamodbav:"TotalCount"`
	CreatedCount  int64   `dynamodbav:"CreatedCount"`
	ModifiedCount int64   `dynamodbav:"ModifiedCount"`
	DeletedCount  int64   `dynamodbav:"DeletedCount"`
	RunUUID       string  `dynamodbav:"RunUUID,omitempty"`
}

func itemFromSnapshot(snapshot deltatracker.Snapshot) (map[string]types.AttributeValue, error) {
	item := snapshotItem{
		TableName:     snapshot.TableID,
		TimeStamp:     &snapshot.CapturedAt,
		TotalCount:    &snapshot.TotalRowCount,
		CreatedCount:  snapshot.CreatedCount,
		ModifiedCount: snapshot.ModifiedCount,
		DeletedCount:  snapshot.DeletedCount,
		RunUUID:       snapshot.RunUUID,
	}

	if snapshot.MaxPrimaryKey.Valid {
		item.MaxID = &snapshot.MaxPrimaryKey.Int64
	}

	item.MaxModified = formatNullTimestamp(snapshot.MaxModifiedAt)
	item.MaxCreated = formatNullTimestamp(snapshot.MaxCreatedAt)

	return attributevalue.MarshalMap(item)
}

func snapshotFromItem(av map[string]types.AttributeValue) (deltatracker.Snapshot, error) {
	var item snapshotItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return deltatracker.Snapshot{}, errors.Join(ErrUnexpectedAttributeType, err)
	}

	switch {
	case item.TableName == "":
		return deltatracker.Snapshot{}, fmt.Errorf("%w: %s", ErrMissingAttribute, attrTableName)
	case item.TimeStamp == nil:
		return deltatracker.Snapshot{}, fmt.Errorf("%w: %s", ErrMissingAttribute, attrTimeStamp)
	case item.TotalCount == nil:
		return deltatracker.Snapshot{}, fmt.Errorf("%w: %s", ErrMissingAttribute, attrTotalCount)
	}

	snapshot := deltatracker.Snapshot{
		TableID:       item.TableName,
		CapturedAt:    *item.TimeStamp,
		TotalRowCount: *item.TotalCount,
		CreatedCount:  item.CreatedCount,
		ModifiedCount: item.ModifiedCount,
		DeletedCount:  item.DeletedCount,
		RunUUID:       item.RunUUID,
	}

	if item.MaxID != nil {
		snapshot.MaxPrimaryKey = sql.NullInt64{Int64: *item.MaxID, Valid: true}
	}

	var err error

	if snapshot.MaxModifiedAt, err = parseStoredTimestamp(attrMaxModified, item.MaxModified); err != nil {
		return deltatracker.Snapshot{}, err
	}

	if snapshot.MaxCreatedAt, err = parseStoredTimestamp(attrMaxCreated, item.MaxCreated); err != nil {
		return deltatracker.Snapshot{}, err
	}

	return snapshot, nil
}

func formatNullTimestamp(value sql.NullTime) *string {
	if !value.Valid {
		return nil
	}

	formatted := deltatracker.FormatTimestamp(value.Time)

	return &formatted
}

// parseStoredTimestamp accepts ISO-8601 with an offset and, for items of the original baseline job, without one.
func parseStoredTimestamp(name string, value *string) (sql.NullTime, error) {
	parsed, err := deltatracker.ParseNullTimestamp(value)
	if err == nil {
		return parsed, nil
	}

	naive, naiveErr := time.Parse(naiveISOLayout, *value)
	if naiveErr != nil {
		return sql.NullTime{}, fmt.Errorf("%w: %s: %w", ErrUnexpectedAttributeType, name, err)
	}

	return sql.NullTime{Time: naive.UTC(), Valid: true}, nil
}
