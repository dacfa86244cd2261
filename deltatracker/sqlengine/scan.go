package sqlengine

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts drivers use when they hand timestamps back as text (sqlite, mysql without parseTime).
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toNullInt64(value any) (sql.NullInt64, error) {
	switch v := value.(type) {
	case nil:
		return sql.NullInt64{}, nil
	case int64:
		return sql.NullInt64{Int64: v, Valid: true}, nil
	case int32:
		return sql.NullInt64{Int64: int64(v), Valid: true}, nil
	case int16:
		return sql.NullInt64{Int64: int64(v), Valid: true}, nil
	case int:
		return sql.NullInt64{Int64: int64(v), Valid: true}, nil
	case uint64:
		return sql.NullInt64{Int64: int64(v), Valid: true}, nil
	case float64:
		return sql.NullInt64{Int64: int64(v), Valid: true}, nil
	case []byte:
		return parseNullInt64(string(v))
	case string:
		return parseNullInt64(v)
	default:
		return sql.NullInt64{}, fmt.Errorf("%w: %T for an integer", ErrUnexpectedValueType, value)
	}
}

func parseNullInt64(value string) (sql.NullInt64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("%w: %q is not an integer", ErrUnexpectedValueType, value)
	}

	return sql.NullInt64{Int64: parsed, Valid: true}, nil
}

func toInt64(value any) (int64, error) {
	converted, err := toNullInt64(value)
	if err != nil {
		return 0, err
	}

	return converted.Int64, nil
}

func toNullTime(value any) (sql.NullTime, error) {
	switch v := value.(type) {
	case nil:
		return sql.NullTime{}, nil
	case time.Time:
		return sql.NullTime{Time: v.UTC(), Valid: true}, nil
	case []byte:
		return parseNullTime(string(v))
	case string:
		return parseNullTime(v)
	default:
		return sql.NullTime{}, fmt.Errorf("%w: %T for a timestamp", ErrUnexpectedValueType, value)
	}
}

func parseNullTime(value string) (sql.NullTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullTime{}, nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return sql.NullTime{Time: parsed.UTC(), Valid: true}, nil
		}
	}

	return sql.NullTime{}, fmt.Errorf("%w: %q is not a timestamp", ErrUnexpectedValueType, value)
}

func toNullString(value any) (*string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case []byte:
		s := string(v)
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: %T for a string", ErrUnexpectedValueType, value)
	}
}
