package sqlengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"     // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"  // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"   // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlserver" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
)

var (
	// ErrNilDatabaseConnection is returned when a nil database handle is supplied.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty table name is supplied.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrInvalidTableName is returned for table names that are not "table", "schema.table" or "database.schema.table".
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrEmptyColumnName is returned when an empty mandatory column name is supplied.
	ErrEmptyColumnName = errors.New("column name must not be empty")

	// ErrUnsupportedDialect is returned for dialects the component cannot generate SQL for.
	ErrUnsupportedDialect = errors.New("unsupported sql dialect")

	// ErrBuildingQueryFailed is returned when goqu fails to render a statement.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrScanningDBRowFailed is returned when a result row cannot be scanned.
	ErrScanningDBRowFailed = errors.New("scanning db row failed")

	// ErrUnexpectedValueType is returned when the driver returns a value that cannot be converted.
	ErrUnexpectedValueType = errors.New("unexpected value type returned by the driver")

	// ErrMissingResultRow is returned when an aggregate statement returned no row at all.
	ErrMissingResultRow = errors.New("aggregate statement returned no row")
)

// Dialect names a goqu SQL dialect.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectSQLite3   Dialect = "sqlite3"
	DialectSQLServer Dialect = "sqlserver"
)

// ParseDialect validates a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case DialectPostgres, DialectMySQL, DialectSQLite3, DialectSQLServer:
		return d, nil
	case "sqlite":
		return DialectSQLite3, nil
	case "mssql":
		return DialectSQLServer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}

func (d Dialect) builder() goqu.DialectWrapper {
	return goqu.Dialect(string(d))
}

// tableExpression turns "table", "schema.table" or "database.schema.table" into a quoted identifier.
func tableExpression(name string) (exp.Expression, error) {
	if name == "" {
		return nil, ErrEmptyTableName
	}

	parts := strings.Split(name, ".")

	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
	}

	switch len(parts) {
	case 1:
		return goqu.T(parts[0]), nil
	case 2:
		return goqu.S(parts[0]).Table(parts[1]), nil
	case 3:
		return goqu.I(name), nil
	default:
		return nil, fmt.Errorf("%w: %q has more than three parts", ErrInvalidTableName, name)
	}
}
