package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"               // postgres driver
	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
	_ "modernc.org/sqlite"              // sqlite driver

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine"
)

const (
	defaultMaxConnections    = int32(4)
	defaultMinConnections    = int32(1)
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = time.Minute * 5
	defaultHealthCheckPeriod = time.Minute
	defaultConnectTimeout    = time.Second * 5
	defaultMaxOpenConns      = 4
	defaultMaxIdleConns      = 2

	sqliteTimeFormatParam = "_time_format"
)

// ErrOpeningDatabaseFailed is returned when a connection cannot be opened or pinged.
var ErrOpeningDatabaseFailed = errors.New("opening database connection failed")

// DriverName returns the database/sql driver registered for the dialect.
func DriverName(dialect sqlengine.Dialect) (string, error) {
	switch dialect {
	case sqlengine.DialectPostgres:
		return "postgres", nil
	case sqlengine.DialectSQLServer:
		return "sqlserver", nil
	case sqlengine.DialectMySQL:
		return "mysql", nil
	case sqlengine.DialectSQLite3:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("%w: %q", sqlengine.ErrUnsupportedDialect, dialect)
	}
}

// NewPGXPool creates and pings a pgx pool. The tracker issues a handful of queries per run, so the pool is small.
func NewPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	poolConfig.MaxConns = defaultMaxConnections
	poolConfig.MinConns = defaultMinConnections
	poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	poolConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, pingErr)
	}

	return pool, nil
}

// OpenSQLDB opens and pings a *sql.DB with the driver matching the dialect.
func OpenSQLDB(ctx context.Context, dialect sqlengine.Dialect, dsn string) (*sql.DB, error) {
	driverName, err := DriverName(dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, driverDSN(dialect, dsn))
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	configurePool(db, dialect)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, pingErr)
	}

	return db, nil
}

// OpenSQLX opens and pings a *sqlx.DB with the driver matching the dialect.
func OpenSQLX(ctx context.Context, dialect sqlengine.Dialect, dsn string) (*sqlx.DB, error) {
	driverName, err := DriverName(dialect)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, driverDSN(dialect, dsn))
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	configurePool(db.DB, dialect)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, pingErr)
	}

	return db, nil
}

// driverDSN makes the sqlite driver write time.Time values in a layout the sqlite date functions parse.
// Its default is time.Time.String, which julianday and strftime read as null.
func driverDSN(dialect sqlengine.Dialect, dsn string) string {
	if dialect != sqlengine.DialectSQLite3 || strings.Contains(dsn, sqliteTimeFormatParam+"=") {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + sqliteTimeFormatParam + "=sqlite"
}

func configurePool(db *sql.DB, dialect sqlengine.Dialect) {
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	// sqlite allows one writer, concurrent connections only produce "database is locked".
	if dialect == sqlengine.DialectSQLite3 {
		db.SetMaxOpenConns(1)
		return
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
}
