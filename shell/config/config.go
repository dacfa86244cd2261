package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine"
)

// Environment variables read by LoadConfig.
const (
	EnvConfigFile         = "DELTATRACKER_CONFIG_FILE"
	EnvTableID            = "DELTATRACKER_TABLE_ID"
	EnvSourceTable        = "DELTATRACKER_SOURCE_TABLE"
	EnvSourceDialect      = "DELTATRACKER_SOURCE_DIALECT"
	EnvSourceAdapter      = "DELTATRACKER_SOURCE_ADAPTER"
	EnvSourceDSN          = "DELTATRACKER_SOURCE_DSN"
	EnvSourceDSNSecretID  = "DELTATRACKER_SOURCE_DSN_SECRET_ID"
	EnvPrimaryKeyColumn   = "DELTATRACKER_PRIMARY_KEY_COLUMN"
	EnvModifiedColumn     = "DELTATRACKER_MODIFIED_COLUMN"
	EnvCreatedColumn      = "DELTATRACKER_CREATED_COLUMN"
	EnvStoreBackend       = "DELTATRACKER_STORE_BACKEND"
	EnvStoreTable         = "DELTATRACKER_STORE_TABLE"
	EnvStoreDialect       = "DELTATRACKER_STORE_DIALECT"
	EnvStoreDSN           = "DELTATRACKER_STORE_DSN"
	EnvStoreDSNSecretID   = "DELTATRACKER_STORE_DSN_SECRET_ID"
	EnvDynamoDBEndpoint   = "DELTATRACKER_DYNAMODB_ENDPOINT"
	EnvDynamoDBRead       = "DELTATRACKER_DYNAMODB_READ_CAPACITY"
	EnvDynamoDBWrite      = "DELTATRACKER_DYNAMODB_WRITE_CAPACITY"
	EnvDynamoDBOnDemand   = "DELTATRACKER_DYNAMODB_ON_DEMAND"
	EnvStrict             = "DELTATRACKER_STRICT"
	EnvSequentialReads    = "DELTATRACKER_SEQUENTIAL_READS"
	EnvRunTimeout         = "DELTATRACKER_RUN_TIMEOUT"
	EnvRunIDGranularity   = "DELTATRACKER_RUN_ID_GRANULARITY"
	EnvLogLevel           = "DELTATRACKER_LOG_LEVEL"
	EnvLogFormat          = "DELTATRACKER_LOG_FORMAT"
	EnvOTelEndpoint       = "DELTATRACKER_OTEL_ENDPOINT"
	EnvOTelServiceName    = "DELTATRACKER_OTEL_SERVICE_NAME"
	defaultStoreBackend   = StoreBackendDynamoDB
	defaultRunTimeout     = 5 * time.Minute
	defaultGranularity    = time.Microsecond
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultOTelService    = "deltatracker"
	defaultDynamoCapacity = 10
)

// Source adapters.
const (
	AdapterPGX   = "pgx"
	AdapterSQLDB = "sqldb"
	AdapterSQLX  = "sqlx"
)

// Snapshot store backends.
const (
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendSQL      = "sql"
)

var (
	// ErrReadingConfigFileFailed is returned when the YAML config file cannot be read or parsed.
	ErrReadingConfigFileFailed = errors.New("reading config file failed")

	// ErrInvalidEnvironmentValue is returned when an environment variable cannot be parsed.
	ErrInvalidEnvironmentValue = errors.New("invalid environment value")

	// ErrInvalidConfig is returned by Validate, joined with the concrete problems.
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrMissingSourceTable     = errors.New("source table is required")
	ErrMissingSourceDSN       = errors.New("source dsn or dsn secret id is required")
	ErrMissingStoreDSN        = errors.New("store dsn or dsn secret id is required for the sql store backend")
	ErrUnsupportedAdapter     = errors.New("unsupported source adapter")
	ErrUnsupportedBackend     = errors.New("unsupported snapshot store backend")
	ErrUnsupportedLogLevel    = errors.New("unsupported log level")
	ErrUnsupportedLogFormat   = errors.New("unsupported log format")
	ErrNonPositiveRunTimeout  = errors.New("run timeout must be positive")
	ErrNonPositiveGranularity = errors.New("run id granularity must be positive")
	ErrNonPositiveCapacity    = errors.New("dynamodb capacity must be positive")
)

// Config is the complete tracker configuration.
type Config struct {
	TableID  string         `yaml:"table_id"`
	Source   SourceConfig   `yaml:"source"`
	Store    StoreConfig    `yaml:"store"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Run      RunConfig      `yaml:"run"`
	Log      LogConfig      `yaml:"log"`
	OTel     OTelConfig     `yaml:"otel"`
}

// SourceConfig describes the tracked table and how to reach it.
type SourceConfig struct {
	Table            string `yaml:"table"`
	Dialect          string `yaml:"dialect"`
	Adapter          string `yaml:"adapter"`
	DSN              string `yaml:"dsn"`
	DSNSecretID      string `yaml:"dsn_secret_id"`
	PrimaryKeyColumn string `yaml:"primary_key_column"`
	ModifiedColumn   string `yaml:"modified_column"`
	CreatedColumn    string `yaml:"created_column"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Table       string `yaml:"table"`
	Dialect     string `yaml:"dialect"`
	DSN         string `yaml:"dsn"`
	DSNSecretID string `yaml:"dsn_secret_id"`
}

// DynamoDBConfig is only used with the dynamodb store backend. Region and credentials come from the AWS SDK chain.
type DynamoDBConfig struct {
	Endpoint      string `yaml:"endpoint"`
	ReadCapacity  int64  `yaml:"read_capacity"`
	WriteCapacity int64  `yaml:"write_capacity"`
	OnDemand      bool   `yaml:"on_demand"`
}

// RunConfig tunes a single engine run.
type RunConfig struct {
	Strict           bool          `yaml:"strict"`
	SequentialReads  bool          `yaml:"sequential_reads"`
	Timeout          time.Duration `yaml:"timeout"`
	RunIDGranularity time.Duration `yaml:"run_id_granularity"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OTelConfig enables OTLP export when Endpoint is set.
type OTelConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// LoadConfig builds the configuration from the optional config file, the optional .env file
// and the process environment, in that order of precedence from lowest to highest.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Join(ErrReadingConfigFileFailed, err)
	}

	return loadConfig(os.LookupEnv)
}

func loadConfig(lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config

	if path, ok := lookupEnv(EnvConfigFile); ok && path != "" {
		fileCfg, err := ReadConfigFile(path)
		if err != nil {
			return Config{}, err
		}

		cfg = fileCfg
	}

	if err := applyEnvironment(&cfg, lookupEnv); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ReadConfigFile parses a YAML config file without applying defaults.
func ReadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Config{}, errors.Join(ErrReadingConfigFileFailed, err)
	}

	var cfg Config
	if unmarshalErr := yaml.Unmarshal(raw, &cfg); unmarshalErr != nil {
		return Config{}, errors.Join(ErrReadingConfigFileFailed, unmarshalErr)
	}

	return cfg, nil
}

func applyEnvironment(cfg *Config, lookupEnv func(string) (string, bool)) error {
	stringVars := map[string]*string{
		EnvTableID:           &cfg.TableID,
		EnvSourceTable:       &cfg.Source.Table,
		EnvSourceDialect:     &cfg.Source.Dialect,
		EnvSourceAdapter:     &cfg.Source.Adapter,
		EnvSourceDSN:         &cfg.Source.DSN,
		EnvSourceDSNSecretID: &cfg.Source.DSNSecretID,
		EnvPrimaryKeyColumn:  &cfg.Source.PrimaryKeyColumn,
		EnvModifiedColumn:    &cfg.Source.ModifiedColumn,
		EnvCreatedColumn:     &cfg.Source.CreatedColumn,
		EnvStoreBackend:      &cfg.Store.Backend,
		EnvStoreTable:        &cfg.Store.Table,
		EnvStoreDialect:      &cfg.Store.Dialect,
		EnvStoreDSN:          &cfg.Store.DSN,
		EnvStoreDSNSecretID:  &cfg.Store.DSNSecretID,
		EnvDynamoDBEndpoint:  &cfg.DynamoDB.Endpoint,
		EnvLogLevel:          &cfg.Log.Level,
		EnvLogFormat:         &cfg.Log.Format,
		EnvOTelEndpoint:      &cfg.OTel.Endpoint,
		EnvOTelServiceName:   &cfg.OTel.ServiceName,
	}
	for name, target := range stringVars {
		if value, ok := lookupEnv(name); ok {
			*target = value
		}
	}

	var errs []error

	for name, target := range map[string]*int64{
		EnvDynamoDBRead:  &cfg.DynamoDB.ReadCapacity,
		EnvDynamoDBWrite: &cfg.DynamoDB.WriteCapacity,
	} {
		value, ok := lookupEnv(name)
		if !ok {
			continue
		}

		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnvironmentValue, name, value))
			continue
		}

		*target = parsed
	}

	for name, target := range map[string]*bool{
		EnvDynamoDBOnDemand: &cfg.DynamoDB.OnDemand,
		EnvStrict:           &cfg.Run.Strict,
		EnvSequentialReads:  &cfg.Run.SequentialReads,
	} {
		value, ok := lookupEnv(name)
		if !ok {
			continue
		}

		parsed, err := strconv.ParseBool(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnvironmentValue, name, value))
			continue
		}

		*target = parsed
	}

	for name, target := range map[string]*time.Duration{
		EnvRunTimeout:       &cfg.Run.Timeout,
		EnvRunIDGranularity: &cfg.Run.RunIDGranularity,
	} {
		value, ok := lookupEnv(name)
		if !ok {
			continue
		}

		parsed, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnvironmentValue, name, value))
			continue
		}

		*target = parsed
	}

	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.TableID == "" {
		c.TableID = c.Source.Table
	}

	if c.Source.Dialect == "" {
		c.Source.Dialect = string(sqlengine.DialectPostgres)
	}

	if c.Source.Adapter == "" {
		c.Source.Adapter = AdapterSQLDB
		if strings.EqualFold(c.Source.Dialect, string(sqlengine.DialectPostgres)) {
			c.Source.Adapter = AdapterPGX
		}
	}

	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}

	if c.Store.Dialect == "" {
		c.Store.Dialect = string(sqlengine.DialectPostgres)
	}

	if c.DynamoDB.ReadCapacity == 0 {
		c.DynamoDB.ReadCapacity = defaultDynamoCapacity
	}

	if c.DynamoDB.WriteCapacity == 0 {
		c.DynamoDB.WriteCapacity = defaultDynamoCapacity
	}

	if c.Run.Timeout == 0 {
		c.Run.Timeout = defaultRunTimeout
	}

	if c.Run.RunIDGranularity == 0 {
		c.Run.RunIDGranularity = defaultGranularity
	}

	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}

	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}

	if c.OTel.ServiceName == "" {
		c.OTel.ServiceName = defaultOTelService
	}
}

// Validate reports every problem at once, joined with ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error

	if c.Source.Table == "" {
		errs = append(errs, ErrMissingSourceTable)
	}

	if c.Source.DSN == "" && c.Source.DSNSecretID == "" {
		errs = append(errs, ErrMissingSourceDSN)
	}

	sourceDialect, dialectErr := sqlengine.ParseDialect(c.Source.Dialect)
	if dialectErr != nil {
		errs = append(errs, dialectErr)
	}

	switch c.Source.Adapter {
	case AdapterSQLDB, AdapterSQLX:
	case AdapterPGX:
		if dialectErr == nil && sourceDialect != sqlengine.DialectPostgres {
			errs = append(errs, fmt.Errorf("%w: %q only works with postgres", ErrUnsupportedAdapter, c.Source.Adapter))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedAdapter, c.Source.Adapter))
	}

	switch c.Store.Backend {
	case StoreBackendDynamoDB:
		if c.DynamoDB.ReadCapacity < 0 || c.DynamoDB.WriteCapacity < 0 {
			errs = append(errs, ErrNonPositiveCapacity)
		}
	case StoreBackendSQL:
		if c.Store.DSN == "" && c.Store.DSNSecretID == "" {
			errs = append(errs, ErrMissingStoreDSN)
		}

		if storeDialect, err := sqlengine.ParseDialect(c.Store.Dialect); err != nil {
			errs = append(errs, err)
		} else if storeDialect == sqlengine.DialectSQLServer {
			errs = append(errs, fmt.Errorf("%w: snapshot store on %s", sqlengine.ErrUnsupportedDialect, storeDialect))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Store.Backend))
	}

	if c.Run.Timeout <= 0 {
		errs = append(errs, ErrNonPositiveRunTimeout)
	}

	if c.Run.RunIDGranularity <= 0 {
		errs = append(errs, ErrNonPositiveGranularity)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedLogFormat, c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}
