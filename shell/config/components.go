package config

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/dynamoengine"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine"
)

// Components holds the wired source and snapshot store of one tracker process.
type Components struct {
	Source *sqlengine.Source
	Store  deltatracker.ProvisionableSnapshotStore

	closers []func()
}

// Close releases every connection opened by BuildComponents.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}

	c.closers = nil
}

// BuildComponents opens the source and snapshot store connections described by cfg.
// The AWS configuration is only loaded when DynamoDB or Secrets Manager is involved.
func BuildComponents(ctx context.Context, cfg Config, logger deltatracker.Logger) (*Components, error) {
	components := &Components{}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}

		loaded, err := LoadAWSConfig(ctx)
		if err != nil {
			return aws.Config{}, err
		}

		awsCfg = &loaded

		return loaded, nil
	}

	var resolver *SecretResolver
	if cfg.Source.DSNSecretID != "" || cfg.Store.DSNSecretID != "" {
		loaded, err := loadAWS()
		if err != nil {
			return nil, err
		}

		resolver = NewSecretsManagerResolver(loaded)
	}

	source, err := components.buildSource(ctx, cfg, resolver, logger)
	if err != nil {
		components.Close()
		return nil, err
	}

	components.Source = source

	store, err := components.buildStore(ctx, cfg, resolver, loadAWS, logger)
	if err != nil {
		components.Close()
		return nil, err
	}

	components.Store = store

	return components, nil
}

func (c *Components) buildSource(
	ctx context.Context,
	cfg Config,
	resolver *SecretResolver,
	logger deltatracker.Logger,
) (*sqlengine.Source, error) {
	dialect, err := sqlengine.ParseDialect(cfg.Source.Dialect)
	if err != nil {
		return nil, err
	}

	dsn, err := resolveDSN(ctx, resolver, cfg.Source.DSN, cfg.Source.DSNSecretID)
	if err != nil {
		return nil, err
	}

	options := []sqlengine.SourceOption{sqlengine.WithSourceDialect(dialect)}
	if cfg.Source.PrimaryKeyColumn != "" {
		options = append(options, sqlengine.WithPrimaryKeyColumn(cfg.Source.PrimaryKeyColumn))
	}

	if cfg.Source.ModifiedColumn != "" {
		options = append(options, sqlengine.WithModifiedColumn(cfg.Source.ModifiedColumn))
	}

	if cfg.Source.CreatedColumn != "" {
		options = append(options, sqlengine.WithCreatedColumn(cfg.Source.CreatedColumn))
	}

	if logger != nil {
		options = append(options, sqlengine.WithSourceLogger(logger))
	}

	switch cfg.Source.Adapter {
	case AdapterPGX:
		pool, poolErr := NewPGXPool(ctx, dsn)
		if poolErr != nil {
			return nil, poolErr
		}

		c.closers = append(c.closers, pool.Close)

		return sqlengine.NewSourceFromPGXPool(pool, cfg.Source.Table, options...)

	case AdapterSQLX:
		db, openErr := OpenSQLX(ctx, dialect, dsn)
		if openErr != nil {
			return nil, openErr
		}

		c.closers = append(c.closers, func() { _ = db.Close() })

		return sqlengine.NewSourceFromSQLX(db, cfg.Source.Table, options...)

	default:
		db, openErr := OpenSQLDB(ctx, dialect, dsn)
		if openErr != nil {
			return nil, openErr
		}

		c.closers = append(c.closers, func() { _ = db.Close() })

		return sqlengine.NewSourceFromSQLDB(db, cfg.Source.Table, options...)
	}
}

func (c *Components) buildStore(
	ctx context.Context,
	cfg Config,
	resolver *SecretResolver,
	loadAWS func() (aws.Config, error),
	logger deltatracker.Logger,
) (deltatracker.ProvisionableSnapshotStore, error) {
	switch cfg.Store.Backend {
	case StoreBackendDynamoDB:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}

		return NewDynamoDBSnapshotStore(NewDynamoDBClient(awsCfg, cfg.DynamoDB.Endpoint), cfg, logger)

	case StoreBackendSQL:
		dialect, err := sqlengine.ParseDialect(cfg.Store.Dialect)
		if err != nil {
			return nil, err
		}

		dsn, err := resolveDSN(ctx, resolver, cfg.Store.DSN, cfg.Store.DSNSecretID)
		if err != nil {
			return nil, err
		}

		options := []sqlengine.StoreOption{sqlengine.WithStoreDialect(dialect)}
		if cfg.Store.Table != "" {
			options = append(options, sqlengine.WithStoreTableName(cfg.Store.Table))
		}

		if logger != nil {
			options = append(options, sqlengine.WithStoreLogger(logger))
		}

		if dialect == sqlengine.DialectPostgres {
			pool, poolErr := NewPGXPool(ctx, dsn)
			if poolErr != nil {
				return nil, poolErr
			}

			c.closers = append(c.closers, pool.Close)

			return sqlengine.NewSnapshotStoreFromPGXPool(pool, options...)
		}

		db, openErr := OpenSQLDB(ctx, dialect, dsn)
		if openErr != nil {
			return nil, openErr
		}

		c.closers = append(c.closers, func() { _ = db.Close() })

		return sqlengine.NewSnapshotStoreFromSQLDB(db, options...)

	default:
		return nil, errors.Join(ErrInvalidConfig, ErrUnsupportedBackend)
	}
}

// NewDynamoDBSnapshotStore creates the DynamoDB store with the table and capacity settings from cfg.
func NewDynamoDBSnapshotStore(
	client dynamoengine.DynamoDBAPI,
	cfg Config,
	logger deltatracker.Logger,
) (*dynamoengine.SnapshotStore, error) {
	options := []dynamoengine.Option{
		dynamoengine.WithProvisionedThroughput(cfg.DynamoDB.ReadCapacity, cfg.DynamoDB.WriteCapacity),
	}

	if cfg.Store.Table != "" {
		options = append(options, dynamoengine.WithTableName(cfg.Store.Table))
	}

	if cfg.DynamoDB.OnDemand {
		options = append(options, dynamoengine.WithOnDemandBilling())
	}

	if logger != nil {
		options = append(options, dynamoengine.WithLogger(logger))
	}

	return dynamoengine.NewSnapshotStore(client, options...)
}

// EngineOptions translates the run settings into engine options.
func (c Config) EngineOptions() []deltatracker.Option {
	options := []deltatracker.Option{deltatracker.WithRunIDGranularity(c.Run.RunIDGranularity)}

	if c.Run.Strict {
		options = append(options, deltatracker.WithStrictConsistency())
	}

	if c.Run.SequentialReads {
		options = append(options, deltatracker.WithSequentialReads())
	}

	return options
}
