package dynamoengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

const (
	defaultTableName     = "TableChangeTracking"
	defaultReadCapacity  = 10
	defaultWriteCapacity = 10
	defaultMaxWait       = 5 * time.Minute
)

var (
	// ErrNilClient is returned when the store is constructed without a DynamoDB client.
	ErrNilClient = errors.New("dynamodb client must not be nil")

	// ErrEmptyTableName is returned when an empty table name is supplied.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrInvalidCapacity is returned for provisioned throughput values that are not positive.
	ErrInvalidCapacity = errors.New("provisioned capacity must be positive")

	// ErrInvalidMaxWait is returned when the provisioning wait limit is not positive.
	ErrInvalidMaxWait = errors.New("maximum wait for the table must be positive")
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses. *dynamodb.Client satisfies it.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// SnapshotStore persists snapshots in a DynamoDB table keyed by (TableName, TimeStamp).
type SnapshotStore struct {
	client        DynamoDBAPI
	tableName     string
	readCapacity  int64
	writeCapacity int64
	onDemand      bool
	maxWait       time.Duration
	waiterOptions []func(*dynamodb.TableExistsWaiterOptions)
	logger        deltatracker.Logger
	provisioning  bool

	provisionMu sync.Mutex
	provisioned bool
}

var _ deltatracker.ProvisionableSnapshotStore = (*SnapshotStore)(nil)

// Option defines a functional option for configuring the SnapshotStore.
type Option func(*SnapshotStore) error

// WithTableName sets the DynamoDB table name, the default is "TableChangeTracking".
func WithTableName(tableName string) Option {
	return func(s *SnapshotStore) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithProvisionedThroughput sets the read and write capacity units Provision creates the table with.
func WithProvisionedThroughput(readCapacity, writeCapacity int64) Option {
	return func(s *SnapshotStore) error {
		if readCapacity <= 0 || writeCapacity <= 0 {
			return ErrInvalidCapacity
		}

		s.readCapacity = readCapacity
		s.writeCapacity = writeCapacity

		return nil
	}
}

// WithOnDemandBilling makes Provision create the table in PAY_PER_REQUEST mode.
func WithOnDemandBilling() Option {
	return func(s *SnapshotStore) error {
		s.onDemand = true
		return nil
	}
}

// WithMaxWait limits how long Provision waits for a new table to become active, the default is five minutes.
func WithMaxWait(maxWait time.Duration, waiterOptions ...func(*dynamodb.TableExistsWaiterOptions)) Option {
	return func(s *SnapshotStore) error {
		if maxWait <= 0 {
			return ErrInvalidMaxWait
		}

		s.maxWait = maxWait
		s.waiterOptions = waiterOptions

		return nil
	}
}

// WithoutProvisioning stops the store from creating its table on first use.
// Provision can still be called explicitly.
func WithoutProvisioning() Option {
	return func(s *SnapshotStore) error {
		s.provisioning = false
		return nil
	}
}

// WithLogger sets the logger for the SnapshotStore.
//
// Debug level: every request with its duration
// Info level: table status after provisioning
// Error level: failed requests.
func WithLogger(logger deltatracker.Logger) Option {
	return func(s *SnapshotStore) error {
		s.logger = logger
		return nil
	}
}

// NewSnapshotStore creates a new SnapshotStore with optional configuration.
func NewSnapshotStore(client DynamoDBAPI, options ...Option) (*SnapshotStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	s := &SnapshotStore{
		client:        client,
		tableName:     defaultTableName,
		readCapacity:  defaultReadCapacity,
		writeCapacity: defaultWriteCapacity,
		maxWait:       defaultMaxWait,
		provisioning:  true,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TableName returns the DynamoDB table the store writes to.
func (s *SnapshotStore) TableName() string {
	return s.tableName
}

// Provision creates the snapshot table if it does not exist yet and waits until it is active.
func (s *SnapshotStore) Provision(ctx context.Context) error {
	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	return s.provision(ctx)
}

func (s *SnapshotStore) ensureProvisioned(ctx context.Context) error {
	if !s.provisioning {
		return nil
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	if s.provisioned {
		return nil
	}

	return s.provision(ctx)
}

func (s *SnapshotStore) provision(ctx context.Context) error {
	describeInput := &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}

	start := time.Now()
	described, describeErr := s.client.DescribeTable(ctx, describeInput)
	s.logRequest(requestDescribeTable, time.Since(start))

	if describeErr == nil {
		s.provisioned = true
		s.logTableStatus(described.Table)
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(describeErr, &notFound) {
		s.logError(logMsgRequestFailed, describeErr, logAttrRequest, requestDescribeTable)
		return errors.Join(deltatracker.ErrProvisioningFailed, describeErr)
	}

	start = time.Now()
	_, createErr := s.client.CreateTable(ctx, s.createTableInput())
	s.logRequest(requestCreateTable, time.Since(start))

	if createErr != nil {
		s.logError(logMsgRequestFailed, createErr, logAttrRequest, requestCreateTable)
		return errors.Join(deltatracker.ErrProvisioningFailed, createErr)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client, s.waiterOptions...)

	active, waitErr := waiter.WaitForOutput(ctx, describeInput, s.maxWait)
	if waitErr != nil {
		s.logError(logMsgRequestFailed, waitErr, logAttrRequest, requestWaitTableExists)
		return errors.Join(deltatracker.ErrProvisioningFailed, waitErr)
	}

	s.provisioned = true
	s.logTableStatus(active.Table)

	return nil
}

func (s *SnapshotStore) createTableInput() *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrTableName), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrTimeStamp), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrTableName), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrTimeStamp), AttributeType: types.ScalarAttributeTypeN},
		},
	}

	if s.onDemand {
		input.BillingMode = types.BillingModePayPerRequest
		return input
	}

	input.BillingMode = types.BillingModeProvisioned
	input.ProvisionedThroughput = &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(s.readCapacity),
		WriteCapacityUnits: aws.Int64(s.writeCapacity),
	}

	return input
}

// GetLatest returns the snapshot with the largest TimeStamp for tableID, or nil if there is none.
func (s *SnapshotStore) GetLatest(ctx context.Context, tableID string) (*deltatracker.Snapshot, error) {
	if tableID == "" {
		return nil, deltatracker.ErrEmptyTableID
	}

	if err := s.ensureProvisioned(ctx); err != nil {
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, err)
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(s.tableName),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": attrTableName},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: tableID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	}

	start := time.Now()
	output, queryErr := s.client.Query(ctx, input)
	s.logRequest(requestQuery, time.Since(start))

	if queryErr != nil {
		s.logError(logMsgRequestFailed, queryErr, logAttrRequest, requestQuery, logAttrTableID, tableID)
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, queryErr)
	}

	if len(output.Items) == 0 {
		return nil, nil
	}

	snapshot, decodeErr := snapshotFromItem(output.Items[0])
	if decodeErr != nil {
		s.logError(logMsgDecodeFailed, decodeErr, logAttrTableID, tableID)
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, deltatracker.ErrDecodingSnapshotFailed, decodeErr)
	}

	return &snapshot, nil
}

// Put writes the snapshot. An item with the same (TableName, TimeStamp) is overwritten.
// Unless the store was created WithoutProvisioning, the first GetLatest or Put provisions the table.
func (s *SnapshotStore) Put(ctx context.Context, snapshot deltatracker.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, err)
	}

	item, encodeErr := itemFromSnapshot(snapshot)
	if encodeErr != nil {
		s.logError(logMsgEncodeFailed, encodeErr, logAttrTableID, snapshot.TableID)
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, encodeErr)
	}

	if err := s.ensureProvisioned(ctx); err != nil {
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}

	start := time.Now()
	_, putErr := s.client.PutItem(ctx, input)
	s.logRequest(requestPutItem, time.Since(start))

	if putErr != nil {
		s.logError(logMsgRequestFailed, putErr, logAttrRequest, requestPutItem, logAttrTableID, snapshot.TableID)
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, putErr)
	}

	return nil
}
