package dynamoengine_test

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamoDB keeps items in memory and understands the requests the store issues.
type fakeDynamoDB struct {
	mu sync.Mutex

	tables          map[string]types.TableStatus
	creatingReports int
	items           map[string][]map[string]types.AttributeValue

	createInputs []*dynamodb.CreateTableInput
	queryInputs  []*dynamodb.QueryInput
	describes    int

	describeErr error
	createErr   error
	putErr      error
	queryErr    error
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{
		tables: map[string]types.TableStatus{},
		items:  map[string][]map[string]types.AttributeValue{},
	}
}

func (f *fakeDynamoDB) withExistingTable(name string) *fakeDynamoDB {
	f.tables[name] = types.TableStatusActive
	return f
}

func (f *fakeDynamoDB) DescribeTable(
	ctx context.Context,
	params *dynamodb.DescribeTableInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.DescribeTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.describes++

	if f.describeErr != nil {
		return nil, f.describeErr
	}

	status, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}

	if status == types.TableStatusCreating {
		if f.creatingReports > 0 {
			f.creatingReports--
		} else {
			status = types.TableStatusActive
			f.tables[aws.ToString(params.TableName)] = status
		}
	}

	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: params.TableName, TableStatus: status},
	}, nil
}

func (f *fakeDynamoDB) CreateTable(
	ctx context.Context,
	params *dynamodb.CreateTableInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.CreateTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.createInputs = append(f.createInputs, params)

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.tables[aws.ToString(params.TableName)] = types.TableStatusCreating

	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{TableName: params.TableName, TableStatus: types.TableStatusCreating},
	}, nil
}

func (f *fakeDynamoDB) PutItem(
	ctx context.Context,
	params *dynamodb.PutItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.putErr != nil {
		return nil, f.putErr
	}

	table := aws.ToString(params.TableName)
	if _, ok := f.tables[table]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}

	partition := stringOf(params.Item["TableName"])
	sortKey := stringOf(params.Item["TimeStamp"])

	items := slices.DeleteFunc(f.items[table], func(item map[string]types.AttributeValue) bool {
		return stringOf(item["TableName"]) == partition && stringOf(item["TimeStamp"]) == sortKey
	})
	f.items[table] = append(items, params.Item)

	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) Query(
	ctx context.Context,
	params *dynamodb.QueryInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.queryInputs = append(f.queryInputs, params)

	if f.queryErr != nil {
		return nil, f.queryErr
	}

	if _, ok := f.tables[aws.ToString(params.TableName)]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}

	partition := stringOf(params.ExpressionAttributeValues[":pk"])

	var matching []map[string]types.AttributeValue
	for _, item := range f.items[aws.ToString(params.TableName)] {
		if stringOf(item["TableName"]) == partition {
			matching = append(matching, item)
		}
	}

	slices.SortFunc(matching, func(a, b map[string]types.AttributeValue) int {
		return cmp.Compare(sortKeyOf(a), sortKeyOf(b))
	})

	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		slices.Reverse(matching)
	}

	if params.Limit != nil && int(*params.Limit) < len(matching) {
		matching = matching[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: matching, Count: int32(len(matching))}, nil //nolint:gosec
}

func (f *fakeDynamoDB) seed(table string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items[table] = append(f.items[table], item)
}

func (f *fakeDynamoDB) lastQuery() *dynamodb.QueryInput {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queryInputs) == 0 {
		return nil
	}

	return f.queryInputs[len(f.queryInputs)-1]
}

func stringOf(value types.AttributeValue) string {
	switch v := value.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

func sortKeyOf(item map[string]types.AttributeValue) int64 {
	parsed, err := strconv.ParseInt(stringOf(item["TimeStamp"]), 10, 64)
	if err != nil {
		panic(errors.Join(errors.New("fake item without numeric TimeStamp"), err))
	}

	return parsed
}
