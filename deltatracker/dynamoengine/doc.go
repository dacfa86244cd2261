// Package dynamoengine provides a DynamoDB implementation of deltatracker.SnapshotStore.
//
// Snapshots live in one table with the partition key TableName (S) and the sort key TimeStamp (N).
// GetLatest is a strongly consistent Query on the partition key in descending sort key order with Limit 1.
// Put is a plain PutItem, which overwrites an item with the same key.
//
//	cfg, err := awsconfig.LoadDefaultConfig(ctx)
//	store, err := dynamoengine.NewSnapshotStore(dynamodb.NewFromConfig(cfg),
//		dynamoengine.WithTableName("TableChangeTracking"),
//	)
//	err = store.Provision(ctx) // creates the table with 10/10 provisioned throughput if it is missing
package dynamoengine
