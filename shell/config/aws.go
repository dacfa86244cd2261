package config

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrLoadingAWSConfigFailed is returned when the AWS SDK configuration chain fails.
var ErrLoadingAWSConfigFailed = errors.New("loading aws config failed")

// LoadAWSConfig resolves region and credentials through the default AWS SDK chain.
func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, errors.Join(ErrLoadingAWSConfigFailed, err)
	}

	return awsCfg, nil
}

// NewDynamoDBClient creates a DynamoDB client. A non-empty endpoint targets DynamoDB Local or LocalStack.
func NewDynamoDBClient(awsCfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewSecretsManagerResolver creates a SecretResolver backed by the Secrets Manager client for awsCfg.
func NewSecretsManagerResolver(awsCfg aws.Config) *SecretResolver {
	return NewSecretResolver(secretsmanager.NewFromConfig(awsCfg))
}
