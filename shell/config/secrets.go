package config

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrResolvingSecretFailed is returned when a secret cannot be fetched or holds no usable value.
	ErrResolvingSecretFailed = errors.New("resolving secret failed")

	// ErrEmptySecret is returned for secrets without a string value.
	ErrEmptySecret = errors.New("secret has no string value")
)

// SecretsManagerAPI is the part of the Secrets Manager client the resolver uses.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver looks up connection strings in AWS Secrets Manager.
//
// A secret is either the plain DSN or a JSON object with a "dsn" field.
type SecretResolver struct {
	client SecretsManagerAPI
}

// NewSecretResolver creates a resolver for a Secrets Manager client.
func NewSecretResolver(client SecretsManagerAPI) *SecretResolver {
	return &SecretResolver{client: client}
}

// Resolve returns the DSN stored under secretID.
func (r *SecretResolver) Resolve(ctx context.Context, secretID string) (string, error) {
	output, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return "", errors.Join(ErrResolvingSecretFailed, err)
	}

	value := strings.TrimSpace(aws.ToString(output.SecretString))
	if value == "" {
		return "", errors.Join(ErrResolvingSecretFailed, ErrEmptySecret)
	}

	if !strings.HasPrefix(value, "{") {
		return value, nil
	}

	var structured struct {
		DSN string `json:"dsn"`
	}
	if unmarshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(value, &structured); unmarshalErr != nil {
		return "", errors.Join(ErrResolvingSecretFailed, unmarshalErr)
	}

	if structured.DSN == "" {
		return "", errors.Join(ErrResolvingSecretFailed, ErrEmptySecret)
	}

	return structured.DSN, nil
}

// resolveDSN prefers an explicit DSN over a secret reference.
func resolveDSN(ctx context.Context, resolver *SecretResolver, dsn, secretID string) (string, error) {
	if dsn != "" || secretID == "" {
		return dsn, nil
	}

	if resolver == nil {
		return "", errors.Join(ErrResolvingSecretFailed, errors.New("no secret resolver configured"))
	}

	return resolver.Resolve(ctx, secretID)
}
