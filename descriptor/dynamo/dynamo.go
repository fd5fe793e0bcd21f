// Package dynamo provides a descriptor.Store backed by a DynamoDB table.
package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/histtext/lexivec/descriptor"
)

// Client is the DynamoDB surface the store needs; satisfied by
// *dynamodb.Client and by test doubles.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store reads collection descriptors from a DynamoDB table keyed by
// (backend_id, collection) with an embeddings_path attribute.
type Store struct {
	client Client
	table  string
}

// NewStore creates a Store over the given table.
func NewStore(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

// EmbeddingsPath implements descriptor.Store.
func (s *Store) EmbeddingsPath(ctx context.Context, key descriptor.Key) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"backend_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(key.BackendID), 10)},
			"collection": &types.AttributeValueMemberS{Value: key.Collection},
		},
		ProjectionExpression: aws.String("embeddings_path"),
	})
	if err != nil {
		return "", fmt.Errorf("descriptor lookup %s: %w", key, err)
	}

	attr, ok := out.Item["embeddings_path"]
	if !ok {
		return descriptor.ValueNone, nil
	}
	sv, ok := attr.(*types.AttributeValueMemberS)
	if !ok || sv.Value == "" {
		return descriptor.ValueNone, nil
	}
	return sv.Value, nil
}
