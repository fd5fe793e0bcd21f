package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/histtext/lexivec/descriptor"
)

type stubClient struct {
	out  *dynamodb.GetItemOutput
	err  error
	last *dynamodb.GetItemInput
}

func (s *stubClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	s.last = in
	return s.out, s.err
}

func TestEmbeddingsPath(t *testing.T) {
	client := &stubClient{out: &dynamodb.GetItemOutput{
		Item: map[string]types.AttributeValue{
			"embeddings_path": &types.AttributeValueMemberS{Value: "s3://vectors/books.vec"},
		},
	}}
	store := NewStore(client, "collections")

	v, err := store.EmbeddingsPath(context.Background(), descriptor.Key{BackendID: 3, Collection: "books"})
	require.NoError(t, err)
	assert.Equal(t, "s3://vectors/books.vec", v)

	require.NotNil(t, client.last)
	assert.Equal(t, "collections", *client.last.TableName)
	id := client.last.Key["backend_id"].(*types.AttributeValueMemberN)
	assert.Equal(t, "3", id.Value)
	coll := client.last.Key["collection"].(*types.AttributeValueMemberS)
	assert.Equal(t, "books", coll.Value)
}

func TestEmbeddingsPath_MissingItem(t *testing.T) {
	store := NewStore(&stubClient{out: &dynamodb.GetItemOutput{}}, "collections")

	v, err := store.EmbeddingsPath(context.Background(), descriptor.Key{BackendID: 1, Collection: "x"})
	require.NoError(t, err)
	assert.Equal(t, descriptor.ValueNone, v)
}

func TestEmbeddingsPath_ClientError(t *testing.T) {
	store := NewStore(&stubClient{err: errors.New("throttled")}, "collections")

	_, err := store.EmbeddingsPath(context.Background(), descriptor.Key{BackendID: 1, Collection: "x"})
	assert.Error(t, err)
}
