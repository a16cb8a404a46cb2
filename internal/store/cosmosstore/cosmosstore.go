package cosmosstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/tckz/go-visit-counter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Seeder      = (*Store)(nil)
)

// Container is the subset of *azcosmos.ContainerClient the store uses.
type Container interface {
	ReadItem(ctx context.Context, pk azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	PatchItem(ctx context.Context, pk azcosmos.PartitionKey, itemID string, ops azcosmos.PatchOperations, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	CreateItem(ctx context.Context, pk azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
}

var _ Container = (*azcosmos.ContainerClient)(nil)

// Store keeps the counter as a document partitioned by its own id and uses
// the document etag as concurrency token.
type Store struct {
	container Container
}

func New(c Container) *Store {
	return &Store{container: c}
}

// NewFromConnectionString connects to database/container of a Cosmos DB account.
func NewFromConnectionString(connStr, database, container string) (*Store, error) {
	cl, err := azcosmos.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("azcosmos.NewClientFromConnectionString: %w", err)
	}
	cc, err := cl.NewContainer(database, container)
	if err != nil {
		return nil, fmt.Errorf("azcosmos.NewContainer: db=%s, container=%s: %w", database, container, err)
	}
	return New(cc), nil
}

func (s *Store) Load(ctx context.Context, id string) (*counter.Counter, counter.Token, error) {
	res, err := s.container.ReadItem(ctx, azcosmos.NewPartitionKeyString(id), id, nil)
	if err != nil {
		return nil, "", classify("ReadItem", id, err)
	}

	c, err := decode(res.Value)
	if err != nil {
		return nil, "", err
	}
	return c, counter.Token(res.ETag), nil
}

// Save sets /count with a patch conditioned on the etag, leaving any other
// property of the document untouched.
func (s *Store) Save(ctx context.Context, c *counter.Counter, expected counter.Token) error {
	ops := azcosmos.PatchOperations{}
	ops.AppendSet("/count", c.Count)

	etag := azcore.ETag(expected)
	_, err := s.container.PatchItem(ctx, azcosmos.NewPartitionKeyString(c.ID), c.ID, ops, &azcosmos.ItemOptions{
		IfMatchEtag: &etag,
	})
	if err != nil {
		// a deleted document cannot match the etag either
		if statusCode(err) == http.StatusNotFound {
			return fmt.Errorf("cosmosstore.Save: id=%s: %w", c.ID, counter.ErrConflict)
		}
		return classify("PatchItem", c.ID, err)
	}
	return nil
}

// FetchAndIncrement applies a server-side increment patch. The response holds
// the patched document, so the previous count is one less.
func (s *Store) FetchAndIncrement(ctx context.Context, id string) (*counter.Counter, error) {
	ops := azcosmos.PatchOperations{}
	ops.AppendIncrement("/count", 1)

	res, err := s.container.PatchItem(ctx, azcosmos.NewPartitionKeyString(id), id, ops, &azcosmos.ItemOptions{
		EnableContentResponseOnWrite: true,
	})
	if err != nil {
		return nil, classify("PatchItem", id, err)
	}

	c, err := decode(res.Value)
	if err != nil {
		return nil, err
	}
	c.Count--
	return c, nil
}

func (s *Store) Seed(ctx context.Context, c *counter.Counter) (bool, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return false, fmt.Errorf("json.Marshal: %w", err)
	}

	_, err = s.container.CreateItem(ctx, azcosmos.NewPartitionKeyString(c.ID), b, nil)
	if err != nil {
		if statusCode(err) == http.StatusConflict {
			return false, nil
		}
		return false, classify("CreateItem", c.ID, err)
	}
	return true, nil
}

func decode(b []byte) (*counter.Counter, error) {
	var c counter.Counter
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return &c, nil
}

func statusCode(err error) int {
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

func classify(op string, id string, err error) error {
	switch statusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("cosmosstore.%s: id=%s: %w", op, id, counter.ErrNotFound)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("cosmosstore.%s: id=%s: %w", op, id, counter.ErrConflict)
	default:
		return fmt.Errorf("%w: azcosmos.%s: id=%s: %w", counter.ErrStoreUnavailable, op, id, err)
	}
}
