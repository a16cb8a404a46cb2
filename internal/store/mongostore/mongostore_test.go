package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/go-visit-counter/internal/counter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	coll := cl.Database("visit_counter_test").Collection("counter_" + uuid.New().String())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		coll.Drop(ctx)
		cl.Disconnect(ctx)
	})
	return New(coll)
}

func TestLoadSave(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, _, err := s.Load(ctx, "1")
	assert.ErrorIs(t, err, counter.ErrNotFound)

	created, err := s.Seed(ctx, &counter.Counter{ID: "1", Count: 42})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Seed(ctx, &counter.Counter{ID: "1", Count: 0})
	require.NoError(t, err)
	assert.False(t, created)

	c, tok, err := s.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, &counter.Counter{ID: "1", Count: 42}, c)

	require.NoError(t, s.Save(ctx, &counter.Counter{ID: "1", Count: 43}, tok))
	err = s.Save(ctx, &counter.Counter{ID: "1", Count: 44}, tok)
	assert.ErrorIs(t, err, counter.ErrConflict)

	c, _, err = s.Load(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 43, c.Count)
}

func TestFetchAndIncrement(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.FetchAndIncrement(ctx, "1")
	assert.ErrorIs(t, err, counter.ErrNotFound)
	_, _, err = s.Load(ctx, "1")
	assert.ErrorIs(t, err, counter.ErrNotFound, "must not upsert")

	_, err = s.Seed(ctx, &counter.Counter{ID: "1", Count: 42})
	require.NoError(t, err)

	c, err := s.FetchAndIncrement(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, c.Count)

	c, _, err = s.Load(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 43, c.Count)
}

func TestSaveBadToken(t *testing.T) {
	s := New(nil)
	err := s.Save(context.Background(), &counter.Counter{ID: "1", Count: 1}, "not-a-version")
	assert.ErrorIs(t, err, counter.ErrConflict)
}

func TestVersionFilter(t *testing.T) {
	assert.Equal(t, bson.M{"_id": "1", "version": int64(3)}, versionFilter("1", 3))

	f := versionFilter("1", 0)
	assert.Equal(t, "1", f["_id"])
	assert.Equal(t, bson.A{
		bson.M{"version": int64(0)},
		bson.M{"version": bson.M{"$exists": false}},
	}, f["$or"])
}

func TestCounterWithoutVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	// created by hand as {_id, count} only
	_, err := s.coll.InsertOne(ctx, bson.M{"_id": "1", "count": int64(42)})
	require.NoError(t, err)

	c, tok, err := s.Load(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, c.Count)
	assert.Equal(t, counter.Token("0"), tok)

	svc := counter.NewService(s, counter.WithBackoff(0, 0))
	c, err = svc.Visit(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 42, c.Count)

	c, err = svc.Visit(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 43, c.Count)

	c, tok, err = s.Load(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 44, c.Count)
	assert.Equal(t, counter.Token("2"), tok)
}
