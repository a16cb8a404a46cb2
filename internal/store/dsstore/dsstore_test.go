package dsstore

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/go-visit-counter/internal/counter"
	"golang.org/x/sync/errgroup"
)

// Runs against the datastore emulator:
//
//	gcloud beta emulators datastore start
//	$(gcloud beta emulators datastore env-init)
func newStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST is not set")
	}

	pjID := os.Getenv("DATASTORE_PROJECT_ID")
	if pjID == "" {
		pjID = "test-project"
	}
	cl, err := datastore.NewClient(context.Background(), pjID)
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })

	// isolate runs from each other
	return New(cl, "Counter", "test-"+uuid.New().String())
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
	assert.EqualValues(t, 42, c.Count)

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

	_, err = s.Seed(ctx, &counter.Counter{ID: "1", Count: 7})
	require.NoError(t, err)

	c, err := s.FetchAndIncrement(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, c.Count)
}

func TestConcurrentVisits(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Seed(ctx, &counter.Counter{ID: "1", Count: 0})
	require.NoError(t, err)

	const k = 5
	svc := counter.NewService(s, counter.WithMaxAttempts(k*2))
	got := make([]int64, k)
	eg := errgroup.Group{}
	for i := 0; i < k; i++ {
		index := i
		eg.Go(func() error {
			c, err := svc.Visit(ctx)
			if err != nil {
				return err
			}
			got[index] = c.Count
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.ElementsMatch(t, []int64{0, 1, 2, 3, 4}, got)
	c, _, err := s.Load(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, k, c.Count)
}
