package chromem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoprompt/echomem-go/pkg/vector"
	chromemStore "github.com/echoprompt/echomem-go/pkg/vector/chromem"
)

func setupChromemTest(t *testing.T) *chromemStore.Client {
	t.Helper()

	store, err := chromemStore.NewClient(&chromemStore.Config{
		EmbeddingModelDims: 3,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPoint(id int64, tier vector.MemoryType, vec []float64) *vector.Point {
	return &vector.Point{
		ID:     id,
		Vector: vec,
		Payload: vector.Payload{
			MessageID:  id,
			SessionID:  1,
			UserID:     "alice",
			Role:       "user",
			Content:    "test content",
			MemoryType: tier,
			Importance: 0.5,
			TokenCount: 2,
			Timestamp:  time.Now().UTC(),
		},
	}
}

func TestChromemClient_Search_MissingCollection(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	results, err := store.Search(ctx, 999, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemClient_Upsert_Replaces(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	point := testPoint(1, vector.MemoryShortTerm, []float64{1, 0, 0})
	require.NoError(t, store.Upsert(ctx, 1, point))

	point.Payload.Content = "updated content"
	require.NoError(t, store.Upsert(ctx, 1, point))

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated content", results[0].Payload.Content)
}

func TestChromemClient_Upsert_DimensionMismatch(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	err := store.Upsert(ctx, 1, testPoint(1, vector.MemoryShortTerm, []float64{1, 0}))
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestChromemClient_Search_FilterAndPayloadRoundTrip(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	stored := testPoint(5, vector.MemorySummary, []float64{1, 0, 0})
	stored.Payload.DocumentID = "doc-1"
	stored.Payload.Topic = "travel"
	require.NoError(t, store.Upsert(ctx, 1, stored))

	results, err := store.Search(ctx, 1,
		[]float64{1, 0, 0},
		&vector.Filter{UserID: "alice", MemoryType: vector.MemorySummary}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, int64(5), got.Payload.MessageID)
	assert.Equal(t, int64(1), got.Payload.SessionID)
	assert.Equal(t, "alice", got.Payload.UserID)
	assert.Equal(t, "doc-1", got.Payload.DocumentID)
	assert.Equal(t, "travel", got.Payload.Topic)
	assert.Equal(t, vector.MemorySummary, got.Payload.MemoryType)
	assert.InDelta(t, 1.0, got.Score, 0.001)

	none, err := store.Search(ctx, 1, []float64{1, 0, 0}, &vector.Filter{UserID: "bob"}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChromemClient_Search_LimitBeyondCount(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, testPoint(1, vector.MemoryShortTerm, []float64{1, 0, 0})))

	// The limit exceeds the document count; the store clamps instead of
	// surfacing chromem's nResults error.
	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemClient_Search_SinceBound(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	old := testPoint(1, vector.MemoryShortTerm, []float64{1, 0, 0})
	old.Payload.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Upsert(ctx, 1, old))

	recent := testPoint(2, vector.MemoryShortTerm, []float64{1, 0, 0})
	require.NoError(t, store.Upsert(ctx, 1, recent))

	results, err := store.Search(ctx, 1,
		[]float64{1, 0, 0},
		&vector.Filter{Since: time.Now().Add(-24 * time.Hour)}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestChromemClient_Search_SinceWithTightLimit(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	// Five stale points that outrank everything on similarity.
	stale := time.Now().Add(-48 * time.Hour)
	for id := int64(1); id <= 5; id++ {
		p := testPoint(id, vector.MemoryShortTerm, []float64{0.999, 0.0447, 0})
		p.Payload.Timestamp = stale
		require.NoError(t, store.Upsert(ctx, 1, p))
	}

	// Three fresh points with lower similarity to the query.
	fresh := map[int64][]float64{
		11: {0.9, 0.43589, 0},
		12: {0.8, 0.6, 0},
		13: {0.7, 0.71414, 0},
	}
	for id, vec := range fresh {
		require.NoError(t, store.Upsert(ctx, 1, testPoint(id, vector.MemoryShortTerm, vec)))
	}

	// The limit is smaller than the number of stale points, so the fresh
	// matches rank outside the top limit; the timestamp bound must still
	// surface them.
	results, err := store.Search(ctx, 1,
		[]float64{1, 0, 0},
		&vector.Filter{Since: time.Now().Add(-24 * time.Hour)}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(11), results[0].ID)
	assert.Equal(t, int64(12), results[1].ID)
	assert.Equal(t, int64(13), results[2].ID)
}

func TestChromemClient_Search_SinceTruncatesToLimit(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	for id := int64(1); id <= 4; id++ {
		require.NoError(t, store.Upsert(ctx, 1,
			testPoint(id, vector.MemoryShortTerm, []float64{1, 0, 0})))
	}

	results, err := store.Search(ctx, 1,
		[]float64{1, 0, 0},
		&vector.Filter{Since: time.Now().Add(-24 * time.Hour)}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestChromemClient_Get(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, testPoint(3, vector.MemoryLongTerm, []float64{0, 1, 0})))

	point, err := store.Get(ctx, 1, 3)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, int64(3), point.ID)
	assert.Equal(t, vector.MemoryLongTerm, point.Payload.MemoryType)
	assert.InDelta(t, 1.0, point.Vector[1], 0.001)

	missing, err := store.Get(ctx, 1, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	noCollection, err := store.Get(ctx, 999, 3)
	require.NoError(t, err)
	assert.Nil(t, noCollection)
}

func TestChromemClient_DeleteAndDeleteCollection(t *testing.T) {
	store := setupChromemTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, testPoint(1, vector.MemoryShortTerm, []float64{1, 0, 0})))
	require.NoError(t, store.Delete(ctx, 1, 1))

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NoError(t, store.Delete(ctx, 1, 999))
	assert.NoError(t, store.Delete(ctx, 999, 1))

	require.NoError(t, store.Upsert(ctx, 1, testPoint(2, vector.MemoryShortTerm, []float64{1, 0, 0})))
	require.NoError(t, store.DeleteCollection(ctx, 1))

	results, err = store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
