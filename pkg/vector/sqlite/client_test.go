package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoprompt/echomem-go/pkg/vector"
	sqliteStore "github.com/echoprompt/echomem-go/pkg/vector/sqlite"
)

func setupSQLiteTest(t *testing.T) *sqliteStore.Client {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath:             filepath.Join(t.TempDir(), "vectors.db"),
		EmbeddingModelDims: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, store)

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

func TestSQLiteClient_EnsureCollection_Idempotent(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, 1))
	assert.NoError(t, store.EnsureCollection(ctx, 1))
}

func TestSQLiteClient_Upsert_Replaces(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	point := testPoint(100, vector.MemoryShortTerm, []float64{1, 0, 0})
	require.NoError(t, store.Upsert(ctx, 1, point))

	point.Payload.Content = "updated content"
	require.NoError(t, store.Upsert(ctx, 1, point))

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated content", results[0].Payload.Content)
}

func TestSQLiteClient_Upsert_DimensionMismatch(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	point := testPoint(1, vector.MemoryShortTerm, []float64{1, 0})
	err := store.Upsert(ctx, 1, point)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestSQLiteClient_Search_MissingCollection(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	results, err := store.Search(ctx, 999, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteClient_Search_OrderAndFilter(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	// Scores against query [1,0,0] equal the first component.
	require.NoError(t, store.Upsert(ctx, 1, testPoint(1, vector.MemoryShortTerm, []float64{0.9, 0.43589, 0})))
	require.NoError(t, store.Upsert(ctx, 1, testPoint(2, vector.MemorySummary, []float64{0.95, 0.31225, 0})))
	require.NoError(t, store.Upsert(ctx, 1, testPoint(3, vector.MemoryLongTerm, []float64{0.2, 0.97980, 0})))

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, int64(1), results[1].ID)
	assert.Equal(t, int64(3), results[2].ID)
	assert.InDelta(t, 0.95, results[0].Score, 0.01)
	assert.Equal(t, int64(1), results[0].Payload.SessionID)

	filtered, err := store.Search(ctx, 1,
		[]float64{1, 0, 0},
		&vector.Filter{MemoryType: vector.MemorySummary}, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(2), filtered[0].ID)

	none, err := store.Search(ctx, 1, []float64{1, 0, 0}, &vector.Filter{UserID: "bob"}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteClient_Search_Limit(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Upsert(ctx, 1, testPoint(i, vector.MemoryShortTerm, []float64{1, 0, 0})))
	}

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteClient_Get(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	stored := testPoint(7, vector.MemorySummary, []float64{0, 1, 0})
	require.NoError(t, store.Upsert(ctx, 1, stored))

	point, err := store.Get(ctx, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, int64(7), point.ID)
	assert.Equal(t, []float64{0, 1, 0}, point.Vector)
	assert.Equal(t, vector.MemorySummary, point.Payload.MemoryType)
	assert.Equal(t, int64(1), point.Payload.SessionID)

	missing, err := store.Get(ctx, 1, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	noCollection, err := store.Get(ctx, 999, 7)
	require.NoError(t, err)
	assert.Nil(t, noCollection)
}

func TestSQLiteClient_Delete(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, testPoint(1, vector.MemoryShortTerm, []float64{1, 0, 0})))
	require.NoError(t, store.Delete(ctx, 1, 1))

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Absent point and absent collection are both no-ops.
	assert.NoError(t, store.Delete(ctx, 1, 999))
	assert.NoError(t, store.Delete(ctx, 999, 1))
}

func TestSQLiteClient_DeleteCollection(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, testPoint(1, vector.MemoryShortTerm, []float64{1, 0, 0})))
	require.NoError(t, store.DeleteCollection(ctx, 1))

	results, err := store.Search(ctx, 1, []float64{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NoError(t, store.DeleteCollection(ctx, 999))
}
