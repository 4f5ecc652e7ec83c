package core_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoprompt/echomem-go/pkg/core"
	"github.com/echoprompt/echomem-go/pkg/relational"
	relationalSqlite "github.com/echoprompt/echomem-go/pkg/relational/sqlite"
	"github.com/echoprompt/echomem-go/pkg/vector"
	chromemStore "github.com/echoprompt/echomem-go/pkg/vector/chromem"
)

// stubEmbedder maps known texts to fixed three-dimensional vectors. Unknown
// texts embed to the unit query vector.
type stubEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	s.calls++
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float64{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }
func (s *stubEmbedder) Close() error    { return nil }

// vecForScore builds a unit vector whose cosine similarity against the
// query vector [1,0,0] equals score.
func vecForScore(score float64) []float64 {
	return []float64{score, math.Sqrt(1 - score*score), 0}
}

func newTestEngine(t *testing.T, emb *stubEmbedder) *core.Engine {
	t.Helper()

	store, err := chromemStore.NewClient(&chromemStore.Config{EmbeddingModelDims: 3})
	require.NoError(t, err)

	engine, err := core.NewEngineFromComponents(store, emb, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestEngine_MultiTierSearch_EmptySession(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})
	ctx := context.Background()

	results, err := engine.MultiTierSearch(ctx, "anything", 42)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_MultiTierSearch_EmptyQuery(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})

	_, err := engine.MultiTierSearch(context.Background(), "   ", 1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestEngine_MultiTierSearch_RanksAcrossTiers(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"memory A": vecForScore(0.9),
		"memory B": vecForScore(0.95),
		"memory C": vecForScore(0.2),
	}}
	engine := newTestEngine(t, emb)
	ctx := context.Background()

	_, err := engine.Remember(ctx, 1, "memory A", core.WithMemoryType(vector.MemoryShortTerm))
	require.NoError(t, err)
	_, err = engine.Remember(ctx, 1, "memory B", core.WithMemoryType(vector.MemorySummary))
	require.NoError(t, err)
	_, err = engine.Remember(ctx, 1, "memory C", core.WithMemoryType(vector.MemoryLongTerm))
	require.NoError(t, err)

	results, err := engine.MultiTierSearch(ctx, "the query", 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Ordered by score, not by tier.
	assert.Equal(t, "memory B", results[0].Payload.Content)
	assert.Equal(t, "memory A", results[1].Payload.Content)
	assert.Equal(t, "memory C", results[2].Payload.Content)

	seen := map[int64]bool{}
	for _, r := range results {
		assert.False(t, seen[r.ID], "duplicate point ID in results")
		seen[r.ID] = true
	}
}

func TestEngine_MultiTierSearch_EmbedsQueryOnce(t *testing.T) {
	emb := &stubEmbedder{}
	engine := newTestEngine(t, emb)
	ctx := context.Background()

	_, err := engine.Remember(ctx, 1, "some memory")
	require.NoError(t, err)

	emb.calls = 0
	_, err = engine.MultiTierSearch(ctx, "the query", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
}

func TestEngine_MultiTierSearch_UserScoping(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})
	ctx := context.Background()

	_, err := engine.Remember(ctx, 1, "alice's memory", core.WithUserID("alice"))
	require.NoError(t, err)

	asBob, err := engine.MultiTierSearch(ctx, "memory", 1, core.WithUserIDForSearch("bob"))
	require.NoError(t, err)
	assert.Empty(t, asBob)

	asAlice, err := engine.MultiTierSearch(ctx, "memory", 1, core.WithUserIDForSearch("alice"))
	require.NoError(t, err)
	assert.Len(t, asAlice, 1)
}

func TestEngine_MultiTierSearch_RecencyCutoffShortTermOnly(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_, err := engine.Remember(ctx, 1, "old short term",
		core.WithMemoryType(vector.MemoryShortTerm), core.WithTimestamp(old))
	require.NoError(t, err)
	_, err = engine.Remember(ctx, 1, "old summary",
		core.WithMemoryType(vector.MemorySummary), core.WithTimestamp(old))
	require.NoError(t, err)
	_, err = engine.Remember(ctx, 1, "fresh short term",
		core.WithMemoryType(vector.MemoryShortTerm))
	require.NoError(t, err)

	results, err := engine.MultiTierSearch(ctx, "memory", 1,
		core.WithRecencyCutoff(24*time.Hour))
	require.NoError(t, err)

	contents := map[string]bool{}
	for _, r := range results {
		contents[r.Payload.Content] = true
	}
	assert.False(t, contents["old short term"], "cutoff should exclude stale short-term records")
	assert.True(t, contents["old summary"], "cutoff only applies to the short-term tier")
	assert.True(t, contents["fresh short term"])

	all, err := engine.MultiTierSearch(ctx, "memory", 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEngine_Remember_Validation(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})
	ctx := context.Background()

	_, err := engine.Remember(ctx, 1, "  ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = engine.Remember(ctx, 1, "content", core.WithMemoryType("working"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestEngine_Remember_PayloadDefaults(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})
	ctx := context.Background()

	point, err := engine.Remember(ctx, 1, "hello world")
	require.NoError(t, err)

	assert.NotZero(t, point.ID)
	assert.Equal(t, int64(1), point.Payload.SessionID)
	assert.Equal(t, "user", point.Payload.Role)
	assert.Equal(t, vector.MemoryShortTerm, point.Payload.MemoryType)
	assert.Equal(t, 0.5, point.Payload.Importance)
	assert.Equal(t, "chat", point.Payload.SourceType)
	assert.Equal(t, "en", point.Payload.Language)
	assert.Greater(t, point.Payload.TokenCount, 0)
	assert.False(t, point.Payload.Timestamp.IsZero())
}

func TestEngine_UpdateMemory(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"original": vecForScore(0.9),
		"edited":   vecForScore(0.5),
	}}
	engine := newTestEngine(t, emb)
	ctx := context.Background()

	point, err := engine.Remember(ctx, 1, "original")
	require.NoError(t, err)

	// Tier-only change keeps the existing vector.
	emb.calls = 0
	newTier := string(vector.MemoryLongTerm)
	updated, err := engine.UpdateMemory(ctx, 1, point.ID, &core.MemoryUpdate{MemoryType: &newTier})
	require.NoError(t, err)
	assert.Equal(t, 0, emb.calls, "tier change must not re-embed")
	assert.Equal(t, vector.MemoryLongTerm, updated.Payload.MemoryType)
	assert.InDelta(t, 0.9, updated.Vector[0], 0.001)

	// Content change regenerates the embedding.
	newContent := "edited"
	updated, err = engine.UpdateMemory(ctx, 1, point.ID, &core.MemoryUpdate{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, "edited", updated.Payload.Content)
	assert.InDelta(t, 0.5, updated.Vector[0], 0.001)

	// Unknown point.
	_, err = engine.UpdateMemory(ctx, 1, 99999, &core.MemoryUpdate{Content: &newContent})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngine_ForgetAndForgetSession(t *testing.T) {
	engine := newTestEngine(t, &stubEmbedder{})
	ctx := context.Background()

	point, err := engine.Remember(ctx, 1, "to be forgotten")
	require.NoError(t, err)

	require.NoError(t, engine.Forget(ctx, 1, point.ID))
	results, err := engine.MultiTierSearch(ctx, "forgotten", 1)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Absent point and absent session are no-ops.
	assert.NoError(t, engine.Forget(ctx, 1, 424242))
	assert.NoError(t, engine.ForgetSession(ctx, 999))

	_, err = engine.Remember(ctx, 2, "session memory")
	require.NoError(t, err)
	require.NoError(t, engine.ForgetSession(ctx, 2))

	results, err = engine.MultiTierSearch(ctx, "session", 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_WithRelationalStore(t *testing.T) {
	rel, err := relationalSqlite.NewStore(&relationalSqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "relational.db"),
	})
	require.NoError(t, err)

	store, err := chromemStore.NewClient(&chromemStore.Config{EmbeddingModelDims: 3})
	require.NoError(t, err)

	engine, err := core.NewEngineFromComponents(store, &stubEmbedder{}, rel)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	ctx := context.Background()
	user, err := rel.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)
	session, err := rel.CreateSession(ctx, "chat", user.ID)
	require.NoError(t, err)

	point, err := engine.Remember(ctx, session.ID, "hello")
	require.NoError(t, err)

	// The point reuses the relational message ID and carries the resolved
	// owner identifier.
	msg, err := rel.GetMessage(ctx, point.Payload.MessageID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, point.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "alice", point.Payload.UserID)

	// Retrieval is scoped to the owner without an explicit option.
	results, err := engine.MultiTierSearch(ctx, "hello", session.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Forget removes the message row alongside the point.
	require.NoError(t, engine.Forget(ctx, session.ID, point.ID))
	_, err = rel.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, relational.ErrNotFound)

	// ForgetSession removes the session row.
	require.NoError(t, engine.ForgetSession(ctx, session.ID))
	_, err = rel.GetSession(ctx, session.ID)
	assert.Error(t, err)
}

// fakeStore drives merge and failure-propagation cases that a real backend
// cannot produce on demand.
type fakeStore struct {
	resultsByTier map[vector.MemoryType][]*vector.ScoredPoint
	failTier      vector.MemoryType
	searchCalls   int
}

func (f *fakeStore) EnsureCollection(ctx context.Context, sessionID int64) error { return nil }
func (f *fakeStore) Upsert(ctx context.Context, sessionID int64, point *vector.Point) error {
	return nil
}
func (f *fakeStore) Get(ctx context.Context, sessionID, pointID int64) (*vector.Point, error) {
	return nil, nil
}
func (f *fakeStore) Search(ctx context.Context, sessionID int64, queryVector []float64, filter *vector.Filter, limit int) ([]*vector.ScoredPoint, error) {
	f.searchCalls++
	if f.failTier != "" && filter != nil && filter.MemoryType == f.failTier {
		return nil, errors.New("backend unavailable")
	}
	if filter == nil {
		return nil, nil
	}
	return f.resultsByTier[filter.MemoryType], nil
}
func (f *fakeStore) Delete(ctx context.Context, sessionID, pointID int64) error  { return nil }
func (f *fakeStore) DeleteCollection(ctx context.Context, sessionID int64) error { return nil }
func (f *fakeStore) Dimensions() int                                             { return 3 }
func (f *fakeStore) Close() error                                                { return nil }

func TestEngine_MultiTierSearch_MergeKeepsMaxScore(t *testing.T) {
	now := time.Now()
	store := &fakeStore{resultsByTier: map[vector.MemoryType][]*vector.ScoredPoint{
		vector.MemoryShortTerm: {
			{ID: 7, Score: 0.5, Payload: vector.Payload{Content: "dup", Timestamp: now}},
		},
		vector.MemorySummary: {
			{ID: 7, Score: 0.8, Payload: vector.Payload{Content: "dup", Timestamp: now}},
		},
	}}

	engine, err := core.NewEngineFromComponents(store, &stubEmbedder{}, nil)
	require.NoError(t, err)

	results, err := engine.MultiTierSearch(context.Background(), "query", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(7), results[0].ID)
	assert.Equal(t, 0.8, results[0].Score, "merged score must be the max, never a sum")
}

func TestEngine_MultiTierSearch_TieBreak(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)
	store := &fakeStore{resultsByTier: map[vector.MemoryType][]*vector.ScoredPoint{
		vector.MemoryShortTerm: {
			{ID: 9, Score: 0.7, Payload: vector.Payload{Timestamp: earlier}},
			{ID: 5, Score: 0.7, Payload: vector.Payload{Timestamp: now}},
		},
		vector.MemorySummary: {
			{ID: 2, Score: 0.7, Payload: vector.Payload{Timestamp: earlier}},
		},
	}}

	engine, err := core.NewEngineFromComponents(store, &stubEmbedder{}, nil)
	require.NoError(t, err)

	results, err := engine.MultiTierSearch(context.Background(), "query", 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Equal scores: newest first, then ascending ID.
	assert.Equal(t, int64(5), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
	assert.Equal(t, int64(9), results[2].ID)
}

func TestEngine_MultiTierSearch_FirstFailureAborts(t *testing.T) {
	store := &fakeStore{failTier: vector.MemoryShortTerm}

	engine, err := core.NewEngineFromComponents(store, &stubEmbedder{}, nil)
	require.NoError(t, err)

	results, err := engine.MultiTierSearch(context.Background(), "query", 1)
	assert.Error(t, err)
	assert.Nil(t, results, "no partial results on tier failure")
	assert.Equal(t, 1, store.searchCalls, "later tiers must not run")

	var memErr *core.MemoryError
	assert.ErrorAs(t, err, &memErr)
	assert.Equal(t, "MultiTierSearch", memErr.Op)
}
