package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/echoprompt/echomem-go/pkg/embedder"
	"github.com/echoprompt/echomem-go/pkg/relational"
	"github.com/echoprompt/echomem-go/pkg/vector"
)

// Engine is the tiered retrieval engine for conversational memory.
//
// It stores conversation messages as vector points in session-scoped
// collections, tagged with a retrieval tier (short_term, summary or
// long_term), and retrieves context for a query by searching every tier and
// merging the results.
//
// The engine is thread-safe and can be used concurrently from multiple
// goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	engine, _ := core.NewEngine(config)
//	defer engine.Close()
//
//	point, _ := engine.Remember(ctx, sessionID, "I prefer window seats",
//	    core.WithMemoryType(vector.MemoryLongTerm),
//	)
//	results, _ := engine.MultiTierSearch(ctx, "seat preference", sessionID)
type Engine struct {
	// config contains the engine configuration (nil when the engine was
	// assembled from components).
	config *Config

	// vectors is the session-scoped vector store.
	vectors vector.Store

	// embedder converts text into query and record vectors.
	embedder embedder.Provider

	// rel holds users, sessions, and message rows (may be nil).
	rel relational.Store

	// tagger builds record payloads.
	tagger *Tagger

	// node generates point IDs for memories that have no relational
	// message row.
	node *snowflake.Node

	// mu protects concurrent access to the engine.
	mu sync.RWMutex
}

// NewEngine creates an engine from configuration.
//
// The engine is initialized with:
//   - Vector store (SQLite, PostgreSQL, MySQL, or chromem)
//   - Embedding provider (OpenAI)
//   - Relational store (SQLite, optional)
//
// Parameters:
//   - cfg: Configuration containing storage and embedding settings
//
// Returns a new Engine instance, or an error if initialization fails.
func NewEngine(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := initVectorStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	embedderProvider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	rel, err := initRelational(cfg.Relational)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngineFromComponents(store, embedderProvider, rel)
	if err != nil {
		return nil, err
	}
	engine.config = cfg
	return engine, nil
}

// NewEngineFromComponents assembles an engine from pre-built components.
// The relational store may be nil; user identity then comes from options
// and point IDs are generated instead of reusing message IDs.
func NewEngineFromComponents(store vector.Store, emb embedder.Provider, rel relational.Store) (*Engine, error) {
	if store == nil || emb == nil {
		return nil, NewMemoryError("NewEngineFromComponents", ErrInvalidConfig)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewEngineFromComponents", err)
	}

	return &Engine{
		vectors:  store,
		embedder: emb,
		rel:      rel,
		tagger:   NewTagger(rel),
		node:     node,
	}, nil
}

// Relational returns the engine's relational store (nil when not configured).
func (e *Engine) Relational() relational.Store {
	return e.rel
}

// Tagger returns the engine's payload tagger.
func (e *Engine) Tagger() *Tagger {
	return e.tagger
}

// MultiTierSearch retrieves memories relevant to a query from every tier of
// a session's collection.
//
// The method:
//  1. Generates the query embedding exactly once
//  2. Searches each tier in fixed order: short_term, summary, long_term,
//     restricting results to the session owner's records and, for the
//     short-term tier, to the recency window when one is configured
//  3. Merges the per-tier results by point ID, keeping the highest score
//     for points that surface in more than one tier
//  4. Sorts by descending score; ties break by newest timestamp, then by
//     ascending point ID
//
// A session with no collection yields an empty result. The first tier
// failure aborts the search; no partial results are returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - query: Search query (text string)
//   - sessionID: Session whose memory is searched
//   - opts: Optional parameters (UserID, LimitPerTier, RecencyCutoff)
//
// Returns the merged result list sorted by relevance (highest first), or an
// error.
//
// Example:
//
//	results, err := engine.MultiTierSearch(ctx, "travel plans", sessionID,
//	    core.WithLimitPerTier(5),
//	    core.WithRecencyCutoff(24*time.Hour),
//	)
func (e *Engine) MultiTierSearch(ctx context.Context, query string, sessionID int64, opts ...SearchOption) ([]*vector.ScoredPoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, NewMemoryError("MultiTierSearch", ErrInvalidInput)
	}

	searchOpts := applySearchOptions(opts)

	userID := searchOpts.UserID
	if userID == "" {
		resolved, err := e.tagger.ResolveUserIdentifier(ctx, sessionID)
		if err != nil {
			return nil, NewMemoryError("MultiTierSearch", err)
		}
		userID = resolved
	}

	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewMemoryError("MultiTierSearch", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	base := &vector.Filter{
		UserID:     userID,
		DocumentID: searchOpts.DocumentID,
	}

	merged := make(map[int64]*vector.ScoredPoint)
	for _, tier := range vector.Tiers {
		filter := base.WithTier(tier)
		if tier == vector.MemoryShortTerm && searchOpts.RecencyCutoff > 0 {
			filter.Since = time.Now().Add(-searchOpts.RecencyCutoff)
		}

		results, err := e.vectors.Search(ctx, sessionID, queryVector, &filter, searchOpts.LimitPerTier)
		if err != nil {
			return nil, NewMemoryError("MultiTierSearch", err)
		}

		// A point can surface in more than one tier search only through
		// concurrent tier migration; keep the higher score, never sum.
		for _, result := range results {
			if existing, ok := merged[result.ID]; !ok || result.Score > existing.Score {
				merged[result.ID] = result
			}
		}
	}

	ranked := make([]*vector.ScoredPoint, 0, len(merged))
	for _, point := range merged {
		ranked = append(ranked, point)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Payload.Timestamp.Equal(ranked[j].Payload.Timestamp) {
			return ranked[i].Payload.Timestamp.After(ranked[j].Payload.Timestamp)
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked, nil
}

// Remember stores a message as a memory in a session's collection.
//
// The method:
//  1. Creates the relational message row (when a relational store is
//     configured)
//  2. Builds the typed payload, resolving the session owner's identifier
//     and counting content tokens
//  3. Generates the content embedding
//  4. Upserts the point, creating the session's collection if needed
//
// The point ID is the relational message ID; without a relational store a
// generated ID is used instead.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sessionID: Session the memory belongs to
//   - content: Message text
//   - opts: Optional parameters (Role, MemoryType, DocumentID, Importance, ...)
//
// Returns the stored point, or an error.
//
// Example:
//
//	point, err := engine.Remember(ctx, sessionID, "The meeting is on Friday",
//	    core.WithRole("user"),
//	    core.WithMemoryType(vector.MemorySummary),
//	)
func (e *Engine) Remember(ctx context.Context, sessionID int64, content string, opts ...RememberOption) (*vector.Point, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(content) == "" {
		return nil, NewMemoryError("Remember", ErrInvalidInput)
	}

	rememberOpts := applyRememberOptions(opts)
	if !rememberOpts.MemoryType.Valid() {
		return nil, NewMemoryError("Remember", ErrInvalidInput)
	}

	var messageID, pointID int64
	if e.rel != nil {
		msg, err := e.rel.CreateMessage(ctx, &relational.Message{
			SessionID:  sessionID,
			Content:    content,
			Role:       rememberOpts.Role,
			DocumentID: rememberOpts.DocumentID,
			MemoryType: string(rememberOpts.MemoryType),
		})
		if err != nil {
			return nil, NewMemoryError("Remember", err)
		}
		messageID = msg.ID
		pointID = msg.ID
	} else {
		pointID = e.node.Generate().Int64()
	}

	payload, err := e.tagger.BuildPayload(ctx, sessionID, messageID, content, e.embeddingModel(), rememberOpts)
	if err != nil {
		return nil, NewMemoryError("Remember", err)
	}

	embedding, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, NewMemoryError("Remember", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	point := &vector.Point{
		ID:      pointID,
		Vector:  embedding,
		Payload: payload,
	}
	if err := e.vectors.Upsert(ctx, sessionID, point); err != nil {
		return nil, NewMemoryError("Remember", err)
	}

	return point, nil
}

// UpdateMemory applies a partial edit to a stored memory.
//
// The embedding is regenerated only when the content changed; a tier or
// grouping change re-upserts the point with its existing vector. Matching
// relational message rows are updated alongside.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sessionID: Session the memory belongs to
//   - pointID: Point to update
//   - update: Partial edit (nil fields unchanged)
//
// Returns the updated point, or ErrNotFound when the point does not exist.
func (e *Engine) UpdateMemory(ctx context.Context, sessionID, pointID int64, update *MemoryUpdate) (*vector.Point, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if update == nil {
		return nil, NewMemoryError("UpdateMemory", ErrInvalidInput)
	}
	if update.MemoryType != nil && !vector.MemoryType(*update.MemoryType).Valid() {
		return nil, NewMemoryError("UpdateMemory", ErrInvalidInput)
	}

	point, err := e.vectors.Get(ctx, sessionID, pointID)
	if err != nil {
		return nil, NewMemoryError("UpdateMemory", err)
	}
	if point == nil {
		return nil, NewMemoryError("UpdateMemory", ErrNotFound)
	}

	contentChanged := update.Content != nil && *update.Content != point.Payload.Content
	if update.Content != nil {
		point.Payload.Content = *update.Content
	}
	if update.MemoryType != nil {
		point.Payload.MemoryType = vector.MemoryType(*update.MemoryType)
	}
	if update.DocumentID != nil {
		point.Payload.DocumentID = *update.DocumentID
	}
	if update.Importance != nil {
		point.Payload.Importance = *update.Importance
	}

	if contentChanged {
		embedding, err := e.embedder.Embed(ctx, point.Payload.Content)
		if err != nil {
			return nil, NewMemoryError("UpdateMemory", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
		}
		point.Vector = embedding
		point.Payload.TokenCount = e.tagger.CountTokens(point.Payload.Content)
	}

	if e.rel != nil && point.Payload.MessageID != 0 {
		_, err := e.rel.UpdateMessage(ctx, point.Payload.MessageID, &relational.MessageUpdate{
			Content:    update.Content,
			DocumentID: update.DocumentID,
			MemoryType: update.MemoryType,
		})
		if err != nil && !errorsIsNotFound(err) {
			return nil, NewMemoryError("UpdateMemory", err)
		}
	}

	if err := e.vectors.Upsert(ctx, sessionID, point); err != nil {
		return nil, NewMemoryError("UpdateMemory", err)
	}

	return point, nil
}

// Forget removes one memory from a session. The matching relational message
// row is removed as well. Forgetting an absent memory is a no-op.
func (e *Engine) Forget(ctx context.Context, sessionID, pointID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rel != nil {
		point, err := e.vectors.Get(ctx, sessionID, pointID)
		if err != nil {
			return NewMemoryError("Forget", err)
		}
		if point != nil && point.Payload.MessageID != 0 {
			if err := e.rel.DeleteMessage(ctx, point.Payload.MessageID); err != nil && !errorsIsNotFound(err) {
				return NewMemoryError("Forget", err)
			}
		}
	}

	if err := e.vectors.Delete(ctx, sessionID, pointID); err != nil {
		return NewMemoryError("Forget", err)
	}
	return nil
}

// ForgetSession removes a session's entire collection along with its
// relational session row and messages. Forgetting an absent session is a
// no-op.
func (e *Engine) ForgetSession(ctx context.Context, sessionID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rel != nil {
		if err := e.rel.DeleteSession(ctx, sessionID); err != nil && !errorsIsNotFound(err) {
			return NewMemoryError("ForgetSession", err)
		}
	}

	if err := e.vectors.DeleteCollection(ctx, sessionID); err != nil {
		return NewMemoryError("ForgetSession", err)
	}
	return nil
}

// Close closes the engine and all its components.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.rel != nil {
		if err := e.rel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return NewMemoryError("Close", errs[0])
	}
	return nil
}

// embeddingModel returns the name recorded in payloads for the provider's
// model, when the provider exposes one.
func (e *Engine) embeddingModel() string {
	if named, ok := e.embedder.(interface{ Model() string }); ok {
		return named.Model()
	}
	return ""
}

// errorsIsNotFound reports whether err is a not-found from either store.
func errorsIsNotFound(err error) bool {
	return errors.Is(err, relational.ErrNotFound) || errors.Is(err, ErrNotFound)
}
