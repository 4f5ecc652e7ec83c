// Package vector provides interfaces and types for session-scoped vector storage.
//
// It defines the Store interface that all vector storage backends must satisfy,
// along with the point, payload, and filter types used by the retrieval engine.
// Each conversation session owns one logical collection; collections are created
// lazily on first write.
package vector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Predefined errors surfaced by vector storage backends.
var (
	// ErrDimensionMismatch indicates that a vector's dimensionality does not
	// match the dimensionality the store was configured with. This is a fatal
	// configuration error, never a retry case.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCollectionNotFound indicates that a session's collection does not exist.
	// Backends handle this internally: searches return empty results and deletes
	// are no-ops. It is exported for backends and tests that need to detect it.
	ErrCollectionNotFound = errors.New("collection not found")
)

// MemoryType classifies a stored message into a retrieval tier.
type MemoryType string

const (
	// MemoryShortTerm is the tier for recent conversational messages.
	// New records default to this tier.
	MemoryShortTerm MemoryType = "short_term"

	// MemoryLongTerm is the tier for durable, relevance-ranked memories.
	MemoryLongTerm MemoryType = "long_term"

	// MemorySummary is the tier for condensed summaries of earlier conversation.
	MemorySummary MemoryType = "summary"
)

// Tiers is the fixed evaluation order for multi-tier retrieval.
var Tiers = []MemoryType{MemoryShortTerm, MemorySummary, MemoryLongTerm}

// Valid reports whether t is one of the known memory tiers.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryShortTerm, MemoryLongTerm, MemorySummary:
		return true
	}
	return false
}

// Payload is the structured metadata attached to every stored vector point.
//
// It replaces the loosely-typed key/value dictionaries of ad-hoc vector
// payloads with named, typed fields. Backends map it to their own generic
// representation (SQL columns, string metadata) and back.
type Payload struct {
	// MessageID is the relational ID of the message this point embeds.
	MessageID int64 `json:"message_id"`

	// SessionID is the owning session. Required, never zero.
	SessionID int64 `json:"session_id"`

	// UserID is the opaque external user identifier used to scope retrieval.
	// Empty when the session has no resolved owner.
	UserID string `json:"user_id,omitempty"`

	// DocumentID groups points that originated from the same uploaded
	// document or context (optional).
	DocumentID string `json:"document_id,omitempty"`

	// Role is the message sender role: "user" or "assistant".
	Role string `json:"role"`

	// Content is the literal message text.
	Content string `json:"content"`

	// Summary is an optional condensed form of the content.
	Summary string `json:"summary,omitempty"`

	// MemoryType is the retrieval tier assigned at write time.
	MemoryType MemoryType `json:"memory_type"`

	// Importance is the relative importance of the memory (0.0-1.0).
	Importance float64 `json:"importance"`

	// TokenCount is the token length of Content.
	TokenCount int `json:"token_count"`

	// Timestamp is when the underlying message was created. Immutable.
	Timestamp time.Time `json:"timestamp"`

	// Topic is an optional topic label (optional).
	Topic string `json:"topic,omitempty"`

	// Language is the content language tag.
	Language string `json:"language,omitempty"`

	// SourceType records where the content came from (e.g. "chat", "document").
	SourceType string `json:"source_type,omitempty"`

	// EmbeddingModel is the model that produced the point's vector.
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// Point is one vector-store record: an ID, a vector, and a payload.
type Point struct {
	// ID is the point key. Upserting an existing ID replaces the point.
	ID int64

	// Vector is the embedding. Its length must match the store's dimensions.
	Vector []float64

	// Payload is the structured metadata stored alongside the vector.
	Payload Payload
}

// ScoredPoint is a search result: a point ID, its similarity score, and the
// stored payload. Higher scores indicate better matches.
type ScoredPoint struct {
	ID      int64   `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Filter is a conjunction of equality conditions over payload fields, plus an
// optional timestamp lower bound. Zero values mean "no restriction".
type Filter struct {
	// UserID restricts results to points with this external user identifier.
	UserID string

	// MemoryType restricts results to one retrieval tier.
	MemoryType MemoryType

	// DocumentID restricts results to points from one document group.
	DocumentID string

	// Since, when non-zero, restricts results to points whose Timestamp is
	// at or after this instant.
	Since time.Time
}

// WithTier returns a copy of the filter restricted to the given tier.
// A nil receiver is treated as an empty filter.
func (f *Filter) WithTier(tier MemoryType) Filter {
	var out Filter
	if f != nil {
		out = *f
	}
	out.MemoryType = tier
	return out
}

// Matches reports whether the payload satisfies every condition of the filter.
// Backends without native payload filtering use it to post-filter candidates.
func (f *Filter) Matches(p *Payload) bool {
	if f == nil {
		return true
	}
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.MemoryType != "" && p.MemoryType != f.MemoryType {
		return false
	}
	if f.DocumentID != "" && p.DocumentID != f.DocumentID {
		return false
	}
	if !f.Since.IsZero() && p.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// CollectionName returns the deterministic collection name for a session.
func CollectionName(sessionID int64) string {
	return fmt.Sprintf("session_%d", sessionID)
}

// Store defines the interface for session-scoped vector storage backends.
//
// All backends (SQLite, PostgreSQL, MySQL, chromem) must implement this
// interface. Every operation is scoped to one session's collection.
type Store interface {
	// EnsureCollection creates the session's collection if it is absent.
	// It is idempotent: an "already exists" condition from the backing store
	// is success, not an error.
	EnsureCollection(ctx context.Context, sessionID int64) error

	// Upsert writes or overwrites the point keyed by point.ID in the
	// session's collection, creating the collection if needed. The point is
	// visible to subsequent searches.
	Upsert(ctx context.Context, sessionID int64, point *Point) error

	// Get returns the point keyed by pointID from the session's collection.
	// A missing point or collection yields (nil, nil), not an error.
	Get(ctx context.Context, sessionID int64, pointID int64) (*Point, error)

	// Search returns up to limit points ordered by descending similarity to
	// the query vector, restricted to points matching the filter. A missing
	// collection or an empty match set yields an empty slice, not an error.
	Search(ctx context.Context, sessionID int64, queryVector []float64, filter *Filter, limit int) ([]*ScoredPoint, error)

	// Delete removes one point from the session's collection. Deleting an
	// absent point or collection is a no-op.
	Delete(ctx context.Context, sessionID int64, pointID int64) error

	// DeleteCollection removes the session's entire collection. Deleting an
	// absent collection is a no-op.
	DeleteCollection(ctx context.Context, sessionID int64) error

	// Dimensions returns the vector dimensionality the store was created with.
	Dimensions() int

	// Close closes the store and releases resources.
	Close() error
}
