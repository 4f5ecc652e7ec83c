package core

import (
	"time"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// RememberOption is a function type for configuring Remember operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type RememberOption func(*RememberOptions)

// RememberOptions contains configuration options for Remember operations.
type RememberOptions struct {
	// Role is the message sender role: "user" or "assistant".
	Role string

	// MemoryType is the retrieval tier assigned at write time.
	MemoryType vector.MemoryType

	// DocumentID groups the memory with others from the same document.
	DocumentID string

	// Importance is the relative importance of the memory (0.0-1.0).
	Importance float64

	// Summary is an optional condensed form of the content.
	Summary string

	// Topic is an optional topic label.
	Topic string

	// Language is the content language tag.
	Language string

	// SourceType records where the content came from.
	SourceType string

	// UserID overrides the user identifier that would otherwise be
	// resolved from the session's owner.
	UserID string

	// Timestamp overrides the record timestamp (defaults to now).
	Timestamp time.Time
}

// SearchOption is a function type for configuring MultiTierSearch operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for MultiTierSearch operations.
type SearchOptions struct {
	// UserID overrides the user identifier that would otherwise be
	// resolved from the session's owner.
	UserID string

	// DocumentID restricts retrieval to one document group.
	DocumentID string

	// LimitPerTier is the maximum number of results fetched from each tier.
	LimitPerTier int

	// RecencyCutoff, when positive, restricts the short-term tier to
	// records no older than this duration.
	RecencyCutoff time.Duration
}

// ChatOption is a function type for configuring Chat operations.
type ChatOption func(*ChatOptions)

// ChatOptions contains configuration options for Chat operations.
type ChatOptions struct {
	// SystemPrompt is the assistant instruction for the completion.
	SystemPrompt string

	// DocumentID groups the stored user and assistant messages with
	// others from the same document.
	DocumentID string

	// NewDocumentGroup generates a fresh document ID for this exchange.
	// Ignored when DocumentID is set.
	NewDocumentGroup bool

	// MemoryType is the tier the user message is written to.
	MemoryType vector.MemoryType

	// LimitPerTier is the maximum number of context chunks fetched from
	// each tier.
	LimitPerTier int

	// RecencyCutoff restricts short-term context to records no older than
	// this duration.
	RecencyCutoff time.Duration
}

// WithRole sets the sender role for Remember operations.
//
// Example:
//
//	point, _ := engine.Remember(ctx, sessionID, "content", core.WithRole("assistant"))
func WithRole(role string) RememberOption {
	return func(opts *RememberOptions) {
		opts.Role = role
	}
}

// WithMemoryType sets the retrieval tier for Remember operations.
//
// Example:
//
//	point, _ := engine.Remember(ctx, sessionID, "content",
//	    core.WithMemoryType(vector.MemoryLongTerm))
func WithMemoryType(tier vector.MemoryType) RememberOption {
	return func(opts *RememberOptions) {
		opts.MemoryType = tier
	}
}

// WithDocumentID sets the document group for Remember operations.
func WithDocumentID(documentID string) RememberOption {
	return func(opts *RememberOptions) {
		opts.DocumentID = documentID
	}
}

// WithImportance sets the importance score for Remember operations.
func WithImportance(importance float64) RememberOption {
	return func(opts *RememberOptions) {
		opts.Importance = importance
	}
}

// WithSummary sets a condensed form of the content for Remember operations.
func WithSummary(summary string) RememberOption {
	return func(opts *RememberOptions) {
		opts.Summary = summary
	}
}

// WithTopic sets a topic label for Remember operations.
func WithTopic(topic string) RememberOption {
	return func(opts *RememberOptions) {
		opts.Topic = topic
	}
}

// WithLanguage sets the content language tag for Remember operations.
func WithLanguage(language string) RememberOption {
	return func(opts *RememberOptions) {
		opts.Language = language
	}
}

// WithSourceType sets the content source for Remember operations.
func WithSourceType(sourceType string) RememberOption {
	return func(opts *RememberOptions) {
		opts.SourceType = sourceType
	}
}

// WithUserID sets an explicit user identifier for Remember operations,
// bypassing resolution through the session's owner.
func WithUserID(userID string) RememberOption {
	return func(opts *RememberOptions) {
		opts.UserID = userID
	}
}

// WithTimestamp overrides the record timestamp for Remember operations.
func WithTimestamp(ts time.Time) RememberOption {
	return func(opts *RememberOptions) {
		opts.Timestamp = ts
	}
}

// WithUserIDForSearch sets an explicit user identifier for MultiTierSearch
// operations, bypassing resolution through the session's owner.
//
// Example:
//
//	results, _ := engine.MultiTierSearch(ctx, "query", sessionID,
//	    core.WithUserIDForSearch("alice"))
func WithUserIDForSearch(userID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.UserID = userID
	}
}

// WithDocumentIDForSearch restricts MultiTierSearch to one document group.
func WithDocumentIDForSearch(documentID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.DocumentID = documentID
	}
}

// WithLimitPerTier sets the per-tier result limit for MultiTierSearch
// operations.
//
// Example:
//
//	results, _ := engine.MultiTierSearch(ctx, "query", sessionID,
//	    core.WithLimitPerTier(10))
func WithLimitPerTier(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.LimitPerTier = limit
	}
}

// WithRecencyCutoff restricts the short-term tier to records no older than
// the given duration for MultiTierSearch operations.
//
// Example:
//
//	results, _ := engine.MultiTierSearch(ctx, "query", sessionID,
//	    core.WithRecencyCutoff(24*time.Hour))
func WithRecencyCutoff(cutoff time.Duration) SearchOption {
	return func(opts *SearchOptions) {
		opts.RecencyCutoff = cutoff
	}
}

// WithSystemPrompt sets the assistant instruction for Chat operations.
func WithSystemPrompt(prompt string) ChatOption {
	return func(opts *ChatOptions) {
		opts.SystemPrompt = prompt
	}
}

// WithDocumentIDForChat groups the stored exchange under an existing
// document ID for Chat operations.
func WithDocumentIDForChat(documentID string) ChatOption {
	return func(opts *ChatOptions) {
		opts.DocumentID = documentID
	}
}

// WithNewDocumentGroup generates a fresh document ID for the exchange in
// Chat operations. Ignored when a document ID is supplied explicitly.
func WithNewDocumentGroup() ChatOption {
	return func(opts *ChatOptions) {
		opts.NewDocumentGroup = true
	}
}

// WithMemoryTypeForChat sets the tier the user message is written to in
// Chat operations.
func WithMemoryTypeForChat(tier vector.MemoryType) ChatOption {
	return func(opts *ChatOptions) {
		opts.MemoryType = tier
	}
}

// WithLimitPerTierForChat sets the per-tier context limit for Chat
// operations.
func WithLimitPerTierForChat(limit int) ChatOption {
	return func(opts *ChatOptions) {
		opts.LimitPerTier = limit
	}
}

// WithRecencyCutoffForChat restricts short-term context to records no older
// than the given duration for Chat operations.
func WithRecencyCutoffForChat(cutoff time.Duration) ChatOption {
	return func(opts *ChatOptions) {
		opts.RecencyCutoff = cutoff
	}
}

// applyRememberOptions applies RememberOption functions with defaults.
func applyRememberOptions(opts []RememberOption) *RememberOptions {
	options := &RememberOptions{
		Role:       "user",
		MemoryType: vector.MemoryShortTerm,
		Importance: 0.5,
		SourceType: "chat",
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applySearchOptions applies SearchOption functions with defaults.
func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		LimitPerTier: 5,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyChatOptions applies ChatOption functions with defaults.
//
// The per-tier limit of 3 keeps the completion context small; the system
// prompt matches the one the chat flow has always used.
func applyChatOptions(opts []ChatOption) *ChatOptions {
	options := &ChatOptions{
		SystemPrompt: "You are a helpful assistant.",
		MemoryType:   vector.MemoryShortTerm,
		LimitPerTier: 3,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
