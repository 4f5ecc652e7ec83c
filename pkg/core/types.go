package core

import "github.com/echoprompt/echomem-go/pkg/vector"

// MemoryUpdate is a partial edit of a stored memory. Nil fields are left
// unchanged. Changing Content regenerates the embedding; changing only the
// tier or grouping keeps the existing vector.
type MemoryUpdate struct {
	// Content replaces the memory text.
	Content *string

	// MemoryType moves the memory onto another retrieval tier
	// ("short_term", "summary", or "long_term").
	MemoryType *string

	// DocumentID changes the document grouping.
	DocumentID *string

	// Importance changes the relative importance (0.0-1.0).
	Importance *float64
}

// ChatResult is the outcome of one orchestrated chat turn.
type ChatResult struct {
	// Answer is the generated assistant message.
	Answer string `json:"answer"`

	// Retrieved contains the memory chunks used as context, ordered by
	// descending relevance.
	Retrieved []*vector.ScoredPoint `json:"retrieved_chunks,omitempty"`

	// UserMessageID is the relational ID of the stored user message
	// (zero when no relational store is configured).
	UserMessageID int64 `json:"user_message_id,omitempty"`

	// AssistantMessageID is the relational ID of the stored assistant
	// message (zero when no relational store is configured).
	AssistantMessageID int64 `json:"assistant_message_id,omitempty"`
}
