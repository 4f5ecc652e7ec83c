package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/echoprompt/echomem-go/pkg/relational"
	"github.com/echoprompt/echomem-go/pkg/vector"
)

// tokenEncoding is the tokenizer used for payload token counts. cl100k_base
// is the encoding of the ada-002 embedding model and the gpt-4 family.
const tokenEncoding = "cl100k_base"

// Tagger builds the typed payload attached to every stored vector point.
//
// It resolves the owning user's external identifier through the relational
// store, counts content tokens, and fills in the remaining metadata fields
// with their defaults.
type Tagger struct {
	// rel resolves session ownership (nil when the engine runs without a
	// relational store).
	rel relational.Store

	// encoder counts content tokens. Loaded lazily; tiktoken fetches the
	// encoding ranks on first use.
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
}

// NewTagger creates a tagger. The relational store may be nil, in which case
// user identifiers are never resolved and must be supplied by callers.
func NewTagger(rel relational.Store) *Tagger {
	return &Tagger{rel: rel}
}

// ResolveUserIdentifier returns the external identifier of the session's
// owning user. Ownerless and unknown sessions resolve to "" so that writes
// to fresh sessions still succeed.
func (t *Tagger) ResolveUserIdentifier(ctx context.Context, sessionID int64) (string, error) {
	if t.rel == nil {
		return "", nil
	}
	identifier, err := t.rel.SessionOwnerIdentifier(ctx, sessionID)
	if errors.Is(err, relational.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return identifier, nil
}

// CountTokens returns the token length of text under the payload encoding.
// When the encoding ranks cannot be loaded it approximates with a word
// count, so writes keep working without network access.
func (t *Tagger) CountTokens(text string) int {
	t.encoderOnce.Do(func() {
		encoder, err := tiktoken.GetEncoding(tokenEncoding)
		if err == nil {
			t.encoder = encoder
		}
	})
	if t.encoder == nil {
		return len(strings.Fields(text))
	}
	return len(t.encoder.Encode(text, nil, nil))
}

// NewDocumentID generates a fresh document group identifier.
func (t *Tagger) NewDocumentID() string {
	return uuid.NewString()
}

// BuildPayload assembles the payload for a memory, resolving the user
// identifier when the options do not carry one and applying field defaults.
func (t *Tagger) BuildPayload(ctx context.Context, sessionID, messageID int64, content, embeddingModel string, opts *RememberOptions) (vector.Payload, error) {
	userID := opts.UserID
	if userID == "" {
		resolved, err := t.ResolveUserIdentifier(ctx, sessionID)
		if err != nil {
			return vector.Payload{}, err
		}
		userID = resolved
	}

	timestamp := opts.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	language := opts.Language
	if language == "" {
		language = "en"
	}

	return vector.Payload{
		MessageID:      messageID,
		SessionID:      sessionID,
		UserID:         userID,
		DocumentID:     opts.DocumentID,
		Role:           opts.Role,
		Content:        content,
		Summary:        opts.Summary,
		MemoryType:     opts.MemoryType,
		Importance:     opts.Importance,
		TokenCount:     t.CountTokens(content),
		Timestamp:      timestamp,
		Topic:          opts.Topic,
		Language:       language,
		SourceType:     opts.SourceType,
		EmbeddingModel: embeddingModel,
	}, nil
}
