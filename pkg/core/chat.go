package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/echoprompt/echomem-go/pkg/llm"
)

// Orchestrator runs the memory-augmented chat flow on top of an Engine and
// a completion provider: store the user turn, retrieve context, generate a
// completion, store the assistant turn.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	orchestrator, _ := core.NewOrchestrator(config)
//	defer orchestrator.Close()
//
//	result, _ := orchestrator.Chat(ctx, sessionID, "Where did we leave off?")
//	fmt.Println(result.Answer)
type Orchestrator struct {
	// engine is the tiered retrieval engine.
	engine *Engine

	// llm generates assistant completions.
	llm llm.Provider
}

// NewOrchestrator creates an orchestrator from configuration.
func NewOrchestrator(cfg *Config) (*Orchestrator, error) {
	if cfg.LLM.Provider == "" {
		return nil, NewMemoryError("NewOrchestrator", ErrInvalidConfig)
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := initLLM(cfg.LLM)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	return &Orchestrator{
		engine: engine,
		llm:    provider,
	}, nil
}

// NewOrchestratorFromComponents assembles an orchestrator from a pre-built
// engine and completion provider.
func NewOrchestratorFromComponents(engine *Engine, provider llm.Provider) (*Orchestrator, error) {
	if engine == nil || provider == nil {
		return nil, NewMemoryError("NewOrchestratorFromComponents", ErrInvalidConfig)
	}
	return &Orchestrator{
		engine: engine,
		llm:    provider,
	}, nil
}

// Engine returns the orchestrator's retrieval engine.
func (o *Orchestrator) Engine() *Engine {
	return o.engine
}

// Chat processes one conversation turn.
//
// The method:
//  1. Stores the user prompt as a memory (relational row + vector point)
//  2. Retrieves context with a multi-tier search over the session
//  3. Completes via the LLM, passing the newline-joined retrieved content
//  4. Stores the assistant answer, inheriting the prompt's document group
//     and tier
//
// The prompt itself is stored before retrieval, so it surfaces in its own
// context the way every later query will see it.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sessionID: Conversation session
//   - prompt: The user's message
//   - opts: Optional parameters (SystemPrompt, DocumentID, LimitPerTier, ...)
//
// Returns the assistant answer together with the retrieved context chunks,
// or an error.
//
// Example:
//
//	result, err := orchestrator.Chat(ctx, sessionID, "Summarize my trip plans",
//	    core.WithLimitPerTierForChat(5),
//	    core.WithNewDocumentGroup(),
//	)
func (o *Orchestrator) Chat(ctx context.Context, sessionID int64, prompt string, opts ...ChatOption) (*ChatResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewMemoryError("Chat", ErrInvalidInput)
	}

	chatOpts := applyChatOptions(opts)

	documentID := chatOpts.DocumentID
	if documentID == "" && chatOpts.NewDocumentGroup {
		documentID = o.engine.Tagger().NewDocumentID()
	}

	userPoint, err := o.engine.Remember(ctx, sessionID, prompt,
		WithRole("user"),
		WithMemoryType(chatOpts.MemoryType),
		WithDocumentID(documentID),
	)
	if err != nil {
		return nil, err
	}

	searchOpts := []SearchOption{WithLimitPerTier(chatOpts.LimitPerTier)}
	if chatOpts.RecencyCutoff > 0 {
		searchOpts = append(searchOpts, WithRecencyCutoff(chatOpts.RecencyCutoff))
	}
	retrieved, err := o.engine.MultiTierSearch(ctx, prompt, sessionID, searchOpts...)
	if err != nil {
		return nil, err
	}

	contextParts := make([]string, 0, len(retrieved))
	for _, chunk := range retrieved {
		if chunk.Payload.Content != "" {
			contextParts = append(contextParts, chunk.Payload.Content)
		}
	}
	memoryContext := strings.Join(contextParts, "\n")

	answer, err := o.llm.Complete(ctx, chatOpts.SystemPrompt, memoryContext, prompt)
	if err != nil {
		return nil, NewMemoryError("Chat", fmt.Errorf("%w: %v", ErrLLMOperation, err))
	}

	assistantPoint, err := o.engine.Remember(ctx, sessionID, answer,
		WithRole("assistant"),
		WithMemoryType(userPoint.Payload.MemoryType),
		WithDocumentID(userPoint.Payload.DocumentID),
	)
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Answer:             answer,
		Retrieved:          retrieved,
		UserMessageID:      userPoint.Payload.MessageID,
		AssistantMessageID: assistantPoint.Payload.MessageID,
	}, nil
}

// Close closes the orchestrator, its engine, and the completion provider.
func (o *Orchestrator) Close() error {
	var errs []error
	if err := o.llm.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := o.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return NewMemoryError("Close", errs[0])
	}
	return nil
}
