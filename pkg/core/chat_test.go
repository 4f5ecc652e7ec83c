package core_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoprompt/echomem-go/pkg/core"
	"github.com/echoprompt/echomem-go/pkg/llm"
	relationalSqlite "github.com/echoprompt/echomem-go/pkg/relational/sqlite"
	"github.com/echoprompt/echomem-go/pkg/vector"
	chromemStore "github.com/echoprompt/echomem-go/pkg/vector/chromem"
)

// stubLLM records the prompts it is handed and returns a fixed answer.
type stubLLM struct {
	systemPrompt  string
	memoryContext string
	userPrompt    string
	answer        string
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, memoryContext, userPrompt string, opts ...llm.GenerateOption) (string, error) {
	s.systemPrompt = systemPrompt
	s.memoryContext = memoryContext
	s.userPrompt = userPrompt
	return s.answer, nil
}

func (s *stubLLM) CompleteWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return s.answer, nil
}

func (s *stubLLM) Close() error { return nil }

func newTestOrchestrator(t *testing.T, provider llm.Provider) *core.Orchestrator {
	t.Helper()

	rel, err := relationalSqlite.NewStore(&relationalSqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "chat.db"),
	})
	require.NoError(t, err)

	store, err := chromemStore.NewClient(&chromemStore.Config{EmbeddingModelDims: 3})
	require.NoError(t, err)

	engine, err := core.NewEngineFromComponents(store, &stubEmbedder{}, rel)
	require.NoError(t, err)

	orch, err := core.NewOrchestratorFromComponents(engine, provider)
	require.NoError(t, err)

	t.Cleanup(func() { _ = orch.Close() })
	return orch
}

func TestOrchestrator_Chat_EmptyPrompt(t *testing.T) {
	orch := newTestOrchestrator(t, &stubLLM{})

	_, err := orch.Chat(context.Background(), 1, "  ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestOrchestrator_Chat_StoresBothTurns(t *testing.T) {
	provider := &stubLLM{answer: "The capital of France is Paris."}
	orch := newTestOrchestrator(t, provider)
	ctx := context.Background()

	rel := orch.Engine().Relational()
	session, err := rel.CreateSession(ctx, "geography", 0)
	require.NoError(t, err)

	result, err := orch.Chat(ctx, session.ID, "What is the capital of France?")
	require.NoError(t, err)

	assert.Equal(t, provider.answer, result.Answer)
	assert.Equal(t, "You are a helpful assistant.", provider.systemPrompt)
	assert.Equal(t, "What is the capital of France?", provider.userPrompt)

	// The prompt is stored before retrieval, so it surfaces in its own
	// context window.
	require.NotEmpty(t, result.Retrieved)
	contents := map[string]bool{}
	for _, r := range result.Retrieved {
		contents[r.Payload.Content] = true
	}
	assert.True(t, contents["What is the capital of France?"])

	messages, err := rel.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "What is the capital of France?", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, provider.answer, messages[1].Content)

	assert.Equal(t, messages[0].ID, result.UserMessageID)
	assert.Equal(t, messages[1].ID, result.AssistantMessageID)
}

func TestOrchestrator_Chat_ContextFromEarlierMemories(t *testing.T) {
	provider := &stubLLM{answer: "You said your cat is named Miso."}
	orch := newTestOrchestrator(t, provider)
	ctx := context.Background()

	session, err := orch.Engine().Relational().CreateSession(ctx, "pets", 0)
	require.NoError(t, err)

	_, err = orch.Engine().Remember(ctx, session.ID, "My cat is named Miso.")
	require.NoError(t, err)

	_, err = orch.Chat(ctx, session.ID, "What is my cat's name?")
	require.NoError(t, err)

	assert.Contains(t, provider.memoryContext, "My cat is named Miso.")
}

func TestOrchestrator_Chat_AssistantInheritsGroupAndTier(t *testing.T) {
	provider := &stubLLM{answer: "Noted."}
	orch := newTestOrchestrator(t, provider)
	ctx := context.Background()

	session, err := orch.Engine().Relational().CreateSession(ctx, "notes", 0)
	require.NoError(t, err)

	result, err := orch.Chat(ctx, session.ID, "Remember this for later.",
		core.WithNewDocumentGroup(),
		core.WithMemoryTypeForChat(vector.MemorySummary),
	)
	require.NoError(t, err)

	rel := orch.Engine().Relational()
	userMsg, err := rel.GetMessage(ctx, result.UserMessageID)
	require.NoError(t, err)
	assistantMsg, err := rel.GetMessage(ctx, result.AssistantMessageID)
	require.NoError(t, err)

	assert.NotEmpty(t, userMsg.DocumentID)
	assert.Equal(t, userMsg.DocumentID, assistantMsg.DocumentID)
	assert.Equal(t, string(vector.MemorySummary), userMsg.MemoryType)
	assert.Equal(t, string(vector.MemorySummary), assistantMsg.MemoryType)

	// A second grouped chat mints a distinct group.
	second, err := orch.Chat(ctx, session.ID, "Another grouped note.",
		core.WithNewDocumentGroup())
	require.NoError(t, err)

	secondMsg, err := rel.GetMessage(ctx, second.UserMessageID)
	require.NoError(t, err)
	assert.NotEqual(t, userMsg.DocumentID, secondMsg.DocumentID)
}

func TestOrchestrator_Chat_ExplicitDocumentID(t *testing.T) {
	provider := &stubLLM{answer: "ok"}
	orch := newTestOrchestrator(t, provider)
	ctx := context.Background()

	session, err := orch.Engine().Relational().CreateSession(ctx, "docs", 0)
	require.NoError(t, err)

	result, err := orch.Chat(ctx, session.ID, "File this under the report.",
		core.WithDocumentIDForChat("report-7"))
	require.NoError(t, err)

	msg, err := orch.Engine().Relational().GetMessage(ctx, result.AssistantMessageID)
	require.NoError(t, err)
	assert.Equal(t, "report-7", msg.DocumentID)
}
