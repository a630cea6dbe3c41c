package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deskflow/orchestrator/internal/adapter/llm"
	"github.com/deskflow/orchestrator/internal/domain"
)

func TestGroundedContextTracksMissing(t *testing.T) {
	draft := fieldsetDraft()
	draft.Values["requested_for"] = "u1"
	draft.Values["subject"] = "laptop"

	g := buildGroundedContext(draft)
	assert.Equal(t, []string{"category"}, g.Missing)

	var subject FieldFact
	for _, f := range g.Fields {
		if f.Name == "subject" {
			subject = f
		}
	}
	assert.True(t, subject.Filled)
	assert.Equal(t, "laptop", subject.Value)
}

func TestSystemPromptContainsOnlyDeclaredFacts(t *testing.T) {
	draft := fieldsetDraft()
	draft.Values["requested_for"] = "u1"

	prompt := buildGroundedContext(draft).systemPrompt()

	assert.Contains(t, prompt, "Hardware Request")
	assert.Contains(t, prompt, "Subject")
	assert.Contains(t, prompt, "Laptop, Monitor, Peripheral")
	assert.Contains(t, prompt, "subject, category")
	// The generation step is told explicitly it cannot claim submission.
	assert.Contains(t, prompt, "Never state that a request has been submitted")
}

func TestSystemPromptReadyToConfirm(t *testing.T) {
	draft := fieldsetDraft()
	for _, name := range []string{"requested_for", "subject", "category"} {
		draft.Values[name] = "x"
	}

	prompt := buildGroundedContext(draft).systemPrompt()
	assert.Contains(t, prompt, "confirm submission")
	assert.False(t, strings.Contains(prompt, "still missing"))
}

// capturingLLM records the last request it was asked to complete.
type capturingLLM struct {
	llm.MockClient
	last *llm.ChatCompletionRequest
}

func (c *capturingLLM) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	c.last = req
	return c.MockClient.CreateChatCompletion(ctx, req)
}

func TestRespondBoundsHistoryWindow(t *testing.T) {
	h := newHarness(t)
	capturing := &capturingLLM{}
	h.orch.llm = capturing

	history := make([]domain.Message, historyWindow*2)
	for i := range history {
		history[i] = domain.Message{Role: domain.RoleUser, Content: "older"}
	}

	_, err := h.orch.respond(context.Background(), buildGroundedContext(idleDraft()), history, "newest")
	assert.NoError(t, err)

	// system prompt + bounded history + the current user message
	assert.Len(t, capturing.last.Messages, 1+historyWindow+1)
	assert.Equal(t, "newest", capturing.last.Messages[len(capturing.last.Messages)-1].Content)
}
