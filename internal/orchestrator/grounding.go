package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskflow/orchestrator/internal/adapter/llm"
	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/internal/validation"
)

// historyWindow bounds how much conversation history is sent per turn.
const historyWindow = 20

// FieldFact is one field of the grounded context: the declared field plus
// whether a value is currently held for it.
type FieldFact struct {
	Name     string
	Label    string
	Required bool
	Filled   bool
	Value    string
	Options  []string
}

// GroundedContext is the fact boundary of the generation step. It contains
// only what tool calls returned — the catalog, the selected offering, its
// declared fields and which are filled — and nothing else is allowed to
// cross into generation as fact.
type GroundedContext struct {
	State    domain.RequestState
	Catalog  []domain.Offering
	Offering *domain.Offering
	Fields   []FieldFact
	Missing  []string
}

// buildGroundedContext assembles the fact set from the current draft.
func buildGroundedContext(draft domain.DraftState) GroundedContext {
	g := GroundedContext{
		State:    draft.State,
		Catalog:  draft.Catalog,
		Offering: draft.Offering,
	}
	if draft.Schema != nil {
		for _, field := range draft.Schema.Fields {
			val, ok := draft.Values[field.Name]
			fact := FieldFact{
				Name:     field.Name,
				Label:    field.Label,
				Required: field.Required,
				Filled:   ok && strings.TrimSpace(val) != "",
				Value:    val,
			}
			for _, opt := range field.Options {
				fact.Options = append(fact.Options, opt.Value)
			}
			g.Fields = append(g.Fields, fact)
		}
		g.Missing = validation.FieldNames(validation.FindMissingRequired(draft.Schema, draft.Values))
	}
	return g
}

// systemPrompt renders the grounded context as the generation system
// prompt. The response can describe only what is listed here; in
// particular it can never claim a record was created, because record
// creation facts are injected as system messages by the commit path only.
func (g GroundedContext) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a service-desk assistant helping the user file a service request.\n")
	b.WriteString("Only reference the offerings, fields and values listed below. ")
	b.WriteString("Never state that a request has been submitted or created; submission happens through a separate confirmation step outside this conversation.\n")
	fmt.Fprintf(&b, "Workflow state: %s\n", g.State)

	if len(g.Catalog) > 0 {
		b.WriteString("Available offerings:\n")
		for _, off := range g.Catalog {
			fmt.Fprintf(&b, "- %s: %s\n", off.Name, off.Description)
		}
	}
	if g.Offering != nil {
		fmt.Fprintf(&b, "Selected offering: %s\n", g.Offering.Name)
	}
	if len(g.Fields) > 0 {
		b.WriteString("Declared fields:\n")
		for _, f := range g.Fields {
			label := f.Label
			if label == "" {
				label = f.Name
			}
			status := "missing"
			if f.Filled {
				status = fmt.Sprintf("filled: %s", f.Value)
			} else if !f.Required {
				status = "optional, empty"
			}
			fmt.Fprintf(&b, "- %s (%s)", label, status)
			if len(f.Options) > 0 {
				fmt.Fprintf(&b, " [choices: %s]", strings.Join(f.Options, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(g.Missing) > 0 {
		fmt.Fprintf(&b, "Required fields still missing: %s\n", strings.Join(g.Missing, ", "))
		b.WriteString("Ask the user for the missing required fields.\n")
	} else if g.State == domain.StateFieldsetShown {
		b.WriteString("All required fields are filled. Tell the user to confirm submission via the confirm action when ready.\n")
	}
	return b.String()
}

// respond delegates user-facing text to the LLM provider with the grounded
// context. The generation call is the last pipeline stage; it never feeds
// back into state.
func (o *Orchestrator) respond(ctx context.Context, g GroundedContext, history []domain.Message, userMessage string) (string, error) {
	messages := []llm.ChatMessage{{Role: domain.RoleSystem, Content: g.systemPrompt()}}

	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, msg := range history[start:] {
		messages = append(messages, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: domain.RoleUser, Content: userMessage})

	llmCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()

	resp, err := o.llm.CreateChatCompletion(llmCtx, &llm.ChatCompletionRequest{
		Model:    o.cfg.LLMModel,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	content := resp.FirstContent()
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerationFailed)
	}
	return content, nil
}
