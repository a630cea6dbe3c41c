// Package orchestrator drives the guided request-creation workflow.
//
// Each channel carries one state machine instance:
//
//	IDLE -> CATALOG_SHOWN -> OFFERING_SUGGESTED -> FIELDSET_SHOWN -> COMPLETED
//
// plus a terminal ABANDONED reachable when the channel is discarded or the
// session ends. Turns run a THINK / ACT / OBSERVE / GROUND / RESPOND
// pipeline; commit is a separate, explicitly confirmed operation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deskflow/orchestrator/internal/adapter/llm"
	"github.com/deskflow/orchestrator/internal/adapter/ticketing"
	"github.com/deskflow/orchestrator/internal/broadcast"
	"github.com/deskflow/orchestrator/internal/config"
	"github.com/deskflow/orchestrator/internal/conversation"
	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/policy"
)

const (
	replyToolUnavailable = "I can't reach the system right now. Please try again in a moment."
	replyGenerationDown  = "Sorry, I'm having trouble responding right now. Please try again."
)

// sessions is the slice of the session lifecycle manager the orchestrator needs.
type sessions interface {
	LiveSession() *domain.Session
	ResolveIdentity(ctx context.Context, hint string) (*domain.Session, error)
}

// Orchestrator sequences tool calls, grounding and generation for every
// channel. It never reaches into the session store or registry internals;
// all shared state goes through their own methods.
type Orchestrator struct {
	sessions    sessions
	registry    *conversation.Registry
	gateway     ticketing.Gateway
	llm         llm.LLMClient
	policy      *policy.Engine
	broadcaster *broadcast.Broadcaster
	cfg         *config.Config

	sleep func(time.Duration) // injectable backoff sleep for tests
}

// New creates an orchestrator.
func New(sess sessions, registry *conversation.Registry, gateway ticketing.Gateway, llmClient llm.LLMClient, policyEngine *policy.Engine, bc *broadcast.Broadcaster, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		sessions:    sess,
		registry:    registry,
		gateway:     gateway,
		llm:         llmClient,
		policy:      policyEngine,
		broadcaster: bc,
		cfg:         cfg,
		sleep:       time.Sleep,
	}
}

// HandleTurn processes one user message on a channel. Turns on the same
// channel run strictly in arrival order (the registry serializes them);
// turns on different channels interleave freely.
func (o *Orchestrator) HandleTurn(ctx context.Context, channelID, content string) (*domain.TurnResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is required")
	}

	session, err := o.sessions.ResolveIdentity(ctx, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityUnresolved) {
			return nil, domain.ErrNoLiveSession
		}
		return nil, err
	}

	var result *domain.TurnResult
	err = o.registry.WithChannel(channelID, func(ch *domain.Channel) error {
		result = o.processTurn(ctx, session, ch, content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// processTurn runs the pipeline under the channel's turn lock.
func (o *Orchestrator) processTurn(ctx context.Context, session *domain.Session, ch *domain.Channel, content string) *domain.TurnResult {
	o.appendMessage(ch, domain.RoleUser, content)

	if ch.Draft.State.IsTerminal() {
		// A finished draft starts over on the next request-like message.
		ch.Draft = domain.DraftState{State: domain.StateIdle, Values: make(domain.FieldValues)}
	}

	// THINK: classify before any generation call. Generating first and
	// reinterpreting after is how fabricated transitions happen, so the
	// order is fixed.
	intent := Classify(ch.Draft, content)

	// Snapshot for rollback: tool failure and generation failure both
	// leave state and values exactly as they were.
	saved := cloneDraft(ch.Draft)

	// ACT + OBSERVE
	var deterministic string
	switch intent.Kind {
	case IntentStartRequest:
		if err := o.actListCatalog(ctx, ch); err != nil {
			ch.Draft = saved
			return o.failTurn(ch, replyToolUnavailable)
		}

	case IntentSelectOffering:
		ch.Draft.Offering = intent.Offering
		ch.Draft.State = domain.StateOfferingSuggested
		// Selection straight into the schema: the user already named the
		// offering unambiguously, no extra confirmation round needed.
		if err := o.actFetchSchema(ctx, ch, session); err != nil {
			ch.Draft = saved
			return o.failTurn(ch, replyToolUnavailable)
		}

	case IntentAffirm:
		if ch.Draft.Offering == nil {
			deterministic = "Which offering would you like to request?"
			break
		}
		if err := o.actFetchSchema(ctx, ch, session); err != nil {
			ch.Draft = saved
			return o.failTurn(ch, replyToolUnavailable)
		}

	case IntentDelegate:
		o.observeDelegation(ch)

	case IntentProvideValues:
		o.observeValues(ch, session, intent.Values)

	case IntentAmbiguous:
		// Fail closed: stay in the current state and ask.
		deterministic = clarifyReply(intent)

	case IntentChat:
		// No tool call, no state change; grounded chat only.
	}

	if deterministic != "" {
		return o.finishTurn(ch, deterministic, nil)
	}

	// GROUND + RESPOND
	grounded := buildGroundedContext(ch.Draft)
	history := ch.Messages[:len(ch.Messages)-1] // user turn goes in separately
	reply, err := o.respond(ctx, grounded, history, content)
	if err != nil {
		log.Printf("ERROR: generation failed on channel %s: %v", ch.ChannelID, err)
		ch.Draft = saved
		return o.failTurn(ch, replyGenerationDown)
	}

	return o.finishTurn(ch, reply, grounded.Missing)
}

// actListCatalog calls the list-offerings tool and shows the catalog.
func (o *Orchestrator) actListCatalog(ctx context.Context, ch *domain.Channel) error {
	var offerings []domain.Offering
	err := o.withRetry(ctx, "list_offerings", func(callCtx context.Context) error {
		var err error
		offerings, err = o.gateway.ListOfferings(callCtx)
		return err
	})
	if err != nil {
		return err
	}
	ch.Draft.Catalog = offerings
	ch.Draft.State = domain.StateCatalogShown
	return nil
}

// actFetchSchema fetches the selected offering's declared schema and moves
// to FIELDSET_SHOWN, auto-filling requester fields from the identity.
func (o *Orchestrator) actFetchSchema(ctx context.Context, ch *domain.Channel, session *domain.Session) error {
	offeringID := ch.Draft.Offering.OfferingID
	var schema *domain.OfferingSchema
	err := o.withRetry(ctx, "get_field_schema", func(callCtx context.Context) error {
		var err error
		schema, err = o.gateway.GetFieldSchema(callCtx, offeringID)
		return err
	})
	if err != nil {
		return err
	}
	ch.Draft.Schema = schema
	ch.Draft.State = domain.StateFieldsetShown
	o.observeIdentityFields(ch, session)
	return nil
}

// observeIdentityFields fills requester-type fields from the resolved
// identity. These are grounded facts: they came from the identity
// resolver, not from generation.
func (o *Orchestrator) observeIdentityFields(ch *domain.Channel, session *domain.Session) {
	if ch.Draft.Schema == nil {
		return
	}
	for _, field := range ch.Draft.Schema.Fields {
		if _, ok := ch.Draft.Values[field.Name]; ok {
			continue
		}
		name := strings.ToLower(field.Name)
		if strings.Contains(name, "requested_for") || strings.Contains(name, "requester") || name == "opened_by" {
			ch.Draft.Values[field.Name] = session.Identity.SubjectID
		}
	}
}

// observeDelegation fills remaining fields with schema-declared defaults.
// Enumerated fields fall back to their first listed option; free-text
// required fields without a declared default are left unset on purpose —
// inventing content for them is exactly what this pipeline exists to
// prevent, so validation surfaces them instead.
func (o *Orchestrator) observeDelegation(ch *domain.Channel) {
	if ch.Draft.Schema == nil {
		return
	}
	for _, field := range ch.Draft.Schema.Fields {
		if val, ok := ch.Draft.Values[field.Name]; ok && strings.TrimSpace(val) != "" {
			continue
		}
		switch {
		case field.Default != "":
			ch.Draft.Values[field.Name] = field.Default
		case len(field.Options) > 0:
			ch.Draft.Values[field.Name] = field.Options[0].Value
		}
	}
}

// observeValues merges user-provided values into the draft.
func (o *Orchestrator) observeValues(ch *domain.Channel, session *domain.Session, values domain.FieldValues) {
	for name, val := range values {
		ch.Draft.Values[name] = val
	}
	o.observeIdentityFields(ch, session)
}

// withRetry runs a gateway call with bounded retry and exponential backoff.
// Only transient unavailability is retried; every attempt carries the tool
// timeout, and a timeout counts as a failed attempt.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := o.cfg.RetryBackoff
	attempts := o.cfg.ToolMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			o.sleep(backoff)
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrToolUnavailable) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		log.Printf("WARN: %s attempt %d/%d failed: %v", op, attempt, attempts, err)
	}
	return fmt.Errorf("%w: %s retries exhausted: %v", domain.ErrToolUnavailable, op, lastErr)
}

// finishTurn appends the assistant reply and publishes it.
func (o *Orchestrator) finishTurn(ch *domain.Channel, reply string, missing []string) *domain.TurnResult {
	o.appendMessage(ch, domain.RoleAssistant, reply)
	return &domain.TurnResult{
		Reply:         reply,
		State:         ch.Draft.State,
		MissingFields: missing,
	}
}

// failTurn is finishTurn for the failure replies; state was already
// rolled back by the caller.
func (o *Orchestrator) failTurn(ch *domain.Channel, reply string) *domain.TurnResult {
	return o.finishTurn(ch, reply, nil)
}

// appendMessage appends to the channel under the already-held turn lock
// and publishes a message_received event to other surfaces.
func (o *Orchestrator) appendMessage(ch *domain.Channel, role, content string) {
	ch.Messages = append(ch.Messages, domain.Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	o.broadcaster.Publish(ch.ChannelID, domain.EventTypeMessageReceived, domain.MessageReceivedPayload{
		Role:    role,
		Content: content,
	})
}

// clarifyReply builds the fail-closed clarifying question.
func clarifyReply(intent Intent) string {
	if len(intent.Matches) > 1 {
		names := make([]string, 0, len(intent.Matches))
		for _, m := range intent.Matches {
			names = append(names, m.Name)
		}
		return fmt.Sprintf("I can see more than one matching offering: %s. Which one do you mean?", strings.Join(names, ", "))
	}
	return "Just to be sure: should I go ahead with the suggested offering, or would you like a different one?"
}

func cloneDraft(d domain.DraftState) domain.DraftState {
	cp := d
	cp.Values = make(domain.FieldValues, len(d.Values))
	for k, v := range d.Values {
		cp.Values[k] = v
	}
	cp.Catalog = append([]domain.Offering(nil), d.Catalog...)
	return cp
}
