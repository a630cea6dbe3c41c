package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/internal/validation"
	"github.com/deskflow/orchestrator/policy"
)

// Commit submits the drafted request. It is triggered only by the UI's
// explicit confirmation command, never inferred from conversational tone.
//
// The operation runs in three phases so no lock is held across the
// create-record call:
//
//  1. under the channel lock: validate, evaluate policy, mark the commit
//     in flight and snapshot the draft;
//  2. unlocked: dispatch create-record. Once dispatched, the call is
//     awaited to a definitive outcome — the caller's cancellation is
//     deliberately detached to avoid duplicate-submission risk;
//  3. under the channel lock: record the outcome.
func (o *Orchestrator) Commit(ctx context.Context, req domain.CommitRequest) (*domain.CommitResult, error) {
	session := o.sessions.LiveSession()
	if session == nil {
		return nil, domain.ErrNoLiveSession
	}

	// Phase 1: validate and claim the commit under the channel lock.
	var (
		offeringID string
		sessionID  string
		values     domain.FieldValues
		early      *domain.CommitResult
	)
	err := o.registry.WithChannel(req.ChannelID, func(ch *domain.Channel) error {
		if ch.Draft.State == domain.StateCompleted {
			early = &domain.CommitResult{Committed: false, Reason: "request already submitted"}
			return nil
		}
		if ch.Draft.State != domain.StateFieldsetShown || ch.Draft.Schema == nil {
			early = &domain.CommitResult{Committed: false, Reason: "no request is ready to submit"}
			return nil
		}
		if ch.Draft.Offering == nil || ch.Draft.Offering.OfferingID != req.OfferingID {
			early = &domain.CommitResult{Committed: false, Reason: "offering does not match the drafted request"}
			return nil
		}
		if ch.Draft.CommitInFlight {
			return domain.ErrCommitInFlight
		}

		// Final UI-side edits are merged before validation.
		for name, val := range req.Values {
			ch.Draft.Values[name] = val
		}

		missing := validation.FindMissingRequired(ch.Draft.Schema, ch.Draft.Values)
		if len(missing) > 0 {
			// Surfaced verbatim, never summarized away. State stays
			// FIELDSET_SHOWN.
			early = &domain.CommitResult{
				Committed:     false,
				MissingFields: validation.FieldNames(missing),
				Reason:        "missing required fields: " + strings.Join(validation.Labels(missing), ", "),
			}
			return nil
		}

		decision, err := o.policy.Evaluate(ctx, map[string]interface{}{
			"offering_id": req.OfferingID,
			"confirmed":   req.Confirmed,
			"subject_id":  session.Identity.SubjectID,
			"roles":       session.Identity.Roles,
		})
		if err != nil {
			return fmt.Errorf("policy evaluation failed: %w", err)
		}
		switch decision {
		case policy.DecisionAllow:
		case policy.DecisionRequireConfirmation:
			early = &domain.CommitResult{Committed: false, Reason: "explicit confirmation is required to submit"}
			return nil
		default:
			early = &domain.CommitResult{Committed: false, Reason: "submission blocked by policy"}
			return nil
		}

		ch.Draft.CommitInFlight = true
		offeringID = ch.Draft.Offering.OfferingID
		sessionID = ch.SessionID
		values = make(domain.FieldValues, len(ch.Draft.Values))
		for k, v := range ch.Draft.Values {
			values[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if early != nil {
		return early, nil
	}

	// Phase 2: dispatch outside the lock. No mid-flight cancellation:
	// the backend may have accepted the record even if the UI went away.
	record, createErr := o.createRecord(context.WithoutCancel(ctx), offeringID, values)

	// Phase 3: record the outcome.
	var result *domain.CommitResult
	err = o.registry.WithChannel(req.ChannelID, func(ch *domain.Channel) error {
		if ch.SessionID != sessionID {
			// The session turned over mid-flight and the channel was
			// recreated. Leave the fresh channel untouched; the outcome
			// is still reported to the caller below.
			if createErr == nil {
				result = &domain.CommitResult{Committed: true, Record: record}
			} else {
				result = &domain.CommitResult{Committed: false, Reason: replyToolUnavailable}
			}
			return nil
		}
		ch.Draft.CommitInFlight = false
		if createErr != nil {
			log.Printf("ERROR: create record failed on channel %s: %v", req.ChannelID, createErr)
			result = &domain.CommitResult{Committed: false, Reason: replyToolUnavailable}
			return nil
		}

		ch.Draft.State = domain.StateCompleted
		// The synthetic system message is the grounded fact later turns
		// reference; it records what the backend actually returned.
		o.appendMessage(ch, domain.RoleSystem,
			fmt.Sprintf("Service request %s (id %s) was created for offering %s.",
				record.RecordNumber, record.RecordID, offeringID))
		result = &domain.CommitResult{Committed: true, Record: record}
		return nil
	})
	if err != nil {
		// The session ended while the create call was outstanding. The
		// record exists; report it even though the channel is gone.
		if errors.Is(err, domain.ErrNoLiveSession) && createErr == nil {
			log.Printf("WARN: session ended during commit on channel %s; record %s was created", req.ChannelID, record.RecordNumber)
			return &domain.CommitResult{Committed: true, Record: record}, nil
		}
		return nil, err
	}
	return result, nil
}

// createRecord runs the create call with the commit retry policy: only
// transport-level unavailability (the backend never acknowledged the
// request) is retried; anything else surfaces immediately.
func (o *Orchestrator) createRecord(ctx context.Context, offeringID string, values domain.FieldValues) (*domain.CreatedRecord, error) {
	var record *domain.CreatedRecord
	err := o.withRetry(ctx, "create_record", func(callCtx context.Context) error {
		var err error
		record, err = o.gateway.CreateRecord(callCtx, offeringID, values)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DiscardChannel releases a channel when its UI surface closes.
func (o *Orchestrator) DiscardChannel(channelID string) {
	o.registry.Discard(channelID)
}

// ChannelSnapshot returns a read-only copy of a channel for inspection.
func (o *Orchestrator) ChannelSnapshot(channelID string) *domain.Channel {
	return o.registry.Snapshot(channelID)
}
