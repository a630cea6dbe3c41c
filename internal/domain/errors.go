package domain

import "errors"

// Sentinel errors for the orchestrator's failure taxonomy. All of these are
// expected states at the service boundary, not crashes: callers convert them
// into user-visible replies and leave channel state unchanged.
var (
	// ErrIdentityUnresolved means no strategy could produce an identity.
	// A normal terminal outcome of resolution, not an exception.
	ErrIdentityUnresolved = errors.New("identity unresolved")

	// ErrNoLiveSession means an operation requiring a session ran without one.
	ErrNoLiveSession = errors.New("no live session")

	// ErrToolUnavailable marks a transient ticketing gateway failure.
	// Retried with backoff, then surfaced.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrUnauthorized marks an authorization failure from the ticketing
	// backend. The probe detector treats it as an implicit logout.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrGenerationFailed marks an LLM provider failure. Surfaced as a
	// generic apology, never as fabricated content.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrCommitInFlight means a commit is already dispatched for the channel.
	ErrCommitInFlight = errors.New("commit already in flight")
)
