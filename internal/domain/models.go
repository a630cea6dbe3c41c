// Package domain defines the core domain models for the orchestrator.
package domain

import (
	"encoding/json"
	"time"
)

// Identity is the resolved authenticated user for a session.
// Immutable once resolved; replaced wholesale on re-resolution.
type Identity struct {
	SubjectID   string   `json:"subject_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles,omitempty"`
	Teams       []string `json:"teams,omitempty"`
}

// Session is a live identity plus the token that isolates conversation
// history across logins. SessionID is freshly generated on every
// resolution that follows a logout and is never reused.
type Session struct {
	Identity      Identity  `json:"identity"`
	SessionID     string    `json:"session_id"`
	EstablishedAt time.Time `json:"established_at"`
}

// Message is a single message in a channel. Role "system" marks synthetic
// facts injected by the orchestrator (e.g. the id of a created record) so
// later turns reference grounded truth.
type Message struct {
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Offering is a catalog entry describing a requestable record.
type Offering struct {
	OfferingID  string `json:"offering_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FieldOption is one allowed value of an enumerated field.
type FieldOption struct {
	Value    string `json:"value"`
	RecordID string `json:"record_id,omitempty"`
}

// FieldSpec describes one field of an offering's schema.
type FieldSpec struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Required bool          `json:"required"`
	Type     string        `json:"type"` // text, choice, reference, ...
	Default  string        `json:"default,omitempty"`
	Options  []FieldOption `json:"options,omitempty"`
}

// OfferingSchema is the declared field schema of an offering. Fetched from
// the ticketing gateway, never invented.
type OfferingSchema struct {
	OfferingID string      `json:"offering_id"`
	Fields     []FieldSpec `json:"fields"`
}

// FieldValues maps field name to a scalar value, supplied incrementally
// across turns. Completeness is only required at commit.
type FieldValues map[string]string

// DraftState is the per-channel request-creation state.
type DraftState struct {
	State    RequestState    `json:"state"`
	Catalog  []Offering      `json:"catalog,omitempty"`
	Offering *Offering       `json:"offering,omitempty"`
	Schema   *OfferingSchema `json:"schema,omitempty"`
	Values   FieldValues     `json:"values,omitempty"`

	// CommitInFlight guards against a second dispatch of the same commit
	// while the create-record call is still outstanding.
	CommitInFlight bool `json:"-"`
}

// Channel is one conversational surface (e.g. one open tab) with its own
// message history and request-creation state. A channel is bound to the
// session it was created under; a mismatch with the live session forces
// the channel to be discarded and recreated.
type Channel struct {
	ChannelID string     `json:"channel_id"`
	SessionID string     `json:"session_id"`
	Messages  []Message  `json:"messages"`
	Draft     DraftState `json:"draft"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreatedRecord is the result of a successful commit.
type CreatedRecord struct {
	RecordID     string `json:"record_id"`
	RecordNumber string `json:"record_number"`
}

// Signal is a login/logout notification from one of the detectors.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	Hint   string     `json:"hint,omitempty"`
	Source string     `json:"source,omitempty"` // cookie, liveness, probe
}

// Event is a per-channel event pushed to UI surfaces.
type Event struct {
	Type      EventType       `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SessionStartedPayload is the payload for session_started events.
type SessionStartedPayload struct {
	SessionID string `json:"session_id"`
}

// MessageReceivedPayload is the payload for message_received events.
type MessageReceivedPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResult is what one processed turn returns to the transport layer.
type TurnResult struct {
	Reply         string       `json:"reply"`
	State         RequestState `json:"state"`
	MissingFields []string     `json:"missing_fields,omitempty"`
}

// CommitRequest is the explicit commit command issued by the UI only on
// user action, never inferred from conversational tone.
type CommitRequest struct {
	ChannelID  string      `json:"channel_id"`
	OfferingID string      `json:"offering_id"`
	Values     FieldValues `json:"values,omitempty"`
	Confirmed  bool        `json:"confirmed"`
}

// CommitResult is the outcome of a commit attempt.
type CommitResult struct {
	Committed     bool           `json:"committed"`
	Record        *CreatedRecord `json:"record,omitempty"`
	MissingFields []string       `json:"missing_fields,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}
