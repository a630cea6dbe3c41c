package domain

// RequestState represents the request-creation state of a channel.
type RequestState string

const (
	StateIdle              RequestState = "IDLE"
	StateCatalogShown      RequestState = "CATALOG_SHOWN"
	StateOfferingSuggested RequestState = "OFFERING_SUGGESTED"
	StateFieldsetShown     RequestState = "FIELDSET_SHOWN"
	StateCompleted         RequestState = "COMPLETED"
	StateAbandoned         RequestState = "ABANDONED"
)

// IsTerminal reports whether the state admits no further transitions.
func (s RequestState) IsTerminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// SignalKind represents the kind of an identity signal.
type SignalKind string

const (
	SignalLogin  SignalKind = "LOGIN"
	SignalLogout SignalKind = "LOGOUT"
)

// EventType represents the type of a UI-facing event.
type EventType string

const (
	EventTypeSessionStarted  EventType = "session_started"
	EventTypeSessionEnded    EventType = "session_ended"
	EventTypeMessageReceived EventType = "message_received"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
