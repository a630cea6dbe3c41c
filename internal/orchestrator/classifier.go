package orchestrator

import (
	"strings"

	"github.com/deskflow/orchestrator/internal/domain"
)

// IntentKind classifies a user message against the current draft state.
type IntentKind string

const (
	IntentStartRequest  IntentKind = "start_request"
	IntentSelectOffering IntentKind = "select_offering"
	IntentAffirm        IntentKind = "affirm"
	IntentDelegate      IntentKind = "delegate"
	IntentProvideValues IntentKind = "provide_values"
	IntentChat          IntentKind = "chat"
	IntentAmbiguous     IntentKind = "ambiguous"
)

// Intent is the result of classification. Classification runs before any
// generation call: its outcome decides what grounded context is supplied
// to the LLM, never the other way around.
type Intent struct {
	Kind     IntentKind
	Offering *domain.Offering
	Matches  []domain.Offering // populated when Kind == IntentAmbiguous
	Values   domain.FieldValues
}

var startPhrases = []string{
	"create", "open", "raise", "submit", "new request", "service request",
	"need a", "need an", "order", "request a", "request an", "file a ticket",
}

var delegationPhrases = []string{
	"up to you", "you decide", "your call", "best judgement", "best judgment",
	"whatever you think", "use defaults", "you choose", "dealer's choice",
	"i don't mind", "dont mind", "i trust you",
}

var affirmPhrases = []string{
	"yes", "yeah", "yep", "sure", "ok", "okay", "sounds good", "go ahead",
	"that one", "correct", "exactly", "please do", "do it", "that works",
}

// Classify maps a user message to an intent given the current draft state.
// The matcher tolerates paraphrase but never advances state on mere topical
// similarity: when the evidence is ambiguous it returns IntentAmbiguous so
// the caller fails closed (state unchanged, clarifying question).
func Classify(draft domain.DraftState, message string) Intent {
	norm := normalize(message)

	// Delegation is checked first: "it's up to you" inside FIELDSET_SHOWN
	// means fill remaining fields with declared defaults.
	if draft.State == domain.StateFieldsetShown && containsAny(norm, delegationPhrases) {
		return Intent{Kind: IntentDelegate}
	}

	switch draft.State {
	case domain.StateIdle:
		if containsAny(norm, startPhrases) {
			return Intent{Kind: IntentStartRequest}
		}
		return Intent{Kind: IntentChat}

	case domain.StateCatalogShown:
		matches := matchOfferings(norm, draft.Catalog)
		switch len(matches) {
		case 0:
			if containsAny(norm, startPhrases) {
				// Restating the wish to create something keeps the
				// catalog on screen rather than resetting.
				return Intent{Kind: IntentStartRequest}
			}
			return Intent{Kind: IntentChat}
		case 1:
			m := matches[0]
			return Intent{Kind: IntentSelectOffering, Offering: &m}
		default:
			return Intent{Kind: IntentAmbiguous, Matches: matches}
		}

	case domain.StateOfferingSuggested:
		// The previous assistant turn suggested a specific offering; a
		// bare affirmation confirms it, naming it again confirms it too.
		if draft.Offering != nil && offeringMatched(norm, *draft.Offering) {
			return Intent{Kind: IntentAffirm}
		}
		if isAffirmation(norm) {
			return Intent{Kind: IntentAffirm}
		}
		// Naming a different catalog entry switches the suggestion.
		matches := matchOfferings(norm, draft.Catalog)
		if len(matches) == 1 {
			m := matches[0]
			return Intent{Kind: IntentSelectOffering, Offering: &m}
		}
		if len(matches) > 1 {
			return Intent{Kind: IntentAmbiguous, Matches: matches}
		}
		return Intent{Kind: IntentAmbiguous}

	case domain.StateFieldsetShown:
		if values := parseProvidedValues(message, draft.Schema); len(values) > 0 {
			return Intent{Kind: IntentProvideValues, Values: values}
		}
		return Intent{Kind: IntentChat}
	}

	return Intent{Kind: IntentChat}
}

// normalize lowercases and collapses punctuation to spaces.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsAny(norm string, phrases []string) bool {
	padded := " " + norm + " "
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// isAffirmation accepts short confirmation utterances only. A long message
// that merely contains "ok" somewhere is not a confirmation.
func isAffirmation(norm string) bool {
	if len(strings.Fields(norm)) > 4 {
		return false
	}
	return containsAny(norm, affirmPhrases)
}

// matchOfferings returns the catalog entries the message plausibly names.
// An entry matches when the full offering name appears, or when a token
// distinctive to exactly one entry appears. Generic tokens shared across
// entries never match on their own.
func matchOfferings(norm string, catalog []domain.Offering) []domain.Offering {
	var matches []domain.Offering
	for _, off := range catalog {
		if offeringMatched(norm, off) {
			matches = append(matches, off)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	// Distinctive-token pass: count how many offerings carry each token.
	tokenOwners := make(map[string][]int)
	for i, off := range catalog {
		for _, tok := range strings.Fields(normalize(off.Name)) {
			if len(tok) < 4 {
				continue
			}
			tokenOwners[tok] = append(tokenOwners[tok], i)
		}
	}
	padded := " " + norm + " "
	seen := make(map[int]bool)
	for tok, owners := range tokenOwners {
		if len(owners) != 1 {
			continue
		}
		if strings.Contains(padded, " "+tok+" ") && !seen[owners[0]] {
			seen[owners[0]] = true
			matches = append(matches, catalog[owners[0]])
		}
	}
	return matches
}

func offeringMatched(norm string, off domain.Offering) bool {
	name := normalize(off.Name)
	return name != "" && strings.Contains(" "+norm+" ", " "+name+" ")
}

// parseProvidedValues extracts "label: value" style assignments and bare
// option mentions from a message, keyed by schema field name. Only fields
// the schema declares are accepted; nothing is invented.
func parseProvidedValues(message string, schema *domain.OfferingSchema) domain.FieldValues {
	values := make(domain.FieldValues)
	if schema == nil {
		return values
	}

	for _, segment := range splitSegments(message) {
		name, val, ok := splitAssignment(segment)
		if !ok {
			continue
		}
		if field := findField(schema, name); field != nil && strings.TrimSpace(val) != "" {
			values[field.Name] = strings.TrimSpace(val)
		}
	}

	// A message naming exactly one option of an enumerated field counts
	// as choosing it ("make it a laptop").
	norm := normalize(message)
	for _, field := range schema.Fields {
		if _, done := values[field.Name]; done || len(field.Options) == 0 {
			continue
		}
		var hit string
		for _, opt := range field.Options {
			if containsAny(norm, []string{normalize(opt.Value)}) {
				if hit != "" {
					hit = "" // two options named, ambiguous
					break
				}
				hit = opt.Value
			}
		}
		if hit != "" {
			values[field.Name] = hit
		}
	}

	return values
}

func splitSegments(message string) []string {
	return strings.FieldsFunc(message, func(r rune) bool {
		return r == '\n' || r == ';' || r == ','
	})
}

func splitAssignment(segment string) (name, value string, ok bool) {
	for _, sep := range []string{":", "=", " is "} {
		if idx := strings.Index(segment, sep); idx > 0 {
			return segment[:idx], segment[idx+len(sep):], true
		}
	}
	return "", "", false
}

func findField(schema *domain.OfferingSchema, key string) *domain.FieldSpec {
	norm := normalize(key)
	for i, field := range schema.Fields {
		if normalize(field.Name) == norm || normalize(field.Label) == norm {
			return &schema.Fields[i]
		}
	}
	return nil
}
