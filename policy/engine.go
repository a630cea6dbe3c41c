// Package policy gates record creation through OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow               = "allow"
	DecisionRequireConfirmation = "require_confirmation"
	DecisionBlock               = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.commit_policy.decision"),
		rego.Module("commit_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the commit policy. Input keys: offering_id, confirmed,
// subject_id, roles. Returns one of the Decision values.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; an empty result means the module
		// is broken, so fail closed.
		return DecisionBlock, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionBlock, nil
}

// DefaultPolicy is the default commit policy: record creation requires the
// UI's explicit confirmation action, and offerings on the restricted list
// are never committed from chat.
const DefaultPolicy = `
package commit_policy

default decision = "allow"

decision = "require_confirmation" {
	not input.confirmed
	not restricted_offering
}

decision = "block" {
	restricted_offering
}

restricted_offering {
	input.offering_id == restricted[_]
}

restricted = ["off_payroll_change", "off_admin_access"]
`
