// Package policy evaluates caller access decisions with OPA.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Actions understood by DefaultPolicy.
const (
	ActionConsult      = "consult"
	ActionContextRead  = "context.read"
	ActionContextClear = "context.clear"
	ActionEventsRead   = "events.read"
)

// Input is the document the policy is evaluated against.
type Input struct {
	Action       string
	Role         string
	Anonymous    bool
	UserID       string
	TargetUserID string
}

func (in Input) toMap() map[string]interface{} {
	return map[string]interface{}{
		"action":         in.Action,
		"role":           in.Role,
		"anonymous":      in.Anonymous,
		"user_id":        in.UserID,
		"target_user_id": in.TargetUserID,
	}
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.consult_policy.decision"),
		rego.Module("consult_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Load creates an engine from the policy file at path, or from
// DefaultPolicy when path is empty.
func Load(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks the access policy. An undefined decision denies.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input.toMap()))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no decision"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected decision type %T", results[0].Expressions[0].Value)
	}
	allow, _ := obj["allow"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package consult_policy

default allow = false

# Anyone may consult for themselves; anonymous callers get no stored context.
allow {
	input.action == "consult"
	input.target_user_id == ""
}

allow {
	input.action == "consult"
	not input.anonymous
	input.target_user_id == input.user_id
}

# Stored context belongs to its user.
allow {
	context_action
	not input.anonymous
	input.target_user_id == input.user_id
}

# Administrators may act on behalf of any user.
allow {
	input.role == "ADMIN"
	not input.anonymous
}

context_action {
	input.action == "context.read"
}

context_action {
	input.action == "context.clear"
}

reason = "allowed" {
	allow
} else = "authentication required" {
	input.anonymous
} else = "only administrators may act for another user" {
	input.target_user_id != input.user_id
} else = "action not permitted"

decision = {"allow": allow, "reason": reason}
`
