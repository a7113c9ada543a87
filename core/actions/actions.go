// Package actions defines the closed set of side-effecting action types the
// hold queue can carry, their typed payloads, and the executor surface that
// performs them.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
)

// Type identifies an action variant. The set is closed: adding a variant
// means extending the Payload sum type and every exhaustive switch over it.
type Type string

const (
	TypeEmailStakeholder Type = "email_stakeholder"
	TypeJiraStatusChange Type = "jira_status_change"
)

// Payload is the sum type over action payload shapes. Implementations live in
// this package only.
type Payload interface {
	ActionType() Type
	isPayload()
}

// EmailPayload is an outbound stakeholder email.
type EmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func (EmailPayload) ActionType() Type { return TypeEmailStakeholder }
func (EmailPayload) isPayload()       {}

// JiraTransitionPayload is a ticket status transition.
type JiraTransitionPayload struct {
	IssueKey   string `json:"issue_key"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Comment    string `json:"comment,omitempty"`
}

func (JiraTransitionPayload) ActionType() Type { return TypeJiraStatusChange }
func (JiraTransitionPayload) isPayload()       {}

// Executor performs actions against the outside world. Implementations own
// their own timeout and retry policy; any error they return is captured
// per-item by the hold queue's batch path.
type Executor interface {
	// ExecuteEmail sends the email and returns the provider message id.
	ExecuteEmail(ctx context.Context, p EmailPayload) (string, error)
	ExecuteJiraStatusChange(ctx context.Context, p JiraTransitionPayload) error
}

// Dispatch routes a payload to the matching executor method. The switch is
// exhaustive over the Payload sum type; an unknown dynamic type is a
// programming error surfaced as an error rather than a panic. The returned
// reference is the provider message id for emails, empty otherwise.
func Dispatch(ctx context.Context, ex Executor, p Payload) (string, error) {
	switch v := p.(type) {
	case EmailPayload:
		return ex.ExecuteEmail(ctx, v)
	case JiraTransitionPayload:
		return "", ex.ExecuteJiraStatusChange(ctx, v)
	default:
		return "", fmt.Errorf("dispatch: unhandled action payload %T", p)
	}
}

// envelope is the storage encoding: the type tag selects the payload shape.
type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serialises a payload with its type tag for storage.
func Encode(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.ActionType(), err)
	}
	return json.Marshal(envelope{Type: p.ActionType(), Payload: raw})
}

// Decode deserialises a stored payload envelope back into its concrete type.
func Decode(data []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode action envelope: %w", err)
	}

	switch env.Type {
	case TypeEmailStakeholder:
		var p EmailPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode email payload: %w", err)
		}
		return p, nil
	case TypeJiraStatusChange:
		var p JiraTransitionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode jira payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("decode action envelope: unknown type %q", env.Type)
	}
}
