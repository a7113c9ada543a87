// Package holdqueue implements the graduated-autonomy hold queue: proposed
// actions wait out a cooldown window sized by the project's track record,
// during which a human may approve or cancel them. All status transitions out
// of pending are conditional writes so concurrent deciders race safely.
package holdqueue

import (
	"context"
	"errors"
	"time"

	"github.com/adalundhe/steward/core/actions"
)

// Status is a held action's lifecycle state. Transitions form a strict DAG:
// pending -> approved -> executed, pending -> cancelled, pending -> executed
// (automatic expiry path). Terminal states never transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
	StatusExecuted  Status = "executed"
)

// ErrNoMatch is returned by conditional store updates when no row satisfied
// the guard, meaning another caller already moved the action out of the
// expected state. Service methods translate it into a nil no-op result.
var ErrNoMatch = errors.New("holdqueue: conditional update matched no row")

// HeldAction is one proposed side-effecting action waiting out its hold.
type HeldAction struct {
	ID      string
	Project string
	Type    actions.Type
	Payload actions.Payload
	Status  Status

	HoldExpiresAt time.Time
	CreatedAt     time.Time
	DecidedAt     *time.Time
	ExecutedAt    *time.Time

	DecidedBy    string
	CancelReason string
}

// GraduationState is the per (project, action type) autonomy trust record.
// Tier is derived from the consecutive-approval streak; a cancellation resets
// the streak and therefore the tier.
type GraduationState struct {
	Project              string
	ActionType           actions.Type
	ConsecutiveApprovals int
	Tier                 int
	LastApprovedAt       *time.Time
	LastCancelledAt      *time.Time
}

// TransitionUpdate carries the fields written alongside a conditional status
// change.
type TransitionUpdate struct {
	To           Status
	DecidedBy    string
	CancelReason string
	DecidedAt    *time.Time
	ExecutedAt   *time.Time
}

// ActionStore persists held actions. Transition must be atomic: the status
// change applies only while the current status equals from, and a failed
// guard surfaces as ErrNoMatch, never as a silent overwrite.
type ActionStore interface {
	Create(ctx context.Context, a *HeldAction) error
	// Get returns nil, nil when the action does not exist in the project.
	Get(ctx context.Context, project, id string) (*HeldAction, error)
	ListPending(ctx context.Context, project string) ([]*HeldAction, error)
	ListAllPending(ctx context.Context) ([]*HeldAction, error)
	// ListReady returns pending actions whose hold expiry is at or before now.
	ListReady(ctx context.Context, now time.Time) ([]*HeldAction, error)
	Transition(ctx context.Context, id string, from Status, up TransitionUpdate) (*HeldAction, error)
}

// GraduationStore persists graduation states, created lazily per
// (project, action type) pair.
type GraduationStore interface {
	GetOrCreate(ctx context.Context, project string, t actions.Type) (*GraduationState, error)
	Save(ctx context.Context, gs *GraduationState) error
	ListByProject(ctx context.Context, project string) ([]*GraduationState, error)
}
