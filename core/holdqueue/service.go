package holdqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/events"
)

// Service is the hold-queue policy layer: it ties graduation-aware hold-time
// computation, periodic ready-action execution, and approve/cancel race
// handling together over the injected stores.
type Service struct {
	store  ActionStore
	grad   GraduationStore
	policy Policy
	bus    *events.Bus
	log    *slog.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the service clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBus attaches an audit event bus.
func WithBus(bus *events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// NewService builds a hold-queue service.
func NewService(store ActionStore, grad GraduationStore, policy Policy, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		grad:   grad,
		policy: policy,
		log:    logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueueResult reports what QueueAction persisted.
type QueueResult struct {
	Action      *HeldAction
	HoldMinutes int
	Tier        int
}

// QueueAction persists a proposed action as pending. The hold duration comes
// from the project's graduation tier for the action type; suggestedHoldMinutes
// is advisory only and is overridden by policy. The hold is clamped to at
// least one minute: even fully graduated autonomy passes through an
// observable queued state, never a synchronous execution.
func (s *Service) QueueAction(ctx context.Context, project string, payload actions.Payload, suggestedHoldMinutes int) (*QueueResult, error) {
	actionType := payload.ActionType()

	gs, err := s.grad.GetOrCreate(ctx, project, actionType)
	if err != nil {
		return nil, fmt.Errorf("queue action: graduation state: %w", err)
	}

	holdMinutes := s.policy.HoldMinutes(gs.Tier)
	if holdMinutes < 1 {
		holdMinutes = 1
	}
	if suggestedHoldMinutes > 0 && suggestedHoldMinutes != holdMinutes {
		s.log.Debug("queue action: caller hold suggestion overridden by graduation policy",
			slog.Int("suggested", suggestedHoldMinutes),
			slog.Int("applied", holdMinutes),
			slog.Int("tier", gs.Tier),
		)
	}

	now := s.now()
	action := &HeldAction{
		ID:            uuid.NewString(),
		Project:       project,
		Type:          actionType,
		Payload:       payload,
		Status:        StatusPending,
		HoldExpiresAt: now.Add(time.Duration(holdMinutes) * time.Minute),
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, action); err != nil {
		return nil, fmt.Errorf("queue action: persist: %w", err)
	}

	s.bus.Publish(events.New(events.TypeActionQueued, project).
		WithAction(action.ID, string(actionType)).
		WithDetail(FormatHoldTime(holdMinutes)))

	return &QueueResult{Action: action, HoldMinutes: holdMinutes, Tier: gs.Tier}, nil
}

// ProcessError records one failed action from a batch pass.
type ProcessError struct {
	ActionID string
	Err      error
}

// ProcessResult summarises one ProcessQueue invocation.
type ProcessResult struct {
	Processed int
	Executed  int
	Errors    []ProcessError
}

// ProcessQueue executes every action whose hold has expired. Each action is
// claimed out of pending via a conditional write before it is dispatched, so
// a concurrent approve or cancel of the same action excludes the batch, and
// each success is recorded as a graduation approval: an auto-expired hold
// nobody cancelled is equivalent to an explicit approval. A per-action
// failure releases the claim, is captured in the result, and never blocks
// the rest of the batch.
func (s *Service) ProcessQueue(ctx context.Context, executor actions.Executor) (*ProcessResult, error) {
	ready, err := s.store.ListReady(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("process queue: list ready: %w", err)
	}

	result := &ProcessResult{Processed: len(ready)}
	for _, action := range ready {
		executed, err := s.executeReady(ctx, executor, action)
		if err != nil {
			result.Errors = append(result.Errors, ProcessError{ActionID: action.ID, Err: err})
			s.log.Warn("hold queue: action execution failed",
				slog.String("action_id", action.ID),
				slog.String("project", action.Project),
				slog.String("error", err.Error()),
			)
			s.bus.Publish(events.New(events.TypeActionFailed, action.Project).
				WithAction(action.ID, string(action.Type)).
				WithDetail(err.Error()))
			continue
		}
		if executed {
			result.Executed++
		}
	}
	return result, nil
}

func (s *Service) executeReady(ctx context.Context, executor actions.Executor, action *HeldAction) (bool, error) {
	// Claim the action out of pending before dispatching anything. The
	// conditional write is the only mutual exclusion between the batch and a
	// concurrent approve or cancel; dispatching first would let both sides
	// deliver the action.
	claimed, err := s.store.Transition(ctx, action.ID, StatusPending, TransitionUpdate{
		To: StatusExecuted,
	})
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			// Another writer decided this action between the ready fetch and
			// the claim; their transition stands and nothing is dispatched.
			s.log.Debug("hold queue: action decided before batch claim",
				slog.String("action_id", action.ID))
			return false, nil
		}
		return false, fmt.Errorf("claim for execution: %w", err)
	}

	ref, err := actions.Dispatch(ctx, executor, claimed.Payload)
	if err != nil {
		// Release the claim so the next cycle retries the dispatch. No other
		// writer transitions out of executed, so the release cannot lose.
		if _, relErr := s.store.Transition(ctx, action.ID, StatusExecuted, TransitionUpdate{
			To: StatusPending,
		}); relErr != nil {
			return false, fmt.Errorf("execute failed (%v), release claim: %w", err, relErr)
		}
		return false, err
	}

	executedAt := s.now()
	if _, err := s.store.Transition(ctx, action.ID, StatusExecuted, TransitionUpdate{
		To:         StatusExecuted,
		ExecutedAt: &executedAt,
	}); err != nil {
		return false, fmt.Errorf("mark executed: %w", err)
	}

	if err := s.recordGraduationApproval(ctx, action.Project, action.Type); err != nil {
		return false, err
	}

	detail := "auto-executed after hold expiry"
	if ref != "" {
		detail = fmt.Sprintf("%s (ref %s)", detail, ref)
	}
	s.bus.Publish(events.New(events.TypeActionExecuted, action.Project).
		WithAction(action.ID, string(action.Type)).
		WithDetail(detail))
	return true, nil
}

// ApproveAction transitions a pending action to approved and executes it
// immediately. It returns nil, nil when the action is missing, already
// decided, or lost the conditional write - all mean "no state change
// occurred" and are deliberately indistinguishable. An execution failure
// after a committed approval is returned as an error with the action left in
// approved: a human approved it, and an operational failure must not erase
// that decision.
func (s *Service) ApproveAction(ctx context.Context, project, actionID string, executor actions.Executor, decidedBy string) (*HeldAction, error) {
	action, err := s.store.Get(ctx, project, actionID)
	if err != nil {
		return nil, fmt.Errorf("approve action: %w", err)
	}
	if action == nil || action.Status != StatusPending {
		return nil, nil
	}

	decidedAt := s.now()
	approved, err := s.store.Transition(ctx, actionID, StatusPending, TransitionUpdate{
		To:        StatusApproved,
		DecidedBy: decidedBy,
		DecidedAt: &decidedAt,
	})
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return nil, nil
		}
		return nil, fmt.Errorf("approve action: %w", err)
	}

	s.bus.Publish(events.New(events.TypeActionApproved, project).
		WithAction(actionID, string(approved.Type)).
		WithDetail(decidedBy))

	ref, err := actions.Dispatch(ctx, executor, approved.Payload)
	if err != nil {
		s.log.Error("hold queue: execution failed after approval",
			slog.String("action_id", actionID),
			slog.String("project", project),
			slog.String("error", err.Error()),
		)
		s.bus.Publish(events.New(events.TypeActionFailed, project).
			WithAction(actionID, string(approved.Type)).
			WithDetail(err.Error()))
		return nil, fmt.Errorf("approve action: execute: %w", err)
	}

	executedAt := s.now()
	executed, err := s.store.Transition(ctx, actionID, StatusApproved, TransitionUpdate{
		To:         StatusExecuted,
		ExecutedAt: &executedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("approve action: mark executed: %w", err)
	}

	if err := s.recordGraduationApproval(ctx, project, executed.Type); err != nil {
		return nil, err
	}

	detail := "approved and executed"
	if ref != "" {
		detail = fmt.Sprintf("%s (ref %s)", detail, ref)
	}
	s.bus.Publish(events.New(events.TypeActionExecuted, project).
		WithAction(actionID, string(executed.Type)).
		WithDetail(detail))
	return executed, nil
}

// CancelAction transitions a pending action to cancelled and resets the
// project's graduation streak for that action type. The nil, nil contract
// matches ApproveAction: missing, already decided, and race-lost are all a
// clean no-op.
func (s *Service) CancelAction(ctx context.Context, project, actionID, reason, decidedBy string) (*HeldAction, error) {
	action, err := s.store.Get(ctx, project, actionID)
	if err != nil {
		return nil, fmt.Errorf("cancel action: %w", err)
	}
	if action == nil || action.Status != StatusPending {
		return nil, nil
	}

	decidedAt := s.now()
	cancelled, err := s.store.Transition(ctx, actionID, StatusPending, TransitionUpdate{
		To:           StatusCancelled,
		DecidedBy:    decidedBy,
		CancelReason: reason,
		DecidedAt:    &decidedAt,
	})
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return nil, nil
		}
		return nil, fmt.Errorf("cancel action: %w", err)
	}

	gs, err := s.grad.GetOrCreate(ctx, project, cancelled.Type)
	if err != nil {
		return nil, fmt.Errorf("cancel action: graduation state: %w", err)
	}
	now := s.now()
	s.policy.recordCancellation(gs)
	gs.LastCancelledAt = &now
	if err := s.grad.Save(ctx, gs); err != nil {
		return nil, fmt.Errorf("cancel action: save graduation state: %w", err)
	}

	s.bus.Publish(events.New(events.TypeActionCancelled, project).
		WithAction(actionID, string(cancelled.Type)).
		WithDetail(reason))
	return cancelled, nil
}

// PendingActions lists a project's actions still inside their hold window.
func (s *Service) PendingActions(ctx context.Context, project string) ([]*HeldAction, error) {
	return s.store.ListPending(ctx, project)
}

// AllPendingActions lists pending actions across every project.
func (s *Service) AllPendingActions(ctx context.Context) ([]*HeldAction, error) {
	return s.store.ListAllPending(ctx)
}

// GraduationState returns the trust record for one (project, action type)
// pair, creating the zero record on first use.
func (s *Service) GraduationState(ctx context.Context, project string, t actions.Type) (*GraduationState, error) {
	return s.grad.GetOrCreate(ctx, project, t)
}

// ProjectGraduationStates lists every action type's trust record for a
// project.
func (s *Service) ProjectGraduationStates(ctx context.Context, project string) ([]*GraduationState, error) {
	return s.grad.ListByProject(ctx, project)
}

func (s *Service) recordGraduationApproval(ctx context.Context, project string, t actions.Type) error {
	gs, err := s.grad.GetOrCreate(ctx, project, t)
	if err != nil {
		return fmt.Errorf("graduation state: %w", err)
	}
	now := s.now()
	s.policy.recordApproval(gs)
	gs.LastApprovedAt = &now
	if err := s.grad.Save(ctx, gs); err != nil {
		return fmt.Errorf("save graduation state: %w", err)
	}
	return nil
}
