package holdqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/events"
)

// ---------------------------------------------------------------------------
// in-memory fakes
// ---------------------------------------------------------------------------

type memActionStore struct {
	mu   sync.Mutex
	byID map[string]*HeldAction
	// afterGet runs after Get returns its copy, letting tests interleave a
	// competing writer between the service's read and its conditional write.
	afterGet func(store *memActionStore, id string)
	// afterListReady does the same for the batch path's ready fetch.
	afterListReady func(store *memActionStore)
}

func newMemActionStore() *memActionStore {
	return &memActionStore{byID: make(map[string]*HeldAction)}
}

func (m *memActionStore) Create(_ context.Context, a *HeldAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memActionStore) Get(_ context.Context, project, id string) (*HeldAction, error) {
	m.mu.Lock()
	a, ok := m.byID[id]
	var cp *HeldAction
	if ok && a.Project == project {
		c := *a
		cp = &c
	}
	m.mu.Unlock()

	if m.afterGet != nil {
		m.afterGet(m, id)
	}
	return cp, nil
}

func (m *memActionStore) ListPending(_ context.Context, project string) ([]*HeldAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HeldAction
	for _, a := range m.byID {
		if a.Project == project && a.Status == StatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memActionStore) ListAllPending(_ context.Context) ([]*HeldAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HeldAction
	for _, a := range m.byID {
		if a.Status == StatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memActionStore) ListReady(_ context.Context, now time.Time) ([]*HeldAction, error) {
	m.mu.Lock()
	var out []*HeldAction
	for _, a := range m.byID {
		if a.Status == StatusPending && !a.HoldExpiresAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	m.mu.Unlock()

	if m.afterListReady != nil {
		m.afterListReady(m)
	}
	return out, nil
}

func (m *memActionStore) Transition(_ context.Context, id string, from Status, up TransitionUpdate) (*HeldAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.Status != from {
		return nil, ErrNoMatch
	}
	a.Status = up.To
	if up.DecidedBy != "" {
		a.DecidedBy = up.DecidedBy
	}
	if up.CancelReason != "" {
		a.CancelReason = up.CancelReason
	}
	if up.DecidedAt != nil {
		a.DecidedAt = up.DecidedAt
	}
	if up.ExecutedAt != nil {
		a.ExecutedAt = up.ExecutedAt
	}
	cp := *a
	return &cp, nil
}

func (m *memActionStore) status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

type memGradStore struct {
	mu    sync.Mutex
	byKey map[string]*GraduationState
	saves int
}

func newMemGradStore() *memGradStore {
	return &memGradStore{byKey: make(map[string]*GraduationState)}
}

func gradKey(project string, t actions.Type) string {
	return project + "/" + string(t)
}

func (m *memGradStore) GetOrCreate(_ context.Context, project string, t actions.Type) (*GraduationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gs, ok := m.byKey[gradKey(project, t)]; ok {
		cp := *gs
		return &cp, nil
	}
	gs := &GraduationState{Project: project, ActionType: t}
	m.byKey[gradKey(project, t)] = gs
	cp := *gs
	return &cp, nil
}

func (m *memGradStore) Save(_ context.Context, gs *GraduationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gs
	m.byKey[gradKey(gs.Project, gs.ActionType)] = &cp
	m.saves++
	return nil
}

func (m *memGradStore) ListByProject(_ context.Context, project string) ([]*GraduationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*GraduationState
	for _, gs := range m.byKey {
		if gs.Project == project {
			cp := *gs
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memGradStore) streak(project string, t actions.Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gs, ok := m.byKey[gradKey(project, t)]; ok {
		return gs.ConsecutiveApprovals
	}
	return 0
}

type fakeExecutor struct {
	mu          sync.Mutex
	emails      []actions.EmailPayload
	transitions []actions.JiraTransitionPayload
	failSubject string
}

func (f *fakeExecutor) ExecuteEmail(_ context.Context, p actions.EmailPayload) (string, error) {
	if f.failSubject != "" && p.Subject == f.failSubject {
		return "", fmt.Errorf("smtp rejected %q", p.Subject)
	}
	f.mu.Lock()
	f.emails = append(f.emails, p)
	f.mu.Unlock()
	return "msg-1", nil
}

func (f *fakeExecutor) ExecuteJiraStatusChange(_ context.Context, p actions.JiraTransitionPayload) error {
	f.mu.Lock()
	f.transitions = append(f.transitions, p)
	f.mu.Unlock()
	return nil
}

// approvingExecutor approves the action it is currently delivering, standing
// in for a human whose approval lands while the batch dispatch is in flight.
type approvingExecutor struct {
	svc      *Service
	actionID string

	mu         sync.Mutex
	sends      int
	approved   *HeldAction
	approveErr error
}

func (a *approvingExecutor) ExecuteEmail(ctx context.Context, _ actions.EmailPayload) (string, error) {
	a.mu.Lock()
	a.sends++
	first := a.sends == 1
	a.mu.Unlock()

	if first {
		approved, err := a.svc.ApproveAction(ctx, "proj-a", a.actionID, a, "alex")
		a.mu.Lock()
		a.approved, a.approveErr = approved, err
		a.mu.Unlock()
	}
	return "msg-1", nil
}

func (a *approvingExecutor) ExecuteJiraStatusChange(context.Context, actions.JiraTransitionPayload) error {
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, policy Policy) (*Service, *memActionStore, *memGradStore, *fakeClock) {
	t.Helper()
	store := newMemActionStore()
	grad := newMemGradStore()
	clk := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(store, grad, policy, slog.Default(), WithClock(clk.Now))
	return svc, store, grad, clk
}

func email(subject string) actions.EmailPayload {
	return actions.EmailPayload{To: []string{"pm@example.com"}, Subject: subject, Body: "body"}
}

// ---------------------------------------------------------------------------
// QueueAction
// ---------------------------------------------------------------------------

func TestQueueActionHoldFromGraduationTier(t *testing.T) {
	svc, _, grad, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()

	// Pre-earned trust: tier 2 means a one-hour hold.
	require.NoError(t, grad.Save(ctx, &GraduationState{
		Project: "proj-a", ActionType: actions.TypeEmailStakeholder,
		ConsecutiveApprovals: 10, Tier: 2,
	}))

	res, err := svc.QueueAction(ctx, "proj-a", email("hi"), 999)

	require.NoError(t, err)
	assert.Equal(t, 60, res.HoldMinutes, "caller suggestion must be overridden by policy")
	assert.Equal(t, 2, res.Tier)
	assert.Equal(t, StatusPending, res.Action.Status)
	assert.Equal(t, clk.Now().Add(time.Hour), res.Action.HoldExpiresAt)
}

func TestQueueActionClampsHoldToOneMinute(t *testing.T) {
	policy := Policy{Tiers: []TierRule{{Approvals: 0, HoldMinutes: 0}}}
	svc, _, _, clk := newTestService(t, policy)

	res, err := svc.QueueAction(context.Background(), "proj-a", email("hi"), 0)

	require.NoError(t, err)
	assert.Equal(t, 1, res.HoldMinutes, "graduated tiers still pass through an observable queued state")
	assert.Equal(t, clk.Now().Add(time.Minute), res.Action.HoldExpiresAt)
}

func TestQueueActionCreatesGraduationStateLazily(t *testing.T) {
	svc, _, grad, _ := newTestService(t, DefaultPolicy())

	_, err := svc.QueueAction(context.Background(), "proj-new", email("hi"), 0)

	require.NoError(t, err)
	states, err := grad.ListByProject(context.Background(), "proj-new")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, 0, states[0].ConsecutiveApprovals)
}

// ---------------------------------------------------------------------------
// ApproveAction
// ---------------------------------------------------------------------------

func TestApproveActionExecutesAndRecordsApproval(t *testing.T) {
	svc, store, grad, _ := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{}

	res, err := svc.QueueAction(ctx, "proj-a", email("update"), 0)
	require.NoError(t, err)

	approved, err := svc.ApproveAction(ctx, "proj-a", res.Action.ID, ex, "alex")

	require.NoError(t, err)
	require.NotNil(t, approved)
	assert.Equal(t, StatusExecuted, approved.Status)
	assert.Equal(t, "alex", approved.DecidedBy)
	assert.NotNil(t, approved.ExecutedAt)
	assert.Len(t, ex.emails, 1)
	assert.Equal(t, StatusExecuted, store.status(res.Action.ID))
	assert.Equal(t, 1, grad.streak("proj-a", actions.TypeEmailStakeholder))
}

func TestApproveActionMissingIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(t, DefaultPolicy())

	got, err := svc.ApproveAction(context.Background(), "proj-a", "nope", &fakeExecutor{}, "alex")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApproveActionAlreadyDecidedIsNoOp(t *testing.T) {
	svc, _, grad, _ := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{}

	res, err := svc.QueueAction(ctx, "proj-a", email("update"), 0)
	require.NoError(t, err)
	_, err = svc.CancelAction(ctx, "proj-a", res.Action.ID, "changed my mind", "alex")
	require.NoError(t, err)

	got, err := svc.ApproveAction(ctx, "proj-a", res.Action.ID, ex, "alex")

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, ex.emails, "no double execution after a decision")
	assert.Equal(t, 0, grad.streak("proj-a", actions.TypeEmailStakeholder))
}

func TestApproveActionRaceLostIsNoOp(t *testing.T) {
	svc, store, grad, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{}

	res, err := svc.QueueAction(ctx, "proj-a", email("update"), 0)
	require.NoError(t, err)

	// A competing canceller wins between our read and our conditional write.
	store.afterGet = func(m *memActionStore, id string) {
		store.afterGet = nil
		now := clk.Now()
		_, _ = m.Transition(ctx, id, StatusPending, TransitionUpdate{
			To: StatusCancelled, DecidedAt: &now,
		})
	}

	got, err := svc.ApproveAction(ctx, "proj-a", res.Action.ID, ex, "alex")

	require.NoError(t, err)
	assert.Nil(t, got, "losing the conditional write is a clean no-op")
	assert.Empty(t, ex.emails)
	assert.Equal(t, StatusCancelled, store.status(res.Action.ID))
	assert.Equal(t, 0, grad.streak("proj-a", actions.TypeEmailStakeholder), "race loser must not touch graduation state")
}

func TestApproveActionExecutionFailureKeepsApproval(t *testing.T) {
	svc, store, grad, _ := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{failSubject: "boom"}

	res, err := svc.QueueAction(ctx, "proj-a", email("boom"), 0)
	require.NoError(t, err)

	got, err := svc.ApproveAction(ctx, "proj-a", res.Action.ID, ex, "alex")

	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, StatusApproved, store.status(res.Action.ID), "a committed approval is never reverted")
	assert.Equal(t, 0, grad.streak("proj-a", actions.TypeEmailStakeholder))
}

// ---------------------------------------------------------------------------
// CancelAction
// ---------------------------------------------------------------------------

func TestCancelActionResetsGraduationStreak(t *testing.T) {
	svc, store, grad, _ := newTestService(t, DefaultPolicy())
	ctx := context.Background()

	require.NoError(t, grad.Save(ctx, &GraduationState{
		Project: "proj-a", ActionType: actions.TypeEmailStakeholder,
		ConsecutiveApprovals: 17, Tier: 2,
	}))

	res, err := svc.QueueAction(ctx, "proj-a", email("risky"), 0)
	require.NoError(t, err)

	cancelled, err := svc.CancelAction(ctx, "proj-a", res.Action.ID, "tone is off", "alex")

	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "tone is off", cancelled.CancelReason)
	assert.Equal(t, StatusCancelled, store.status(res.Action.ID))

	gs, err := svc.GraduationState(ctx, "proj-a", actions.TypeEmailStakeholder)
	require.NoError(t, err)
	assert.Equal(t, 0, gs.ConsecutiveApprovals, "any cancellation resets the streak regardless of prior value")
	assert.Equal(t, 0, gs.Tier)
	assert.NotNil(t, gs.LastCancelledAt)
}

func TestCancelActionRaceLostIsNoOp(t *testing.T) {
	svc, store, grad, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()

	require.NoError(t, grad.Save(ctx, &GraduationState{
		Project: "proj-a", ActionType: actions.TypeEmailStakeholder,
		ConsecutiveApprovals: 4,
	}))

	res, err := svc.QueueAction(ctx, "proj-a", email("update"), 0)
	require.NoError(t, err)

	store.afterGet = func(m *memActionStore, id string) {
		store.afterGet = nil
		now := clk.Now()
		_, _ = m.Transition(ctx, id, StatusPending, TransitionUpdate{
			To: StatusApproved, DecidedAt: &now,
		})
	}

	got, err := svc.CancelAction(ctx, "proj-a", res.Action.ID, "too late", "alex")

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 4, grad.streak("proj-a", actions.TypeEmailStakeholder), "race loser must not reset the streak")
}

// ---------------------------------------------------------------------------
// ProcessQueue
// ---------------------------------------------------------------------------

func TestProcessQueueOneFailureNeverBlocksBatch(t *testing.T) {
	svc, store, grad, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{failSubject: "boom"}

	ids := make(map[string]string, 3)
	for _, subject := range []string{"a", "boom", "c"} {
		res, err := svc.QueueAction(ctx, "proj-a", email(subject), 0)
		require.NoError(t, err)
		ids[subject] = res.Action.ID
	}
	clk.Advance(25 * time.Hour)

	result, err := svc.ProcessQueue(ctx, ex)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Executed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ids["boom"], result.Errors[0].ActionID)

	assert.Equal(t, StatusExecuted, store.status(ids["a"]))
	assert.Equal(t, StatusExecuted, store.status(ids["c"]))
	assert.Equal(t, StatusPending, store.status(ids["boom"]), "failed action stays pending for the next cycle")
	assert.Equal(t, 2, grad.streak("proj-a", actions.TypeEmailStakeholder), "each auto-execution records one approval")
}

func TestProcessQueueSkipsUnexpiredHolds(t *testing.T) {
	svc, _, _, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{}

	_, err := svc.QueueAction(ctx, "proj-a", email("early"), 0)
	require.NoError(t, err)
	clk.Advance(10 * time.Minute)

	result, err := svc.ProcessQueue(ctx, ex)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, ex.emails)
}

func TestProcessQueueAutoExecutionAdvancesTier(t *testing.T) {
	policy := Policy{Tiers: []TierRule{
		{Approvals: 0, HoldMinutes: 60},
		{Approvals: 2, HoldMinutes: 5},
	}}
	svc, _, _, clk := newTestService(t, policy)
	ctx := context.Background()
	ex := &fakeExecutor{}

	for i := 0; i < 2; i++ {
		_, err := svc.QueueAction(ctx, "proj-a", email(fmt.Sprintf("n%d", i)), 0)
		require.NoError(t, err)
		clk.Advance(2 * time.Hour)
		_, err = svc.ProcessQueue(ctx, ex)
		require.NoError(t, err)
	}

	res, err := svc.QueueAction(ctx, "proj-a", email("trusted"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tier)
	assert.Equal(t, 5, res.HoldMinutes, "earned trust shortens the next hold")
}

func TestProcessQueueMixedActionTypes(t *testing.T) {
	svc, _, _, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{}

	_, err := svc.QueueAction(ctx, "proj-a", email("a"), 0)
	require.NoError(t, err)
	_, err = svc.QueueAction(ctx, "proj-a", actions.JiraTransitionPayload{
		IssueKey: "PROJ-7", FromStatus: "Review", ToStatus: "Done",
	}, 0)
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)

	result, err := svc.ProcessQueue(ctx, ex)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Executed)
	assert.Len(t, ex.emails, 1)
	assert.Len(t, ex.transitions, 1)
}

func TestProcessQueueApprovalDuringDispatchIsNoOp(t *testing.T) {
	svc, store, grad, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()

	res, err := svc.QueueAction(ctx, "proj-a", email("update"), 0)
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)

	// The batch claims the action before dispatching, so an approval landing
	// mid-delivery finds it already decided and must not send a second time.
	ex := &approvingExecutor{svc: svc, actionID: res.Action.ID}

	result, err := svc.ProcessQueue(ctx, ex)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Executed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, ex.sends, "the action must be delivered exactly once")
	assert.Nil(t, ex.approved, "the mid-dispatch approval is a clean no-op")
	assert.NoError(t, ex.approveErr)
	assert.Equal(t, StatusExecuted, store.status(res.Action.ID))
	assert.Equal(t, 1, grad.streak("proj-a", actions.TypeEmailStakeholder), "only the batch records the approval")
}

func TestProcessQueueSkipsActionDecidedAfterReadyFetch(t *testing.T) {
	svc, store, grad, clk := newTestService(t, DefaultPolicy())
	ctx := context.Background()
	ex := &fakeExecutor{}

	res, err := svc.QueueAction(ctx, "proj-a", email("update"), 0)
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)

	// A concurrent approve commits between the ready fetch and the batch's
	// claim. The batch loses the conditional write and must not dispatch.
	store.afterListReady = func(m *memActionStore) {
		store.afterListReady = nil
		now := clk.Now()
		_, _ = m.Transition(ctx, res.Action.ID, StatusPending, TransitionUpdate{
			To: StatusApproved, DecidedAt: &now,
		})
	}

	result, err := svc.ProcessQueue(ctx, ex)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Executed)
	assert.Empty(t, result.Errors)
	assert.Empty(t, ex.emails, "losing the claim means nothing is dispatched")
	assert.Equal(t, StatusApproved, store.status(res.Action.ID))
	assert.Equal(t, 0, grad.streak("proj-a", actions.TypeEmailStakeholder))
}

// ---------------------------------------------------------------------------
// read projections and audit
// ---------------------------------------------------------------------------

func TestPendingProjections(t *testing.T) {
	svc, _, _, _ := newTestService(t, DefaultPolicy())
	ctx := context.Background()

	_, err := svc.QueueAction(ctx, "proj-a", email("a"), 0)
	require.NoError(t, err)
	_, err = svc.QueueAction(ctx, "proj-b", email("b"), 0)
	require.NoError(t, err)

	forA, err := svc.PendingActions(ctx, "proj-a")
	require.NoError(t, err)
	assert.Len(t, forA, 1)

	all, err := svc.AllPendingActions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAuditEventsEmitted(t *testing.T) {
	store := newMemActionStore()
	grad := newMemGradStore()
	clk := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	bus := events.NewBus()
	var seen []events.Type
	bus.Subscribe(func(e events.AuditEvent) { seen = append(seen, e.Type) })
	svc := NewService(store, grad, DefaultPolicy(), slog.Default(), WithClock(clk.Now), WithBus(bus))
	ctx := context.Background()

	res, err := svc.QueueAction(ctx, "proj-a", email("a"), 0)
	require.NoError(t, err)
	_, err = svc.CancelAction(ctx, "proj-a", res.Action.ID, "nope", "alex")
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, events.TypeActionQueued, seen[0])
	assert.Equal(t, events.TypeActionCancelled, seen[1])
}

var errSentinel = errors.New("sentinel")

// Transition guard behaves identically for not-found and wrong-status; both
// surface as ErrNoMatch from the store layer.
func TestMemStoreTransitionGuard(t *testing.T) {
	store := newMemActionStore()
	ctx := context.Background()

	_, err := store.Transition(ctx, "missing", StatusPending, TransitionUpdate{To: StatusApproved})
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.NotErrorIs(t, err, errSentinel)
}
