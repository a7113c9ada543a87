package ensemble

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/steward/core/classify"
	"github.com/adalundhe/steward/core/memory"
	"github.com/adalundhe/steward/core/personas"
	"github.com/adalundhe/steward/core/providers"
	"github.com/adalundhe/steward/core/session"
)

// fakeCompleter routes completions by the persona prompt fragment embedded in
// the system prompt and counts every call.
type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	tiers   map[string]providers.Tier
	replies map[string]string
	failFor string
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		tiers: make(map[string]providers.Tier),
		replies: map[string]string{
			"Operator":    "Done. Next step is to confirm the date with the team.",
			"Analyst":     "Velocity is 12 points per sprint against a 15 point plan.",
			"Sceptic":     "However, the risk of shipping untested migrations is real. What rollback plan exists? Instead, stage the cutover behind a flag.",
			"Advocate":    "The team may need notice before the change lands.",
			"Historian":   "A similar cutover last quarter slipped by two weeks.",
			"Synthesiser": "Recommendation: proceed, staged behind a flag as the Sceptic proposed.",
		},
	}
}

func (f *fakeCompleter) Complete(_ context.Context, req *providers.Request) (*providers.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for marker, reply := range f.replies {
		if strings.Contains(req.SystemPrompt, "You are the "+marker) {
			if marker == f.failFor {
				return nil, errors.New("model unavailable")
			}
			f.tiers[marker] = req.Tier
			return &providers.Response{Content: reply, Model: "fake"}, nil
		}
	}
	return &providers.Response{Content: "unknown persona", Model: "fake"}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMemory struct {
	mu      sync.Mutex
	summary string
	records []memory.Record
	events  []string
}

func (m *fakeMemory) RetrieveRelevant(_ context.Context, _ string, _ int) ([]memory.Record, error) {
	return m.records, nil
}

func (m *fakeMemory) LastSessionSummary() string { return m.summary }

func (m *fakeMemory) RecordEvent(_ context.Context, content string, _ map[string]string) error {
	m.mu.Lock()
	m.events = append(m.events, content)
	m.mu.Unlock()
	return nil
}

func newOrchestrator(t *testing.T, completer providers.Completer, opts ...Option) (*Orchestrator, *session.State, *fakeMemory) {
	t.Helper()
	sess := session.New("atlas")
	mem := &fakeMemory{}
	o := New(personas.NewRegistry(), completer, mem, sess, opts...)
	return o, sess, mem
}

func TestOperatorOnlyFastPath(t *testing.T) {
	fc := newFakeCompleter()
	o, sess, mem := newOrchestrator(t, fc)

	resp, err := o.ProcessMessage(context.Background(), "any updates today?", false)
	require.NoError(t, err)

	assert.Equal(t, personas.ModeQuickQuery, resp.Mode)
	assert.Nil(t, resp.Deliberation)
	assert.Nil(t, resp.Challenge)
	assert.False(t, resp.ShowAttribution)
	assert.Equal(t, 1, fc.callCount())

	// Strict (user, assistant) turn pair plus one episodic memory event.
	assert.Equal(t, 2, sess.TurnCount())
	assert.Len(t, mem.events, 1)
}

func TestDecisionModeDissentingSceptic(t *testing.T) {
	fc := newFakeCompleter()
	o, sess, _ := newOrchestrator(t, fc)

	resp, err := o.ProcessMessage(context.Background(), "Should we cut the release over this weekend?", false)
	require.NoError(t, err)

	assert.Equal(t, personas.ModeDecision, resp.Mode)
	assert.True(t, resp.ShowAttribution)
	require.NotNil(t, resp.Challenge)
	assert.Equal(t, classify.TriggerUserInvoked, resp.Challenge.Trigger)
	assert.Equal(t, "Should we cut the release over this weekend?", resp.Challenge.Claim)
	assert.NotEmpty(t, resp.Challenge.CounterEvidence)
	assert.Equal(t, "What rollback plan exists?", resp.Challenge.ClarifyingQuestion)
	assert.Contains(t, resp.Challenge.AlternativeFraming, "Instead")

	require.NotNil(t, resp.Deliberation)
	assert.False(t, resp.Deliberation.ConsensusReached())
	assert.Equal(t, fc.replies["Synthesiser"], resp.Message)

	// Four surface personas plus one synthesis call.
	assert.Equal(t, 5, fc.callCount())
	assert.Equal(t, providers.TierElevated, fc.tiers["Sceptic"])
	assert.Equal(t, providers.TierElevated, fc.tiers["Synthesiser"])
	assert.Equal(t, providers.TierStandard, fc.tiers["Operator"])

	// A raised challenge starts the cooldown window.
	assert.False(t, sess.LastChallengeAt().IsZero())
}

func TestForcedScepticAddsSynthesiser(t *testing.T) {
	fc := newFakeCompleter()
	o, _, _ := newOrchestrator(t, fc, WithSignalSource(func() classify.Signals {
		return classify.Signals{VelocityGapPercent: 35}
	}))

	resp, err := o.ProcessMessage(context.Background(), "Can you explain why the team is behind on the roadmap", false)
	require.NoError(t, err)

	assert.Equal(t, personas.ModeAnalysis, resp.Mode)
	require.NotNil(t, resp.Challenge)
	assert.Equal(t, classify.TriggerVelocityGap, resp.Challenge.Trigger)
	// Synthesis output, not concatenation: a forced sceptic is always
	// reconciled.
	assert.Equal(t, fc.replies["Synthesiser"], resp.Message)
	require.NotNil(t, resp.Deliberation)
	assert.NotEmpty(t, resp.Deliberation.Synthesis)
}

func TestAnalysisModeMergesWithoutSynthesis(t *testing.T) {
	fc := newFakeCompleter()
	// Align confidences so the merge path has no divergence conflicts.
	fc.replies["Operator"] = "Status is on track."
	fc.replies["Analyst"] = "Throughput holds at 12 points."
	fc.replies["Historian"] = "No comparable prior episode recorded."
	o, _, _ := newOrchestrator(t, fc)

	resp, err := o.ProcessMessage(context.Background(), "Give me a summary of where the migration stands", false)
	require.NoError(t, err)

	assert.Equal(t, personas.ModeAnalysis, resp.Mode)
	require.NotNil(t, resp.Deliberation)
	assert.True(t, resp.Deliberation.ConsensusReached())
	assert.Empty(t, resp.Deliberation.Synthesis)
	assert.False(t, resp.ShowAttribution)
	// Concatenated in activation order with persona headers.
	assert.Contains(t, resp.Message, "[Operator]")
	assert.Contains(t, resp.Message, "[Analyst]")
	assert.Contains(t, resp.Message, "[Historian]")
	assert.Less(t, strings.Index(resp.Message, "[Operator]"), strings.Index(resp.Message, "[Analyst]"))
	// Three surface calls, no synthesiser.
	assert.Equal(t, 3, fc.callCount())
}

func TestPersonaFailurePropagates(t *testing.T) {
	fc := newFakeCompleter()
	fc.failFor = "Analyst"
	o, _, _ := newOrchestrator(t, fc)

	_, err := o.ProcessMessage(context.Background(), "Should we move the deadline out a sprint?", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyst")
}

func TestBackgroundCycleClassifiesAnalysis(t *testing.T) {
	fc := newFakeCompleter()
	o, _, _ := newOrchestrator(t, fc)

	resp, err := o.ProcessMessage(context.Background(), "scheduled health check", true)
	require.NoError(t, err)
	assert.Equal(t, personas.ModeAnalysis, resp.Mode)
}

func TestConfidenceDivergenceConflict(t *testing.T) {
	o, _, _ := newOrchestrator(t, newFakeCompleter())

	conflicts := o.detectConflicts([]Contribution{
		{Persona: personas.Operator, Confidence: 0.9},
		{Persona: personas.Advocate, Confidence: 0.4},
	})
	require.Len(t, conflicts, 1)
	assert.Equal(t, "confidence divergence", conflicts[0].Topic)
	// Higher-confidence side listed first.
	assert.Equal(t, personas.Operator, conflicts[0].First)
	assert.Equal(t, personas.Advocate, conflicts[0].Second)
}

func TestDissentConflictIsDirectional(t *testing.T) {
	o, _, _ := newOrchestrator(t, newFakeCompleter())

	conflicts := o.detectConflicts([]Contribution{
		{Persona: personas.Operator, Confidence: 0.6},
		{Persona: personas.Sceptic, Confidence: 0.6, Dissent: true, DissentReason: "However, the rollout is untested."},
	})
	require.Len(t, conflicts, 1)
	assert.Equal(t, personas.Sceptic, conflicts[0].First)
	assert.Equal(t, personas.Operator, conflicts[0].Second)
	assert.Equal(t, "However, the rollout is untested.", conflicts[0].Topic)
}

func TestGapAtThresholdIsNotConflict(t *testing.T) {
	o, _, _ := newOrchestrator(t, newFakeCompleter())

	conflicts := o.detectConflicts([]Contribution{
		{Persona: personas.Operator, Confidence: 0.6},
		{Persona: personas.Analyst, Confidence: 0.2},
	})
	assert.Empty(t, conflicts)
}

func TestScepticCooldownSuppressesActivation(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	fc := newFakeCompleter()
	o, sess, _ := newOrchestrator(t, fc,
		WithClock(func() time.Time { return base }),
		WithSignalSource(func() classify.Signals {
			return classify.Signals{VelocityGapPercent: 35}
		}))
	sess.SetClock(func() time.Time { return base })

	resp, err := o.ProcessMessage(context.Background(), "Can you explain why the team is behind on the roadmap", false)
	require.NoError(t, err)
	require.NotNil(t, resp.Challenge)
	firstCalls := fc.callCount()

	// Ten minutes later, inside the default thirty-minute cooldown, the same
	// trigger stays silent and the turn runs the plain analysis roster.
	o.now = func() time.Time { return base.Add(10 * time.Minute) }
	resp, err = o.ProcessMessage(context.Background(), "Can you explain why the team is behind on the roadmap", false)
	require.NoError(t, err)
	assert.Nil(t, resp.Challenge)
	// Three surface personas, no sceptic, no synthesis.
	assert.Equal(t, firstCalls+3, fc.callCount())
}
