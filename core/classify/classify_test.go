package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adalundhe/steward/core/personas"
)

func TestClassifyBackgroundAlwaysAnalysis(t *testing.T) {
	res := Classify("should we cut scope and ship it now?", Context{Background: true})

	assert.Equal(t, personas.ModeAnalysis, res.Mode)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestClassifyDraftApprovalFastPath(t *testing.T) {
	cases := []string{
		"yes", "Yes!", "yes please", "Yes, send it", "ok", "go ahead",
		"approve", "ship it", "lgtm", "sounds good to me",
	}

	for _, msg := range cases {
		res := Classify(msg, Context{HasPendingDraft: true})
		assert.Equal(t, personas.ModeAction, res.Mode, "message %q", msg)
		assert.Equal(t, 0.9, res.Confidence, "message %q", msg)
	}
}

// A message that merely starts with the letters "yes" is not an approval,
// even with a draft pending.
func TestClassifyYesPrefixWordIsNotApproval(t *testing.T) {
	res := Classify("yesterday's standup felt off", Context{HasPendingDraft: true})

	assert.Equal(t, personas.ModeQuickQuery, res.Mode)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestClassifyApprovalPhraseWithoutDraftIsNotAction(t *testing.T) {
	res := Classify("yes", Context{HasPendingDraft: false})

	assert.Equal(t, personas.ModeQuickQuery, res.Mode)
}

func TestClassifyPatternGroups(t *testing.T) {
	cases := []struct {
		message string
		want    personas.Mode
	}{
		{"What could go wrong with this plan?", personas.ModePreMortem},
		{"play devil's advocate on the migration", personas.ModePreMortem},
		{"what went wrong last sprint?", personas.ModeRetrospective},
		{"let's run a retro on the release", personas.ModeRetrospective},
		{"should we cut the reporting feature?", personas.ModeDecision},
		{"which option is less risky here", personas.ModeDecision},
		{"draft an email to the stakeholders about the delay", personas.ModeAction},
		{"move PROJ-142 to done", personas.ModeAction},
		{"what's the status of the beta milestone", personas.ModeAnalysis},
		{"summarize this week's progress for leadership please", personas.ModeAnalysis},
	}

	for _, tc := range cases {
		res := Classify(tc.message, Context{})
		assert.Equal(t, tc.want, res.Mode, "message %q", tc.message)
		assert.Equal(t, 0.75, res.Confidence, "message %q", tc.message)
	}
}

// Adversarial phrasing must win over the broader decision/analysis groups.
func TestClassifyPreMortemBeatsDecision(t *testing.T) {
	res := Classify("should we do this - what could go wrong?", Context{})

	assert.Equal(t, personas.ModePreMortem, res.Mode)
}

func TestClassifyRetrospectiveBeatsAnalysis(t *testing.T) {
	res := Classify("what went wrong with the rollout and why is it late", Context{})

	assert.Equal(t, personas.ModeRetrospective, res.Mode)
}

func TestClassifyLengthFallback(t *testing.T) {
	short := Classify("any blockers today team", Context{})
	assert.Equal(t, personas.ModeQuickQuery, short.Mode)
	assert.Equal(t, 0.5, short.Confidence)

	long := Classify("the vendor pushed their delivery again and the team spent most of the week "+
		"untangling the staging environment instead of feature work", Context{})
	assert.Equal(t, personas.ModeAnalysis, long.Mode)
	assert.Equal(t, 0.4, long.Confidence)
}

func TestClassifyEightWordBoundary(t *testing.T) {
	eight := Classify("one two three four five six seven eight", Context{})
	assert.Equal(t, personas.ModeQuickQuery, eight.Mode)

	nine := Classify("one two three four five six seven eight nine", Context{})
	assert.Equal(t, personas.ModeAnalysis, nine.Mode)
}

func TestShouldActivateScepticModeExclusion(t *testing.T) {
	cfg := DefaultScepticConfig()
	sig := Signals{VelocityGapPercent: 50}
	now := time.Now()

	for _, mode := range []personas.Mode{personas.ModeDecision, personas.ModePreMortem} {
		_, ok := ShouldActivateSceptic(mode, "anything", sig, time.Time{}, now, cfg)
		assert.False(t, ok, "mode %s already seats the sceptic", mode)
	}
}

func TestShouldActivateScepticCooldown(t *testing.T) {
	cfg := DefaultScepticConfig()
	sig := Signals{VelocityGapPercent: 50}
	now := time.Now()

	_, ok := ShouldActivateSceptic(personas.ModeAnalysis, "status?", sig, now.Add(-5*time.Minute), now, cfg)
	assert.False(t, ok, "inside cooldown")

	trigger, ok := ShouldActivateSceptic(personas.ModeAnalysis, "status?", sig, now.Add(-2*time.Hour), now, cfg)
	assert.True(t, ok, "outside cooldown")
	assert.Equal(t, TriggerVelocityGap, trigger)
}

func TestShouldActivateScepticTriggers(t *testing.T) {
	cfg := DefaultScepticConfig()
	now := time.Now()

	cases := []struct {
		name    string
		message string
		sig     Signals
		want    Trigger
		ok      bool
	}{
		{"user invoked", "can you push back on this plan", Signals{}, TriggerUserInvoked, true},
		{"velocity gap", "status update", Signals{VelocityGapPercent: 25}, TriggerVelocityGap, true},
		{"stale blocker", "status update", Signals{OldestBlockerAgeDays: 7}, TriggerStaleBlocker, true},
		{"scope creep", "status update", Signals{ScopeAddedWithoutTradeoff: 4}, TriggerScopeCreep, true},
		{"healthy project", "status update", Signals{VelocityGapPercent: 5, OldestBlockerAgeDays: 1}, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trigger, ok := ShouldActivateSceptic(personas.ModeAnalysis, tc.message, tc.sig, time.Time{}, now, cfg)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, trigger)
		})
	}
}

// User invocation takes precedence over signal thresholds so the audit trail
// records the invocation, not a coincident signal.
func TestShouldActivateScepticUserInvokedPrecedence(t *testing.T) {
	cfg := DefaultScepticConfig()
	sig := Signals{VelocityGapPercent: 90}

	trigger, ok := ShouldActivateSceptic(personas.ModeAnalysis, "challenge this", sig, time.Time{}, time.Now(), cfg)
	assert.True(t, ok)
	assert.Equal(t, TriggerUserInvoked, trigger)
}
