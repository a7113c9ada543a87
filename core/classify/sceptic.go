package classify

import (
	"time"

	"github.com/adalundhe/steward/core/personas"
)

// Trigger names the reason the sceptic was pulled into a turn outside its
// default modes.
type Trigger string

const (
	TriggerVelocityGap  Trigger = "confidence_despite_velocity_gap"
	TriggerStaleBlocker Trigger = "stale_blocker"
	TriggerScopeCreep   Trigger = "scope_creep"
	TriggerUserInvoked  Trigger = "user_invoked"
)

// Signals are caller-supplied project health measurements the sceptic
// activation thresholds compare against.
type Signals struct {
	// VelocityGapPercent is how far actual velocity trails the plan.
	VelocityGapPercent float64
	// OldestBlockerAgeDays is the age of the stalest open blocker.
	OldestBlockerAgeDays int
	// ScopeAddedWithoutTradeoff counts scope additions with no matching cut.
	ScopeAddedWithoutTradeoff int
}

// ScepticConfig carries the externally configurable activation thresholds.
type ScepticConfig struct {
	// Cooldown is the minimum gap between challenges in one session.
	Cooldown time.Duration
	// VelocityGapPercent triggers activation at or above this gap.
	VelocityGapPercent float64
	// BlockerAgeDays triggers activation at or above this blocker age.
	BlockerAgeDays int
	// ScopeCreepCount triggers activation at or above this many unpaid scope additions.
	ScopeCreepCount int
}

// DefaultScepticConfig matches the shipped policy tuning.
func DefaultScepticConfig() ScepticConfig {
	return ScepticConfig{
		Cooldown:           30 * time.Minute,
		VelocityGapPercent: 20,
		BlockerAgeDays:     5,
		ScopeCreepCount:    3,
	}
}

var userInvokedPatterns = compile(
	`(?i)devil'?s advocate`,
	`(?i)challenge (this|me|that|the plan)`,
	`(?i)push back`,
	`(?i)steel.?man`,
	`(?i)what would a critic say`,
)

// ShouldActivateSceptic decides whether the sceptic joins a turn whose mode
// does not include it by default. lastChallenge is the zero time when no
// challenge has been raised this session.
func ShouldActivateSceptic(mode personas.Mode, message string, sig Signals, lastChallenge, now time.Time, cfg ScepticConfig) (Trigger, bool) {
	// Decision and pre-mortem rosters already seat the sceptic.
	if mode == personas.ModeDecision || mode == personas.ModePreMortem {
		return "", false
	}
	if !lastChallenge.IsZero() && now.Sub(lastChallenge) < cfg.Cooldown {
		return "", false
	}

	for _, re := range userInvokedPatterns {
		if re.MatchString(message) {
			return TriggerUserInvoked, true
		}
	}
	if cfg.VelocityGapPercent > 0 && sig.VelocityGapPercent >= cfg.VelocityGapPercent {
		return TriggerVelocityGap, true
	}
	if cfg.BlockerAgeDays > 0 && sig.OldestBlockerAgeDays >= cfg.BlockerAgeDays {
		return TriggerStaleBlocker, true
	}
	if cfg.ScopeCreepCount > 0 && sig.ScopeAddedWithoutTradeoff >= cfg.ScopeCreepCount {
		return TriggerScopeCreep, true
	}
	return "", false
}
