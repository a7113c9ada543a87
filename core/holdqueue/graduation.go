package holdqueue

// TierRule is one row of the graduation table: the approval streak needed to
// sit at this tier and the default hold that tier earns.
type TierRule struct {
	// Approvals is the minimum consecutive-approval streak for this tier.
	Approvals int `yaml:"approvals"`
	// HoldMinutes is the default hold duration at this tier.
	HoldMinutes int `yaml:"hold_minutes"`
}

// Policy is the graduation table, ordered by tier index. Hold minutes must be
// non-increasing in tier: trust earned shortens the wait, never lengthens it.
type Policy struct {
	Tiers []TierRule `yaml:"tiers"`
}

// DefaultPolicy mirrors the shipped tuning: a day-long hold until a track
// record exists, stepping down to fifteen minutes at twenty straight
// approvals.
func DefaultPolicy() Policy {
	return Policy{Tiers: []TierRule{
		{Approvals: 0, HoldMinutes: 24 * 60},
		{Approvals: 5, HoldMinutes: 4 * 60},
		{Approvals: 10, HoldMinutes: 60},
		{Approvals: 20, HoldMinutes: 15},
	}}
}

// TierFor returns the tier index earned by a consecutive-approval streak.
func (p Policy) TierFor(consecutiveApprovals int) int {
	tier := 0
	for i, rule := range p.Tiers {
		if consecutiveApprovals >= rule.Approvals {
			tier = i
		}
	}
	return tier
}

// HoldMinutes returns the default hold for a tier, clamped into the table.
func (p Policy) HoldMinutes(tier int) int {
	if len(p.Tiers) == 0 {
		return 24 * 60
	}
	if tier < 0 {
		tier = 0
	}
	if tier >= len(p.Tiers) {
		tier = len(p.Tiers) - 1
	}
	return p.Tiers[tier].HoldMinutes
}

// MaxTier returns the highest tier index in the table.
func (p Policy) MaxTier() int {
	if len(p.Tiers) == 0 {
		return 0
	}
	return len(p.Tiers) - 1
}

// recordApproval advances the streak and recomputes the tier. Both explicit
// approvals and unchallenged automatic executions count: a hold that expired
// with no cancellation is evidence of trustworthy autonomy.
func (p Policy) recordApproval(gs *GraduationState) {
	gs.ConsecutiveApprovals++
	gs.Tier = p.TierFor(gs.ConsecutiveApprovals)
}

// recordCancellation resets the streak and the tier. A single rejected
// autonomous action is stronger negative evidence than many approvals are
// positive evidence; the reset is deliberately total.
func (p Policy) recordCancellation(gs *GraduationState) {
	gs.ConsecutiveApprovals = 0
	gs.Tier = p.TierFor(0)
}
