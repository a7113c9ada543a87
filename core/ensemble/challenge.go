package ensemble

import (
	"strings"

	"github.com/adalundhe/steward/core/classify"
)

const maxCounterEvidence = 3

// buildChallenge turns a dissenting sceptic contribution into a structured
// objection: counter-evidence from cue-bearing sentences, the first question
// as the clarifying ask, and any reframing sentence as the alternative.
func buildChallenge(trigger classify.Trigger, claim string, sc Contribution) *Challenge {
	ch := &Challenge{
		Trigger: trigger,
		Claim:   claim,
	}

	strength := strengthFor(sc.Confidence)
	sentences := splitSentences(sc.Content)
	for _, s := range sentences {
		if len(ch.CounterEvidence) >= maxCounterEvidence {
			break
		}
		if strings.HasSuffix(s, "?") {
			continue
		}
		if matchesAny(dissentCues, s) || matchesAny(evidenceCues, s) {
			ch.CounterEvidence = append(ch.CounterEvidence, CounterEvidence{
				Point:    s,
				Source:   "sceptic analysis",
				Strength: strength,
			})
		}
	}
	if len(ch.CounterEvidence) == 0 && sc.DissentReason != "" {
		ch.CounterEvidence = append(ch.CounterEvidence, CounterEvidence{
			Point:    sc.DissentReason,
			Source:   "sceptic analysis",
			Strength: strength,
		})
	}

	for _, s := range sentences {
		if strings.HasSuffix(s, "?") {
			ch.ClarifyingQuestion = s
			break
		}
	}
	for _, s := range sentences {
		lower := strings.ToLower(s)
		if strings.HasPrefix(lower, "instead") || strings.HasPrefix(lower, "alternatively") ||
			strings.Contains(lower, "an alternative") {
			ch.AlternativeFraming = s
			break
		}
	}
	return ch
}

var evidenceCues = compileCues(
	`(?i)\bbecause\b`,
	`(?i)\bdata\b`,
	`(?i)\bvelocity\b`,
	`(?i)\bblocker\b`,
	`(?i)\bscope\b`,
	`(?i)\bhistor(y|ically)\b`,
	`(?i)\blast (sprint|quarter|time)\b`,
)

func strengthFor(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return StrengthStrong
	case confidence >= 0.45:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
