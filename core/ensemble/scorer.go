package ensemble

import (
	"regexp"
	"strings"

	"github.com/adalundhe/steward/core/personas"
)

// Scorer turns one persona's raw completion text into a scored contribution.
// The default is regex heuristics over language cues; implementations backed
// by structured model output can replace it without touching orchestration.
type Scorer interface {
	Score(id personas.ID, content string) Contribution
}

const (
	confidenceCertain = 0.9
	confidenceNeutral = 0.6
	confidenceHedged  = 0.3
)

// Dissent cues are only consulted for the sceptic; other personas are not
// designated dissenters and their disagreement surfaces through confidence
// divergence instead.
var dissentCues = compileCues(
	`(?i)\bhowever\b`,
	`(?i)\brisk of\b`,
	`(?i)\bcounter to\b`,
	`(?i)\bi disagree\b`,
	`(?i)\bagainst (this|the) (plan|proposal|approach)\b`,
	`(?i)\bpush(ing)? back\b`,
)

var certaintyCues = compileCues(
	`(?i)\bcertainly\b`,
	`(?i)\bclearly\b`,
	`(?i)\bdefinitely\b`,
	`(?i)\bwithout (a )?doubt\b`,
	`(?i)\bconfident\b`,
	`(?i)\bthe data shows?\b`,
)

var hedgingCues = compileCues(
	`(?i)\bmight\b`,
	`(?i)\bmay\b`,
	`(?i)\bpossibly\b`,
	`(?i)\bperhaps\b`,
	`(?i)\bunclear\b`,
	`(?i)\buncertain\b`,
	`(?i)\bnot sure\b`,
	`(?i)\bhard to say\b`,
)

func compileCues(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// RegexScorer is the default heuristic scorer. It is a stand-in, not a final
// design; keep replacements behind the Scorer interface.
type RegexScorer struct{}

var _ Scorer = RegexScorer{}

// Score estimates confidence from certainty and hedging cues and, for the
// sceptic only, flags dissent with the first cue-bearing sentence as reason.
func (RegexScorer) Score(id personas.ID, content string) Contribution {
	c := Contribution{
		Persona:    id,
		Content:    content,
		Confidence: confidenceNeutral,
	}
	if matchesAny(certaintyCues, content) {
		c.Confidence = confidenceCertain
	} else if matchesAny(hedgingCues, content) {
		c.Confidence = confidenceHedged
	}

	if id != personas.Sceptic {
		return c
	}
	for _, sentence := range splitSentences(content) {
		if matchesAny(dissentCues, sentence) {
			c.Dissent = true
			c.DissentReason = sentence
			break
		}
	}
	return c
}

func matchesAny(cues []*regexp.Regexp, text string) bool {
	for _, re := range cues {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var sentenceSplit = regexp.MustCompile(`(?s)[^.!?\n]+[.!?]?`)

func splitSentences(text string) []string {
	raw := sentenceSplit.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
