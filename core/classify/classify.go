// Package classify maps a user message and light session context onto a
// conversation mode via an ordered rule table, and decides when the sceptic
// persona should be activated outside its default modes.
package classify

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/adalundhe/steward/core/personas"
)

// Result is the outcome of one classification.
type Result struct {
	Mode       personas.Mode
	Confidence float64
	Reason     string
}

// Context carries the session facts classification depends on.
type Context struct {
	// Background marks a scheduled pipeline cycle rather than free-form input.
	Background bool
	// HasPendingDraft is true when exactly one draft awaits user confirmation.
	HasPendingDraft bool
	// TurnCount is the number of turns already in the session.
	TurnCount int
}

const (
	confidenceBackground = 1.0
	confidenceApproval   = 0.9
	confidencePattern    = 0.75
	confidenceQuickQuery = 0.5
	confidenceFallback   = 0.4

	// quickQueryMaxWords is the fallback length split between a quick query
	// and a default analysis turn.
	quickQueryMaxWords = 8
)

// Approval phrases are glob patterns matched against the whole trimmed,
// lowercased message with commas removed. Only consulted when a draft is
// pending. Continuations of "yes" are enumerated rather than prefix-matched
// so messages that merely start with the letters ("yesterday...") never read
// as approvals.
var approvalGlobs = compileGlobs([]string{
	"yes",
	"yes please",
	"yes do it",
	"yes go ahead*",
	"yes send it",
	"yes ship it",
	"yep",
	"yeah",
	"ok",
	"okay",
	"sure",
	"approve*",
	"approved",
	"confirm*",
	"go ahead*",
	"do it",
	"send it",
	"ship it",
	"lgtm",
	"sounds good*",
	"looks good*",
})

// patternGroup is one entry in the ordered intent table. First group with a
// matching pattern wins.
type patternGroup struct {
	mode     personas.Mode
	reason   string
	patterns []*regexp.Regexp
}

// The ordering is a precedence policy: adversarial and reflective intents are
// phrased more specifically and must be checked before the broad
// decision/action/analysis groups would swallow them.
var patternGroups = []patternGroup{
	{
		mode:   personas.ModePreMortem,
		reason: "adversarial intent pattern",
		patterns: compile(
			`(?i)what (could|can|might) go wrong`,
			`(?i)what (could|might|would) fail`,
			`(?i)pre.?mortem`,
			`(?i)poke holes`,
			`(?i)devil'?s advocate`,
			`(?i)worst case`,
			`(?i)what am i missing`,
			`(?i)stress.?test (this|the|our)`,
		),
	},
	{
		mode:   personas.ModeRetrospective,
		reason: "reflective intent pattern",
		patterns: compile(
			`(?i)what went (wrong|well)`,
			`(?i)retro(spective)?\b`,
			`(?i)post.?mortem`,
			`(?i)lessons? learned`,
			`(?i)look(ing)? back`,
			`(?i)how did .{1,60} go\b`,
		),
	},
	{
		mode:   personas.ModeDecision,
		reason: "decision intent pattern",
		patterns: compile(
			`(?i)should (we|i)\b`,
			`(?i)\bdecide\b`,
			`(?i)choice between`,
			`(?i)which (option|one|path|approach)`,
			`(?i)trade.?offs?\b`,
			`(?i)(worth|better) (it|to)\b`,
			`(?i)recommend(ation)?\b`,
		),
	},
	{
		mode:   personas.ModeAction,
		reason: "action intent pattern",
		patterns: compile(
			`(?i)draft (an? )?(email|message|reply|update)`,
			`(?i)send (an? |the )?(email|message|update)`,
			`(?i)(update|transition|move) .{1,60}(ticket|issue|card)`,
			`(?i)move .{1,60} to (done|in progress|review|blocked)`,
			`(?i)create (a )?(ticket|issue|task)`,
			`(?i)remind\b`,
			`(?i)notify\b`,
			`(?i)follow up with`,
		),
	},
	{
		mode:   personas.ModeAnalysis,
		reason: "analysis intent pattern",
		patterns: compile(
			`(?i)what('?s| is) the status`,
			`(?i)how (is|are) .{1,60}(going|tracking|doing)`,
			`(?i)summar(y|ise|ize)`,
			`(?i)\breport\b`,
			`(?i)break (down|it down)`,
			`(?i)analy[sz]e`,
			`(?i)why (is|are|did)\b`,
			`(?i)\bexplain\b`,
		),
	},
}

// Classify maps a message to a conversation mode. First-match-wins over the
// ordered rule table; ties never occur because evaluation stops at the first
// hit.
func Classify(message string, ctx Context) Result {
	if ctx.Background {
		return Result{Mode: personas.ModeAnalysis, Confidence: confidenceBackground, Reason: "background cycle"}
	}

	trimmed := strings.ToLower(strings.TrimRight(strings.TrimSpace(message), ".!"))
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	if ctx.HasPendingDraft && matchesApproval(trimmed) {
		return Result{Mode: personas.ModeAction, Confidence: confidenceApproval, Reason: "pending draft approval"}
	}

	for _, group := range patternGroups {
		for _, re := range group.patterns {
			if re.MatchString(message) {
				return Result{Mode: group.mode, Confidence: confidencePattern, Reason: group.reason}
			}
		}
	}

	if len(strings.Fields(message)) <= quickQueryMaxWords {
		return Result{Mode: personas.ModeQuickQuery, Confidence: confidenceQuickQuery, Reason: "short message fallback"}
	}
	return Result{Mode: personas.ModeAnalysis, Confidence: confidenceFallback, Reason: "long message fallback"}
}

func matchesApproval(trimmed string) bool {
	for _, g := range approvalGlobs {
		if g.Match(trimmed) {
			return true
		}
	}
	return false
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

func compileGlobs(patterns []string) []glob.Glob {
	out := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		out[i] = glob.MustCompile(p)
	}
	return out
}
