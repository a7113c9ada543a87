// Package ensemble coordinates multi-persona deliberation over a single
// language-model collaborator: classify the turn, fan persona completions out
// concurrently, detect disagreement, synthesise, and surface dissent as a
// structured challenge instead of swallowing it.
package ensemble

import (
	"context"
	"time"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/classify"
	"github.com/adalundhe/steward/core/memory"
	"github.com/adalundhe/steward/core/personas"
)

// Contribution is one persona's output for one turn. Immutable once scored.
type Contribution struct {
	Persona       personas.ID
	Content       string
	Confidence    float64
	Dissent       bool
	DissentReason string
}

// Conflict is a detected disagreement between two contributions. Dissent
// conflicts are directional with the dissenter listed first; confidence
// divergences list the more confident side first. Recomputed every turn,
// never persisted.
type Conflict struct {
	First  personas.ID
	Second personas.ID
	Topic  string
	// Resolution is filled by the synthesis pass when it addressed the
	// conflict explicitly; empty otherwise.
	Resolution string
}

// Deliberation is the transparency record for one multi-persona turn,
// attached to the response for audit and display.
type Deliberation struct {
	Mode          personas.Mode
	UserMessage   string
	Contributions []Contribution
	Conflicts     []Conflict
	// Synthesis is the synthesiser's merged recommendation, empty when the
	// turn merged contributions without a synthesis pass.
	Synthesis string
	Elapsed   time.Duration
}

// ConsensusReached reports whether the turn produced zero conflicts. Always
// derived from the conflict list, never stored.
func (d *Deliberation) ConsensusReached() bool {
	return len(d.Conflicts) == 0
}

// CounterEvidence is one piece of a challenge's supporting case.
type CounterEvidence struct {
	Point    string
	Source   string
	Strength string
}

// Counter-evidence strength buckets.
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
)

// Challenge is a structured sceptic objection. Built only when the sceptic
// dissents; independent of whether a Deliberation exists alongside it.
type Challenge struct {
	Trigger            classify.Trigger
	Claim              string
	CounterEvidence    []CounterEvidence
	ClarifyingQuestion string
	AlternativeFraming string
}

// Response is the result of one processed message.
type Response struct {
	Message      string
	Mode         personas.Mode
	Deliberation *Deliberation
	Challenge    *Challenge
	// ShowAttribution is true for decision and pre-mortem turns and for any
	// turn with conflicts: disagreement is never silently hidden.
	ShowAttribution bool
	// Actions and Sources are caller-attached; the deliberation protocol
	// itself leaves them empty.
	Actions []actions.Payload
	Sources []memory.Record
}

// Memory is the memory-store collaborator the orchestrator consumes.
type Memory interface {
	RetrieveRelevant(ctx context.Context, query string, limit int) ([]memory.Record, error)
	LastSessionSummary() string
	RecordEvent(ctx context.Context, content string, meta map[string]string) error
}
