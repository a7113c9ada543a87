// Package session holds per-conversation state. A session is owned by a
// single in-flight request at a time; it is not hardened for concurrent
// writers and the orchestrator never shares one across requests.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/personas"
)

// Role marks who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation log.
type Turn struct {
	Role      Role
	Content   string
	Mode      personas.Mode
	Timestamp time.Time
}

// Draft is a proposed action awaiting user confirmation. At most one draft is
// pending per session.
type Draft struct {
	Description string
	Payload     actions.Payload
	CreatedAt   time.Time
}

// State is the mutable per-conversation record.
type State struct {
	ID              string
	Project         string
	turns           []Turn
	lastChallengeAt time.Time
	pendingDraft    *Draft
	activeMode      personas.Mode
	now             func() time.Time
}

// New creates a session for the given project. Project may be empty for
// conversations not bound to one.
func New(project string) *State {
	return &State{
		ID:      uuid.NewString(),
		Project: project,
		now:     time.Now,
	}
}

// AppendTurn records a turn and updates the active mode when the turn carries
// one.
func (s *State) AppendTurn(role Role, content string, mode personas.Mode) {
	s.turns = append(s.turns, Turn{
		Role:      role,
		Content:   content,
		Mode:      mode,
		Timestamp: s.now(),
	})
	if mode != "" {
		s.activeMode = mode
	}
}

// Turns returns a copy of the full turn log.
func (s *State) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// TurnCount reports how many turns the session holds.
func (s *State) TurnCount() int {
	return len(s.turns)
}

// RecentTurns returns up to n most recent turns, oldest first.
func (s *State) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.turns) == 0 {
		return nil
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	return append([]Turn(nil), s.turns[len(s.turns)-n:]...)
}

// ActiveMode returns the mode of the most recent classified turn.
func (s *State) ActiveMode() personas.Mode {
	return s.activeMode
}

// SetPendingDraft stores the draft, replacing any prior one.
func (s *State) SetPendingDraft(d Draft) {
	d.CreatedAt = s.now()
	s.pendingDraft = &d
}

// PendingDraft returns the pending draft, if any.
func (s *State) PendingDraft() (Draft, bool) {
	if s.pendingDraft == nil {
		return Draft{}, false
	}
	return *s.pendingDraft, true
}

// HasPendingDraft reports whether a draft awaits confirmation.
func (s *State) HasPendingDraft() bool {
	return s.pendingDraft != nil
}

// ClearPendingDraft discards the pending draft.
func (s *State) ClearPendingDraft() {
	s.pendingDraft = nil
}

// MarkChallenge records that a challenge was raised now, starting the sceptic
// cooldown window.
func (s *State) MarkChallenge() {
	s.lastChallengeAt = s.now()
}

// LastChallengeAt returns the time of the last challenge, zero if none.
func (s *State) LastChallengeAt() time.Time {
	return s.lastChallengeAt
}

// SetClock overrides the session clock. Test hook.
func (s *State) SetClock(now func() time.Time) {
	s.now = now
}
