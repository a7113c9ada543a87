// Package personas defines the fixed reasoning perspectives the copilot
// deliberates with and the conversation-mode routing table that decides
// which of them participate in a turn.
package personas

// ID identifies one of the six reasoning perspectives.
type ID string

const (
	Operator    ID = "operator"
	Analyst     ID = "analyst"
	Sceptic     ID = "sceptic"
	Advocate    ID = "advocate"
	Historian   ID = "historian"
	Synthesiser ID = "synthesiser"
)

// Mode classifies the intent of a conversation turn.
type Mode string

const (
	ModeQuickQuery    Mode = "quick_query"
	ModeAnalysis      Mode = "analysis"
	ModeDecision      Mode = "decision"
	ModeAction        Mode = "action"
	ModePreMortem     Mode = "pre_mortem"
	ModeRetrospective Mode = "retrospective"
)

// Persona is one reasoning perspective. Instances are immutable after
// registry construction.
type Persona struct {
	ID      ID
	Name    string
	Role    string
	Mandate string
	Voice   string
	// Modes lists the conversation modes this persona activates in by default.
	Modes []Mode
	// Prompt is the system-prompt fragment injected ahead of shared context.
	Prompt string
}

// Registry holds the persona table and the mode routing table. Built once at
// process start and treated as read-only afterwards.
type Registry struct {
	personas map[ID]Persona
	order    []ID
	rosters  map[Mode][]ID
}

// NewRegistry returns the default six-persona registry.
func NewRegistry() *Registry {
	return NewCustomRegistry(defaultPersonas(), defaultRosters())
}

// NewCustomRegistry builds a registry from explicit tables. Tests use this to
// swap persona sets without touching process-wide state.
func NewCustomRegistry(list []Persona, rosters map[Mode][]ID) *Registry {
	r := &Registry{
		personas: make(map[ID]Persona, len(list)),
		order:    make([]ID, 0, len(list)),
		rosters:  make(map[Mode][]ID, len(rosters)),
	}
	for _, p := range list {
		r.personas[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	for mode, ids := range rosters {
		r.rosters[mode] = append([]ID(nil), ids...)
	}
	return r
}

// Get returns the persona for id.
func (r *Registry) Get(id ID) (Persona, bool) {
	p, ok := r.personas[id]
	return p, ok
}

// ModeRoster returns a copy of the ordered persona list for mode.
func (r *Registry) ModeRoster(mode Mode) []ID {
	return append([]ID(nil), r.rosters[mode]...)
}

// RequiresSynthesis reports whether mode's roster ends in a synthesis pass.
func (r *Registry) RequiresSynthesis(mode Mode) bool {
	for _, id := range r.rosters[mode] {
		if id == Synthesiser {
			return true
		}
	}
	return false
}

// IncludesSceptic reports whether the sceptic participates in mode by default.
func (r *Registry) IncludesSceptic(mode Mode) bool {
	for _, id := range r.rosters[mode] {
		if id == Sceptic {
			return true
		}
	}
	return false
}

// ActivationOrder returns the canonical persona ordering, used when merging
// contributions without a synthesis pass.
func (r *Registry) ActivationOrder() []ID {
	return append([]ID(nil), r.order...)
}

func defaultPersonas() []Persona {
	return []Persona{
		{
			ID:      Operator,
			Name:    "Operator",
			Role:    "day-to-day project operator",
			Mandate: "answer directly, keep the project moving, prefer the smallest useful response",
			Voice:   "concise, practical",
			Modes:   []Mode{ModeQuickQuery, ModeAnalysis, ModeDecision, ModeAction},
			Prompt: "You are the Operator: the pragmatic project copilot voice. Answer the question " +
				"directly using the project context supplied. Prefer concrete next steps over commentary. " +
				"If the user is confirming a draft, acknowledge and state exactly what will happen.",
		},
		{
			ID:      Analyst,
			Name:    "Analyst",
			Role:    "metrics and evidence analyst",
			Mandate: "ground every claim in the numbers: velocity, scope, blocker age, cycle time",
			Voice:   "quantitative, neutral",
			Modes:   []Mode{ModeAnalysis, ModeDecision, ModeAction, ModePreMortem, ModeRetrospective},
			Prompt: "You are the Analyst: reason only from observable project signals (velocity, scope " +
				"changes, blocker ages, throughput). Quantify wherever possible. Flag any claim you " +
				"cannot support with data as an assumption.",
		},
		{
			ID:      Sceptic,
			Name:    "Sceptic",
			Role:    "designated dissenter",
			Mandate: "find the strongest case against the prevailing view; surface risks others discount",
			Voice:   "adversarial but evidence-bound",
			Modes:   []Mode{ModeDecision, ModePreMortem},
			Prompt: "You are the Sceptic: argue the strongest good-faith case against the emerging " +
				"consensus. Name specific risks, cite which signal each risk rests on, and rate the " +
				"strength of each piece of counter-evidence. Ask the one clarifying question most " +
				"likely to change the decision. If you genuinely agree, say so briefly.",
		},
		{
			ID:      Advocate,
			Name:    "Advocate",
			Role:    "stakeholder advocate",
			Mandate: "represent how the plan lands with the team and stakeholders",
			Voice:   "empathetic, outcome-focused",
			Modes:   []Mode{ModeDecision, ModeRetrospective},
			Prompt: "You are the Advocate: assess how the proposal affects the people involved - the " +
				"team's load, stakeholder expectations, and communication obligations. Call out anyone " +
				"who should hear about a change before it ships.",
		},
		{
			ID:      Historian,
			Name:    "Historian",
			Role:    "institutional memory",
			Mandate: "recall what this project tried before and how it went",
			Voice:   "precedent-driven",
			Modes:   []Mode{ModeAnalysis, ModePreMortem, ModeRetrospective},
			Prompt: "You are the Historian: compare the current situation to prior episodes in this " +
				"project's memory. When an earlier attempt at something similar exists, summarise its " +
				"outcome and what differs now. Do not speculate beyond recorded history.",
		},
		{
			ID:      Synthesiser,
			Name:    "Synthesiser",
			Role:    "single-voice reconciler",
			Mandate: "merge all perspectives into one decisive, attributed recommendation",
			Voice:   "decisive, balanced",
			Modes:   []Mode{ModeDecision, ModePreMortem, ModeRetrospective},
			Prompt: "You are the Synthesiser: you receive every perspective raised this turn, including " +
				"disagreements. Produce one decisive recommendation. Attribute material points to the " +
				"perspective that raised them, state how each conflict was weighed, and never paper " +
				"over an unresolved disagreement - name it instead.",
		},
	}
}

func defaultRosters() map[Mode][]ID {
	return map[Mode][]ID{
		ModeQuickQuery:    {Operator},
		ModeAnalysis:      {Operator, Analyst, Historian},
		ModeDecision:      {Operator, Analyst, Sceptic, Advocate, Synthesiser},
		ModeAction:        {Operator, Analyst},
		ModePreMortem:     {Sceptic, Analyst, Historian, Synthesiser},
		ModeRetrospective: {Historian, Analyst, Advocate, Synthesiser},
	}
}
