package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adalundhe/steward/core/classify"
	"github.com/adalundhe/steward/core/events"
	"github.com/adalundhe/steward/core/personas"
	"github.com/adalundhe/steward/core/providers"
	"github.com/adalundhe/steward/core/session"
	"github.com/adalundhe/steward/core/tools"
)

// Config carries the orchestrator's tunables. Thresholds are product
// decisions and live in configuration, not code.
type Config struct {
	// ConfidenceGapThreshold flags any contribution pair whose confidence
	// differs by more than this as a conflict, dissent or not.
	ConfidenceGapThreshold float64
	// Sceptic holds the activation thresholds for out-of-mode sceptic turns.
	Sceptic classify.ScepticConfig
	// MaxTokens caps each persona completion.
	MaxTokens int
	// MemoryLimit is how many records to retrieve for shared context.
	MemoryLimit int
	// RecentTurns is how much conversation history each persona sees.
	RecentTurns int
}

// DefaultConfig returns the shipped tuning.
func DefaultConfig() Config {
	return Config{
		ConfidenceGapThreshold: 0.4,
		Sceptic:                classify.DefaultScepticConfig(),
		MaxTokens:              1024,
		MemoryLimit:            5,
		RecentTurns:            10,
	}
}

// Orchestrator runs the deliberation protocol for one conversation. It owns
// the session it was built with; concurrent ProcessMessage calls against the
// same orchestrator are not supported.
type Orchestrator struct {
	registry  *personas.Registry
	completer providers.Completer
	memory    Memory
	session   *session.State
	tools     tools.Executor
	scorer    Scorer
	bus       *events.Bus
	log       *slog.Logger
	cfg       Config
	signals   func() classify.Signals
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithScorer replaces the default regex scorer.
func WithScorer(s Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithTools injects the tool executor. Unused by the current personas but
// part of the dependency surface.
func WithTools(t tools.Executor) Option {
	return func(o *Orchestrator) { o.tools = t }
}

// WithBus routes challenge and deliberation audit events to bus.
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = logger }
}

// WithSignalSource supplies the project health signals sceptic activation
// thresholds compare against. Defaults to all-zero signals.
func WithSignalSource(fn func() classify.Signals) Option {
	return func(o *Orchestrator) { o.signals = fn }
}

// WithClock overrides the clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator. The registry is explicit so tests can swap
// persona sets without process-wide state.
func New(registry *personas.Registry, completer providers.Completer, mem Memory, sess *session.State, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		completer: completer,
		memory:    mem,
		session:   sess,
		scorer:    RegexScorer{},
		log:       slog.Default(),
		cfg:       DefaultConfig(),
		signals:   func() classify.Signals { return classify.Signals{} },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessMessage runs one full deliberation turn: classify, resolve the
// active persona set, fan completions out, score and reconcile them, and
// record the turn pair in session and memory.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userMessage string, background bool) (*Response, error) {
	started := o.now()

	result := classify.Classify(userMessage, classify.Context{
		Background:      background,
		HasPendingDraft: o.session.HasPendingDraft(),
		TurnCount:       o.session.TurnCount(),
	})
	o.log.Debug("turn classified",
		slog.String("mode", string(result.Mode)),
		slog.Float64("confidence", result.Confidence),
		slog.String("reason", result.Reason))

	active := o.registry.ModeRoster(result.Mode)
	scepticTrigger, scepticForced := classify.ShouldActivateSceptic(
		result.Mode, userMessage, o.signals(), o.session.LastChallengeAt(), o.now(), o.cfg.Sceptic)
	if scepticForced {
		active = appendMissing(active, personas.Sceptic)
		// A non-consensus sceptic opinion is always reconciled, never
		// surfaced raw.
		active = appendMissing(active, personas.Synthesiser)
		o.log.Info("sceptic activated",
			slog.String("trigger", string(scepticTrigger)),
			slog.String("mode", string(result.Mode)))
	}

	sharedContext := o.buildSharedContext(ctx, userMessage)

	if len(active) == 1 && active[0] == personas.Operator {
		return o.fastPath(ctx, userMessage, result.Mode, sharedContext)
	}

	contributions, err := o.fanOut(ctx, active, userMessage, sharedContext)
	if err != nil {
		return nil, err
	}

	conflicts := o.detectConflicts(contributions)

	var synthesis, message string
	if o.registry.RequiresSynthesis(result.Mode) || scepticForced {
		synthesis, err = o.synthesise(ctx, userMessage, contributions, conflicts)
		if err != nil {
			return nil, err
		}
		message = synthesis
	} else {
		message = o.mergeOrdered(contributions)
	}

	var challenge *Challenge
	if sc, ok := scepticContribution(contributions); ok && sc.Dissent {
		trigger := scepticTrigger
		if !scepticForced {
			// The sceptic sat in the mode's default roster; the turn itself
			// invoked it.
			trigger = classify.TriggerUserInvoked
		}
		challenge = buildChallenge(trigger, userMessage, sc)
		o.session.MarkChallenge()
		o.bus.Publish(events.New(events.TypeChallengeRaised, o.session.Project).
			WithDetail(string(trigger)))
	}

	deliberation := &Deliberation{
		Mode:          result.Mode,
		UserMessage:   userMessage,
		Contributions: contributions,
		Conflicts:     conflicts,
		Synthesis:     synthesis,
		Elapsed:       o.now().Sub(started),
	}

	resp := &Response{
		Message:         message,
		Mode:            result.Mode,
		Deliberation:    deliberation,
		Challenge:       challenge,
		ShowAttribution: result.Mode == personas.ModeDecision || result.Mode == personas.ModePreMortem || len(conflicts) > 0,
	}

	o.recordTurn(ctx, userMessage, resp, active)
	o.bus.Publish(events.New(events.TypeDeliberationCompleted, o.session.Project).
		WithDetail(fmt.Sprintf("mode=%s personas=%d conflicts=%d", result.Mode, len(active), len(conflicts))))
	return resp, nil
}

// fastPath answers single-voice turns with one completion and no
// deliberation record: quick queries never pay multi-persona latency.
func (o *Orchestrator) fastPath(ctx context.Context, userMessage string, mode personas.Mode, sharedContext string) (*Response, error) {
	operator, _ := o.registry.Get(personas.Operator)
	content, err := o.completePersona(ctx, operator, userMessage, sharedContext)
	if err != nil {
		return nil, err
	}
	resp := &Response{Message: content, Mode: mode}
	o.recordTurn(ctx, userMessage, resp, []personas.ID{personas.Operator})
	return resp, nil
}

// fanOut runs every non-synthesiser active persona concurrently and scores
// the raw outputs in roster order. The first completion error is returned
// after all goroutines settle.
func (o *Orchestrator) fanOut(ctx context.Context, active []personas.ID, userMessage, sharedContext string) ([]Contribution, error) {
	surface := make([]personas.Persona, 0, len(active))
	for _, id := range active {
		if id == personas.Synthesiser {
			continue
		}
		p, ok := o.registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("persona %q is not registered", id)
		}
		surface = append(surface, p)
	}

	outputs := make([]string, len(surface))
	errs := make([]error, len(surface))
	var wg sync.WaitGroup
	for i, p := range surface {
		wg.Add(1)
		go func(i int, p personas.Persona) {
			defer wg.Done()
			content, err := o.completePersona(ctx, p, userMessage, sharedContext)
			if err != nil {
				errs[i] = fmt.Errorf("persona %s: %w", p.ID, err)
				return
			}
			outputs[i] = content
		}(i, p)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	contributions := make([]Contribution, len(surface))
	for i, p := range surface {
		contributions[i] = o.scorer.Score(p.ID, outputs[i])
	}
	return contributions, nil
}

func (o *Orchestrator) completePersona(ctx context.Context, p personas.Persona, userMessage, sharedContext string) (string, error) {
	tier := providers.TierStandard
	if p.ID == personas.Sceptic || p.ID == personas.Synthesiser {
		tier = providers.TierElevated
	}

	messages := make([]providers.Message, 0, o.cfg.RecentTurns+1)
	for _, turn := range o.session.RecentTurns(o.cfg.RecentTurns) {
		role := providers.RoleUser
		if turn.Role == session.RoleAssistant {
			role = providers.RoleAssistant
		}
		messages = append(messages, providers.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: userMessage})

	system := p.Prompt
	if sharedContext != "" {
		system += "\n\n" + sharedContext
	}
	resp, err := o.completer.Complete(ctx, &providers.Request{
		SystemPrompt: system,
		Messages:     messages,
		MaxTokens:    o.cfg.MaxTokens,
		Tier:         tier,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// buildSharedContext assembles the memory context every persona sees.
// Retrieval failure degrades to an empty context rather than failing the
// turn; the completion itself is the hard dependency.
func (o *Orchestrator) buildSharedContext(ctx context.Context, userMessage string) string {
	var b strings.Builder
	if summary := o.memory.LastSessionSummary(); summary != "" {
		b.WriteString("Previous session summary:\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	records, err := o.memory.RetrieveRelevant(ctx, userMessage, o.cfg.MemoryLimit)
	if err != nil {
		o.log.Warn("memory retrieval failed", slog.String("error", err.Error()))
	} else if len(records) > 0 {
		b.WriteString("Relevant project memory:\n")
		for _, r := range records {
			fmt.Fprintf(&b, "- [%s] %s\n", r.Type, r.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// detectConflicts computes pairwise disagreement. Dissent conflicts are
// directional (dissenter first); confidence divergences are flagged for any
// pair whose gap exceeds the threshold regardless of dissent. O(n²) over a
// persona count bounded at six.
func (o *Orchestrator) detectConflicts(contributions []Contribution) []Conflict {
	var conflicts []Conflict
	for _, c := range contributions {
		if !c.Dissent {
			continue
		}
		for _, other := range contributions {
			if other.Persona == c.Persona || other.Dissent {
				continue
			}
			topic := c.DissentReason
			if topic == "" {
				topic = "dissent"
			}
			conflicts = append(conflicts, Conflict{First: c.Persona, Second: other.Persona, Topic: topic})
		}
	}
	for i := 0; i < len(contributions); i++ {
		for j := i + 1; j < len(contributions); j++ {
			a, b := contributions[i], contributions[j]
			gap := a.Confidence - b.Confidence
			if gap < 0 {
				a, b = b, a
				gap = -gap
			}
			if gap > o.cfg.ConfidenceGapThreshold {
				conflicts = append(conflicts, Conflict{First: a.Persona, Second: b.Persona, Topic: "confidence divergence"})
			}
		}
	}
	return conflicts
}

// synthesise runs the synthesiser once over all contributions and conflicts
// rendered as structured context. Strictly follows the fan-in barrier.
func (o *Orchestrator) synthesise(ctx context.Context, userMessage string, contributions []Contribution, conflicts []Conflict) (string, error) {
	synthesiser, _ := o.registry.Get(personas.Synthesiser)

	var b strings.Builder
	b.WriteString("Perspectives raised this turn:\n\n")
	for _, c := range contributions {
		fmt.Fprintf(&b, "== %s (confidence %.2f", c.Persona, c.Confidence)
		if c.Dissent {
			b.WriteString(", dissenting")
		}
		b.WriteString(") ==\n")
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	if len(conflicts) > 0 {
		b.WriteString("Conflicts to reconcile:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&b, "- %s vs %s: %s\n", c.First, c.Second, c.Topic)
		}
	}

	resp, err := o.completer.Complete(ctx, &providers.Request{
		SystemPrompt: synthesiser.Prompt + "\n\n" + b.String(),
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: userMessage}},
		MaxTokens:    o.cfg.MaxTokens,
		Tier:         providers.TierElevated,
	})
	if err != nil {
		return "", fmt.Errorf("persona %s: %w", personas.Synthesiser, err)
	}
	return resp.Content, nil
}

// mergeOrdered concatenates contributions in canonical activation order.
// Cheap merge for modes that do not pay for a synthesis call.
func (o *Orchestrator) mergeOrdered(contributions []Contribution) string {
	byID := make(map[personas.ID]Contribution, len(contributions))
	for _, c := range contributions {
		byID[c.Persona] = c
	}
	var parts []string
	for _, id := range o.registry.ActivationOrder() {
		c, ok := byID[id]
		if !ok {
			continue
		}
		p, _ := o.registry.Get(id)
		parts = append(parts, fmt.Sprintf("[%s]\n%s", p.Name, c.Content))
	}
	return strings.Join(parts, "\n\n")
}

// recordTurn appends the strict (user, assistant) turn pair and persists a
// short episodic memory of the turn.
func (o *Orchestrator) recordTurn(ctx context.Context, userMessage string, resp *Response, active []personas.ID) {
	o.session.AppendTurn(session.RoleUser, userMessage, resp.Mode)
	o.session.AppendTurn(session.RoleAssistant, resp.Message, resp.Mode)

	names := make([]string, len(active))
	for i, id := range active {
		names[i] = string(id)
	}
	conflictCount := 0
	if resp.Deliberation != nil {
		conflictCount = len(resp.Deliberation.Conflicts)
	}
	event := fmt.Sprintf("Turn in %s mode with personas %s; %d conflicts.",
		resp.Mode, strings.Join(names, ", "), conflictCount)
	if err := o.memory.RecordEvent(ctx, event, map[string]string{"type": "episodic", "mode": string(resp.Mode)}); err != nil {
		o.log.Warn("memory record failed", slog.String("error", err.Error()))
	}
}

func scepticContribution(contributions []Contribution) (Contribution, bool) {
	for _, c := range contributions {
		if c.Persona == personas.Sceptic {
			return c, true
		}
	}
	return Contribution{}, false
}

func appendMissing(ids []personas.ID, id personas.ID) []personas.ID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
