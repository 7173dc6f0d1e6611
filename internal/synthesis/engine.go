// Package synthesis turns facts and evidence into prioritized, evidence-linked
// tickets. Rule-based candidates are always computed; when a language model
// is configured it rewrites them, and its output must pass the Gate or the
// deterministic fallback is used instead.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
)

// ErrInsufficientEvidence is reported when synthesis is skipped for lack of
// screenshot evidence.
var ErrInsufficientEvidence = errors.New("insufficient evidence for synthesis")

// Input is everything one synthesis call may look at.
type Input struct {
	Facts        audit.FactRecord
	Evidence     []audit.Evidence
	Locale       string
	Mode         audit.Mode
	URL          string
	Completeness audit.Completeness
}

func (in Input) mode() audit.Mode {
	if in.Mode == "" {
		return audit.ModeSolo
	}
	return in.Mode
}

// Output is the approved result of one synthesis call. Err carries a model
// or validation failure that was recovered by the fallback.
type Output struct {
	Tickets          []audit.Ticket
	Evidence         []audit.Evidence
	Reasoning        string
	ExecutiveSummary string
	Plan             audit.Plan
	Source           audit.SynthesisSource
	Err              error
}

// Config controls Engine behavior.
type Config struct {
	AllowInsufficientEvidence bool
	ModelTimeout              time.Duration
	Guardrails                Guardrails
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AllowInsufficientEvidence: true,
		ModelTimeout:              60 * time.Second,
		Guardrails:                DefaultGuardrails(),
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRules replaces the rule set.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = NewRuleStrategy(rules) }
}

// WithModel enables the model-backed strategy.
func WithModel(m audit.LanguageModel) Option {
	return func(e *Engine) { e.model = m }
}

// Engine runs the synthesis strategies and the validation gate.
type Engine struct {
	cfg    Config
	rules  *RuleStrategy
	model  audit.LanguageModel
	logger *zap.Logger
}

// NewEngine builds an Engine. Without WithModel it uses rules only.
func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		rules:  NewRuleStrategy(nil),
		logger: logger.Named("synthesis"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Synthesize produces the ticket set for one run. Only gate-approved or
// deterministic tickets are ever returned.
func (e *Engine) Synthesize(ctx context.Context, in Input) Output {
	out := e.synthesize(ctx, in)
	out.Evidence = in.Evidence
	if out.Tickets == nil {
		out.Tickets = []audit.Ticket{}
	}
	metrics.ObserveSynthesis(string(out.Source))
	e.logger.Debug("synthesis finished",
		zap.String("source", string(out.Source)),
		zap.Int("tickets", len(out.Tickets)),
		zap.Error(out.Err),
	)
	return out
}

func (e *Engine) synthesize(ctx context.Context, in Input) Output {
	if !in.Facts.HasMinimalFacts() {
		var tickets []audit.Ticket
		if t, ok := InsufficientDataTicket(in); ok {
			tickets = append(tickets, t)
		}
		promoted, plan := PostProcess(tickets, e.cfg.Guardrails)
		return Output{
			Tickets:          promoted,
			Plan:             plan,
			ExecutiveSummary: InsufficientDataSummary,
			Reasoning:        InsufficientDataReasoning,
			Source:           audit.SourceInsufficientData,
		}
	}

	if in.Completeness == audit.CompletenessInsufficient && !e.cfg.AllowInsufficientEvidence {
		return Output{
			Plan:             BuildPlan(nil),
			ExecutiveSummary: SkippedSummary,
			Reasoning:        SkippedReasoning,
			Source:           audit.SourceSkipped,
			Err:              ErrInsufficientEvidence,
		}
	}

	candidates := e.rules.Candidates(in)
	if e.model == nil {
		promoted, plan := PostProcess(candidates, e.cfg.Guardrails)
		return Output{
			Tickets:          promoted,
			Plan:             plan,
			ExecutiveSummary: rulesSummary(promoted, plan),
			Reasoning:        rulesReasoning(candidates),
			Source:           audit.SourceRules,
		}
	}

	approved, err := e.generate(ctx, in, candidates)
	if err != nil {
		e.logger.Warn("model output discarded, using fallback", zap.Error(err))
		promoted, plan := PostProcess(FallbackTickets(in, candidates), e.cfg.Guardrails)
		return Output{
			Tickets:          promoted,
			Plan:             plan,
			ExecutiveSummary: FallbackSummary,
			Reasoning:        FallbackReasoning,
			Source:           audit.SourceFallback,
			Err:              err,
		}
	}
	promoted, plan := PostProcess(approved.Tickets, e.cfg.Guardrails)
	return Output{
		Tickets:          promoted,
		Plan:             plan,
		ExecutiveSummary: approved.ExecutiveSummary,
		Reasoning:        approved.Reasoning,
		Source:           audit.SourceModel,
	}
}

func (e *Engine) generate(ctx context.Context, in Input, candidates []audit.Ticket) (Approved, error) {
	user, err := UserPrompt(in, candidates)
	if err != nil {
		return Approved{}, err
	}
	if e.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ModelTimeout)
		defer cancel()
	}
	raw, err := e.model.GenerateStructured(ctx, SystemPrompt(in.Locale), user, OutputSchema())
	if err != nil {
		return Approved{}, fmt.Errorf("generate structured output: %w", err)
	}
	return NewGate(candidates, in.Evidence, in.mode(), in.URL).Validate(raw)
}

func rulesSummary(tickets []audit.Ticket, plan audit.Plan) string {
	if len(tickets) == 0 {
		return "No rule-based issues were found on this page."
	}
	return fmt.Sprintf("%d prioritized recommendation(s), %d quick win(s). Top priority: %s.",
		len(tickets), len(plan.QuickWins), tickets[0].Title)
}

func rulesReasoning(candidates []audit.Ticket) string {
	if len(candidates) == 0 {
		return "No deterministic rule matched the extracted facts."
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.RuleID)
	}
	return "Matched rules: " + strings.Join(ids, ", ") + "."
}
