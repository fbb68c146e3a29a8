package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codearchitect/internal/generator"
	"codearchitect/internal/llm"
	"codearchitect/internal/memory"
	"codearchitect/internal/metrics"
	"codearchitect/internal/planner"
	"codearchitect/internal/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the knobs of a run that do not change between requests.
type Config struct {
	// Provider and Model label results; they do not select anything.
	Provider string
	Model    string

	// Retry is applied around every provider call. Retryable is always
	// replaced with llm.IsTransient.
	Retry retry.Policy

	Memory         memory.Options
	MaxSections    int
	SectionHeaders bool
	Language       string
}

// GeneratedSection is the cleaned output for one planned section.
type GeneratedSection struct {
	Index    int           `json:"index"`
	Title    string        `json:"title"`
	Text     string        `json:"text"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// Result describes a finished run. On failure Script and Sections are
// empty: sections generated before the failure are discarded.
type Result struct {
	ID         string             `json:"id"`
	Request    generator.Request  `json:"request"`
	Provider   string             `json:"provider"`
	Model      string             `json:"model"`
	State      State              `json:"state"`
	Plan       *planner.Plan      `json:"plan,omitempty"`
	Sections   []GeneratedSection `json:"sections,omitempty"`
	Script     string             `json:"script,omitempty"`
	Error      string             `json:"error,omitempty"`
	Report     *RunReport         `json:"report,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Orchestrator drives the plan-then-generate sequence against a single
// Generator. It is safe to use from several goroutines; each Run owns its
// own memory and section buffer.
type Orchestrator struct {
	gen      llm.Generator
	cfg      Config
	prompts  *generator.PromptBuilder
	parser   planner.Parser
	logger   *zap.Logger
	metrics  *metrics.Metrics
	observer Observer
	newID    func() string
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

func New(gen llm.Generator, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:     gen,
		cfg:     cfg,
		prompts: &generator.PromptBuilder{Memory: cfg.Memory},
		parser:  planner.Parser{MaxSections: cfg.MaxSections},
		logger:  zap.NewNop(),
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan runs only the planning phase.
func (o *Orchestrator) Plan(ctx context.Context, req generator.Request) (planner.Plan, error) {
	req = o.normalize(req)
	if strings.TrimSpace(req.Prompt) == "" {
		return planner.Plan{}, ErrEmptyPrompt
	}
	report := NewRunReport("")
	return o.plan(ctx, "", req, report)
}

// Run executes a full run. The returned Result is never nil when the
// prompt is non-empty, so failed runs can be archived; err is a *RunError
// in that case.
func (o *Orchestrator) Run(ctx context.Context, req generator.Request) (*Result, error) {
	req = o.normalize(req)
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	res := &Result{
		ID:        o.newID(),
		Request:   req,
		Provider:  o.cfg.Provider,
		Model:     o.cfg.Model,
		State:     StateIdle,
		StartedAt: time.Now().UTC(),
	}
	res.Report = NewRunReport(res.ID)
	log := o.logger.With(zap.String("run_id", res.ID))

	o.emit(log, Event{RunID: res.ID, State: StatePlanning, Section: -1})
	res.State = StatePlanning
	plan, err := o.plan(ctx, res.ID, req, res.Report)
	if err != nil {
		return o.fail(log, res, &RunError{RunID: res.ID, Phase: StatePlanning, Section: -1, Err: err})
	}
	res.Plan = &plan
	log.Info("plan accepted", zap.Int("sections", plan.Len()), zap.Strings("titles", plan.Titles()))

	mem := memory.Memory{}
	sections := make([]GeneratedSection, 0, plan.Len())
	for i, sec := range plan.Sections {
		res.State = StateGeneratingSection
		o.emit(log, Event{RunID: res.ID, State: StateGeneratingSection, Section: i, Title: sec.Title, Total: plan.Len()})

		stage := res.Report.beginStage(fmt.Sprintf("section_%d", i+1))
		prompt := o.prompts.BuildSectionPrompt(req, plan, mem, i)
		started := time.Now()
		raw, attempts, err := o.call(ctx, log, res.ID, "section", prompt)
		if err != nil {
			res.Report.endStage(stage, StageMetric{Attempts: attempts, PromptLen: len(prompt)}, err)
			res.Report.addSignal("provider_failed", stage.name, "critical", fmt.Sprintf("Section %q could not be generated.", sec.Title))
			return o.fail(log, res, &RunError{RunID: res.ID, Phase: StateGeneratingSection, Section: i, Title: sec.Title, Err: err})
		}

		text := generator.CleanCode(raw)
		elapsed := time.Since(started)
		res.Report.endStage(stage, StageMetric{Attempts: attempts, PromptLen: len(prompt), OutputLen: len(text)}, nil)
		if attempts > 1 {
			res.Report.addSignal("retried", stage.name, "warning", fmt.Sprintf("Section %q needed %d attempts.", sec.Title, attempts))
		}
		if text == "" {
			res.Report.addSignal("empty_section", stage.name, "warning", fmt.Sprintf("Section %q came back empty after cleanup.", sec.Title))
		}
		o.metrics.SectionGenerated(elapsed)

		sections = append(sections, GeneratedSection{
			Index:    i,
			Title:    sec.Title,
			Text:     text,
			Attempts: attempts,
			Duration: elapsed,
		})
		mem = memory.Append(mem, sec.Title, text)
	}

	res.State = StateAssembling
	o.emit(log, Event{RunID: res.ID, State: StateAssembling, Section: -1, Total: plan.Len()})
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Text
	}
	script, err := generator.Assemble(plan, texts, generator.AssembleOptions{
		Language: req.Language,
		Headers:  o.cfg.SectionHeaders,
	})
	if err != nil {
		// Unreachable while the loop appends one text per section.
		return o.fail(log, res, &RunError{RunID: res.ID, Phase: StateAssembling, Section: -1, Err: err})
	}

	res.Sections = sections
	res.Script = script
	res.State = StateDone
	res.FinishedAt = time.Now().UTC()
	res.Report.finalize()
	o.metrics.RunFinished("done", res.FinishedAt.Sub(res.StartedAt))
	o.emit(log, Event{RunID: res.ID, State: StateDone, Section: -1, Total: plan.Len()})
	log.Info("run completed", zap.Int("sections", len(sections)), zap.Int("script_chars", len(script)))
	return res, nil
}

func (o *Orchestrator) normalize(req generator.Request) generator.Request {
	if strings.TrimSpace(req.Language) == "" {
		req.Language = o.cfg.Language
	}
	return req
}

func (o *Orchestrator) plan(ctx context.Context, runID string, req generator.Request, report *RunReport) (planner.Plan, error) {
	log := o.logger.With(zap.String("run_id", runID))
	stage := report.beginStage("planning")
	prompt := o.prompts.BuildPlanningPrompt(req)

	raw, attempts, err := o.call(ctx, log, runID, "plan", prompt)
	if err != nil {
		report.endStage(stage, StageMetric{Attempts: attempts, PromptLen: len(prompt)}, err)
		report.addSignal("provider_failed", stage.name, "critical", "Planning call failed.")
		return planner.Plan{}, err
	}

	plan, err := o.parser.Parse(raw)
	if err != nil {
		report.endStage(stage, StageMetric{Attempts: attempts, PromptLen: len(prompt), OutputLen: len(raw)}, err)
		report.addSignal("plan_parse_failed", stage.name, "critical", "Planning response was not a usable plan.")
		log.Warn("plan rejected", zap.Error(err), zap.Int("response_chars", len(raw)))
		return planner.Plan{}, err
	}
	report.endStage(stage, StageMetric{Attempts: attempts, PromptLen: len(prompt), OutputLen: len(raw)}, nil)
	return plan, nil
}

// call sends one prompt through the retry policy and reports how many
// attempts it took.
func (o *Orchestrator) call(ctx context.Context, log *zap.Logger, runID, phase, prompt string) (string, int, error) {
	attempts := 0
	policy := o.cfg.Retry
	policy.Retryable = llm.IsTransient
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		o.metrics.ProviderRetry(phase)
		log.Warn("provider call failed, retrying",
			zap.String("phase", phase),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		o.notify(Event{RunID: runID, State: stateForPhase(phase), Section: -1, Retry: &RetryInfo{Attempt: attempt, Wait: wait, Err: err}})
	}

	text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		attempts++
		out, err := o.gen.Generate(ctx, prompt)
		o.metrics.ProviderCall(phase, outcome(err))
		return out, err
	})
	return text, attempts, err
}

func (o *Orchestrator) fail(log *zap.Logger, res *Result, runErr *RunError) (*Result, error) {
	res.State = StateFailed
	res.Sections = nil
	res.Script = ""
	res.Error = runErr.Error()
	res.FinishedAt = time.Now().UTC()
	res.Report.finalize()
	o.metrics.RunFinished("failed", res.FinishedAt.Sub(res.StartedAt))
	o.emit(log, Event{RunID: res.ID, State: StateFailed, Section: runErr.Section, Title: runErr.Title, Err: runErr.Err})
	log.Error("run failed",
		zap.String("phase", runErr.Phase.String()),
		zap.Int("section", runErr.Section),
		zap.Error(runErr.Err),
	)
	return res, runErr
}

func (o *Orchestrator) emit(log *zap.Logger, e Event) {
	log.Debug("state transition",
		zap.String("state", e.State.String()),
		zap.Int("section", e.Section),
		zap.String("title", e.Title),
	)
	o.notify(e)
}

func (o *Orchestrator) notify(e Event) {
	if o.observer != nil {
		o.observer(e)
	}
}

func stateForPhase(phase string) State {
	if phase == "plan" {
		return StatePlanning
	}
	return StateGeneratingSection
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case llm.IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
