package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"codearchitect/internal/generator"
	"codearchitect/internal/llm"
	"codearchitect/internal/logging/logtest"
	"codearchitect/internal/memory"
	"codearchitect/internal/metrics"
	"codearchitect/internal/planner"
	"codearchitect/internal/retry"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// scriptedGenerator answers the planning prompt with plan and every other
// prompt through section.
type scriptedGenerator struct {
	mu      sync.Mutex
	plan    func() (string, error)
	section func(n int, prompt string) (string, error)
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if isPlanningPrompt(prompt) {
		return g.plan()
	}
	return g.section(len(g.sectionPrompts())-1, prompt)
}

func (g *scriptedGenerator) sectionPrompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, p := range g.prompts {
		if !isPlanningPrompt(p) {
			out = append(out, p)
		}
	}
	return out
}

func isPlanningPrompt(p string) bool {
	return strings.Contains(p, "Role: Software Architect")
}

func planJSON(titles ...string) string {
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = fmt.Sprintf(`{"title":%q,"instruction":"write %s"}`, t, t)
	}
	return `{"sections": [` + strings.Join(parts, ",") + `]}`
}

func transient(msg string) error {
	return &llm.ProviderError{Provider: "fake", Kind: llm.Transient, StatusCode: 503, Err: errors.New(msg)}
}

func permanent(msg string) error {
	return &llm.ProviderError{Provider: "fake", Kind: llm.Permanent, StatusCode: 401, Err: errors.New(msg)}
}

func testConfig() Config {
	return Config{
		Provider: "fake",
		Model:    "fake-1",
		Retry:    retry.Policy{MaxAttempts: 2},
		Memory:   memory.Options{Verbosity: memory.VerbositySummary},
		Language: "python",
	}
}

func TestRun_CSVScenario(t *testing.T) {
	gen := &scriptedGenerator{
		plan: func() (string, error) {
			return `{"sections": [{"title":"imports"},{"title":"main logic"}]}`, nil
		},
		section: func(n int, _ string) (string, error) {
			return []string{"import csv", "print(sum(1 for _ in csv.reader(open('a.csv'))))"}[n], nil
		},
	}
	o := New(gen, testConfig())

	res, err := o.Run(context.Background(), generator.Request{Prompt: "write a CSV row counter"})
	require.NoError(t, err)

	prompts := gen.sectionPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "section 1, `imports`")
	assert.Contains(t, prompts[1], "section 2, `main logic`")

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "import csv\nprint(sum(1 for _ in csv.reader(open('a.csv'))))", res.Script)
	assert.Len(t, res.Sections, 2)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "python", res.Request.Language)
}

func TestRun_OneCallPerSectionInPlanOrder(t *testing.T) {
	titles := []string{"imports", "config", "helpers", "models", "main"}
	gen := &scriptedGenerator{
		plan: func() (string, error) { return planJSON(titles...), nil },
		section: func(n int, _ string) (string, error) {
			return fmt.Sprintf("# body %d", n), nil
		},
	}
	o := New(gen, testConfig())

	res, err := o.Run(context.Background(), generator.Request{Prompt: "a tool"})
	require.NoError(t, err)

	prompts := gen.sectionPrompts()
	require.Len(t, prompts, len(titles))
	for i, title := range titles {
		assert.Contains(t, prompts[i], fmt.Sprintf("section %d, `%s`", i+1, title))
	}
	assert.True(t, isPlanningPrompt(gen.prompts[0]), "planning call must come first")
	assert.Len(t, gen.prompts, len(titles)+1)
	assert.Equal(t, titles, res.Plan.Titles())
}

func TestRun_MemoryReferencesOnlyEarlierSections(t *testing.T) {
	titles := []string{"alpha", "beta", "gamma", "delta"}
	gen := &scriptedGenerator{
		plan: func() (string, error) { return planJSON(titles...), nil },
		section: func(n int, _ string) (string, error) {
			return fmt.Sprintf("code_%d = %d", n, n), nil
		},
	}
	o := New(gen, testConfig())

	_, err := o.Run(context.Background(), generator.Request{Prompt: "four parts"})
	require.NoError(t, err)

	prompts := gen.sectionPrompts()
	require.Len(t, prompts, len(titles))
	for i, p := range prompts {
		mem := memoryBlock(t, p)
		if i == 0 {
			assert.Contains(t, mem, "This is the first section")
		}
		for j, title := range titles {
			ref := fmt.Sprintf("Section `%s` was already written.", title)
			if j < i {
				assert.Contains(t, mem, ref, "section %d should remember %q", i, title)
				assert.Contains(t, mem, fmt.Sprintf("code_%d = %d", j, j))
			} else {
				assert.NotContains(t, mem, ref, "section %d must not remember %q", i, title)
			}
		}
	}
}

func memoryBlock(t *testing.T, prompt string) string {
	t.Helper()
	_, after, ok := strings.Cut(prompt, "**Cumulative Memory (previously generated sections)**:\n---\n")
	require.True(t, ok)
	block, _, ok := strings.Cut(after, "---\n\n**Current Task**")
	require.True(t, ok)
	return block
}

func TestRun_MalformedPlanFailsBeforeGeneration(t *testing.T) {
	for name, raw := range map[string]string{
		"missing sections": `{"steps": [{"title":"x"}]}`,
		"empty list":       `{"sections": []}`,
		"not json":         "Sure! Here is your plan: imports, then main.",
	} {
		t.Run(name, func(t *testing.T) {
			gen := &scriptedGenerator{
				plan: func() (string, error) { return raw, nil },
				section: func(int, string) (string, error) {
					t.Fatal("no section call expected")
					return "", nil
				},
			}
			var events []Event
			o := New(gen, testConfig(), WithObserver(func(e Event) { events = append(events, e) }))

			res, err := o.Run(context.Background(), generator.Request{Prompt: "x"})
			require.Error(t, err)

			var parseErr *planner.ParseError
			assert.ErrorAs(t, err, &parseErr)
			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, StatePlanning, runErr.Phase)
			assert.Equal(t, -1, runErr.Section)

			require.NotNil(t, res)
			assert.Equal(t, StateFailed, res.State)
			assert.Empty(t, res.Script)
			assert.Nil(t, res.Plan)
			assert.Empty(t, gen.sectionPrompts())
			require.NotEmpty(t, events)
			assert.Equal(t, StateFailed, events[len(events)-1].State)
		})
	}
}

func TestRun_SectionExhaustsRetries(t *testing.T) {
	gen := &scriptedGenerator{
		plan: func() (string, error) { return planJSON("a", "b", "c"), nil },
		section: func(n int, _ string) (string, error) {
			if n >= 2 {
				return "", transient("overloaded")
			}
			return fmt.Sprintf("part_%d()", n), nil
		},
	}
	m := metrics.New()
	o := New(gen, testConfig(), WithMetrics(m))

	res, err := o.Run(context.Background(), generator.Request{Prompt: "three parts"})
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.True(t, llm.IsTransient(err))

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StateGeneratingSection, runErr.Phase)
	assert.Equal(t, 2, runErr.Section)
	assert.Equal(t, "c", runErr.Title)

	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.Script)
	assert.Empty(t, res.Sections)
	assert.NotEmpty(t, res.Error)
	// a, b, then c twice.
	assert.Len(t, gen.sectionPrompts(), 4)

	expected := `
# HELP architect_runs_total Finished runs by outcome (done, failed).
# TYPE architect_runs_total counter
architect_runs_total{outcome="failed"} 1
# HELP architect_provider_retries_total Retries scheduled after a transient provider failure.
# TYPE architect_provider_retries_total counter
architect_provider_retries_total{phase="section"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"architect_runs_total", "architect_provider_retries_total"))
}

func TestRun_TransientErrorRecovers(t *testing.T) {
	failures := 1
	gen := &scriptedGenerator{
		plan: func() (string, error) {
			if failures > 0 {
				failures--
				return "", transient("rate limited")
			}
			return planJSON("only"), nil
		},
		section: func(int, string) (string, error) { return "x = 1", nil },
	}
	var retries []RetryInfo
	logger, logs := logtest.New(zapcore.DebugLevel)
	o := New(gen, testConfig(), WithLogger(logger), WithObserver(func(e Event) {
		if e.Retry != nil {
			retries = append(retries, *e.Retry)
		}
	}))

	res, err := o.Run(context.Background(), generator.Request{Prompt: "tiny"})
	require.NoError(t, err)
	assert.Equal(t, "x = 1", res.Script)
	require.Len(t, retries, 1)
	assert.Equal(t, 1, retries[0].Attempt)
	warned := logs.FilterMessage("provider call failed, retrying").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "plan", warned[0].ContextMap()["phase"])
	assert.Equal(t, 1, logs.FilterMessage("run completed").Len())
	logtest.AssertLogged(t, logs, zapcore.WarnLevel, "provider call failed")

	require.NotEmpty(t, res.Report.Stages)
	assert.Equal(t, "planning", res.Report.Stages[0].Name)
	assert.Equal(t, 2, res.Report.Stages[0].Attempts)
}

func TestRun_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	gen := &scriptedGenerator{
		plan: func() (string, error) {
			calls++
			return "", permanent("invalid api key")
		},
	}
	o := New(gen, testConfig())

	res, err := o.Run(context.Background(), generator.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, llm.IsTransient(err))
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, llm.Permanent, pe.Kind)
	assert.Equal(t, StateFailed, res.State)
}

func TestRun_EmptyPrompt(t *testing.T) {
	gen := &scriptedGenerator{}
	o := New(gen, testConfig())

	res, err := o.Run(context.Background(), generator.Request{Prompt: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Nil(t, res)
	assert.Empty(t, gen.prompts)
}

func TestRun_ScriptIsOrderedConcatenation(t *testing.T) {
	titles := []string{"imports", "helpers", "main"}
	bodies := []string{"```python\nimport sys\n```", "def helper():\n    return 1", "```\nhelper()\n```"}
	gen := &scriptedGenerator{
		plan:    func() (string, error) { return planJSON(titles...), nil },
		section: func(n int, _ string) (string, error) { return bodies[n], nil },
	}
	cfg := testConfig()
	cfg.SectionHeaders = true
	o := New(gen, cfg)

	res, err := o.Run(context.Background(), generator.Request{Prompt: "p"})
	require.NoError(t, err)

	want := "# --- SECTION: IMPORTS ---\nimport sys\n\n" +
		"# --- SECTION: HELPERS ---\ndef helper():\n    return 1\n\n" +
		"# --- SECTION: MAIN ---\nhelper()\n"
	assert.Equal(t, want, res.Script)
	for i, s := range res.Sections {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, titles[i], s.Title)
		assert.Equal(t, 1, s.Attempts)
	}
}

func TestRun_ObserverSeesStateMachine(t *testing.T) {
	gen := &scriptedGenerator{
		plan:    func() (string, error) { return planJSON("a", "b"), nil },
		section: func(int, string) (string, error) { return "pass", nil },
	}
	var states []State
	o := New(gen, testConfig(), WithObserver(func(e Event) {
		if e.Retry == nil {
			states = append(states, e.State)
		}
	}))

	_, err := o.Run(context.Background(), generator.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, []State{
		StatePlanning,
		StateGeneratingSection,
		StateGeneratingSection,
		StateAssembling,
		StateDone,
	}, states)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{
		plan: func() (string, error) { return planJSON("a", "b"), nil },
		section: func(int, string) (string, error) {
			cancel()
			return "", context.Canceled
		},
	}
	o := New(gen, testConfig())

	res, err := o.Run(ctx, generator.Request{Prompt: "p"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, gen.sectionPrompts(), 1)
}

func TestPlan_OnlyPlans(t *testing.T) {
	gen := &scriptedGenerator{
		plan: func() (string, error) { return planJSON("a", "b"), nil },
	}
	o := New(gen, testConfig())

	plan, err := o.Plan(context.Background(), generator.Request{Prompt: "p", Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, plan.Titles())
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "SINGLE-FILE Go program")
}

func TestRun_MaxSections(t *testing.T) {
	gen := &scriptedGenerator{
		plan: func() (string, error) { return planJSON("a", "b", "c"), nil },
	}
	cfg := testConfig()
	cfg.MaxSections = 2
	o := New(gen, cfg)

	_, err := o.Run(context.Background(), generator.Request{Prompt: "p"})
	var parseErr *planner.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Empty(t, gen.sectionPrompts())
}

func TestState_Text(t *testing.T) {
	for s := StateIdle; s <= StateFailed; s++ {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateGeneratingSection.Terminal())
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "  ● Step 2/3: generating `helpers`...",
		FormatProgress(Event{State: StateGeneratingSection, Section: 1, Total: 3, Title: "helpers"}))
	assert.Contains(t, FormatProgress(Event{State: StatePlanning}), "Planning")
	assert.Contains(t, FormatProgress(Event{State: StateFailed, Section: -1, Err: errors.New("boom")}), "planning failed: boom")
	assert.Contains(t, FormatProgress(Event{Retry: &RetryInfo{Attempt: 1, Err: errors.New("503")}}), "attempt 1 failed")
}
