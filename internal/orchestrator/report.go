package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type ReportSignal struct {
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type StageMetric struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
	Attempts   int    `json:"attempts,omitempty"`
	PromptLen  int    `json:"prompt_chars,omitempty"`
	OutputLen  int    `json:"output_chars,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ReportSummary struct {
	StageCount        int            `json:"stage_count"`
	FailedStages      int            `json:"failed_stages"`
	TotalAttempts     int            `json:"total_attempts"`
	SignalsBySeverity map[string]int `json:"signals_by_severity"`
}

// RunReport records per-stage timings and notable signals for one run.
type RunReport struct {
	Version     string         `json:"version"`
	RunID       string         `json:"run_id"`
	GeneratedAt string         `json:"generated_at"`
	Stages      []StageMetric  `json:"stages"`
	Signals     []ReportSignal `json:"signals,omitempty"`
	Summary     ReportSummary  `json:"summary"`
}

type stageHandle struct {
	name    string
	started time.Time
}

func NewRunReport(runID string) *RunReport {
	return &RunReport{
		Version:     "v1",
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Stages:      []StageMetric{},
		Summary: ReportSummary{
			SignalsBySeverity: map[string]int{},
		},
	}
}

func (r *RunReport) beginStage(name string) stageHandle {
	return stageHandle{name: name, started: time.Now()}
}

func (r *RunReport) endStage(h stageHandle, m StageMetric, err error) {
	finished := time.Now()
	m.Name = h.name
	m.StartedAt = h.started.UTC().Format(time.RFC3339Nano)
	m.FinishedAt = finished.UTC().Format(time.RFC3339Nano)
	m.DurationMS = finished.Sub(h.started).Milliseconds()
	m.Status = "ok"
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
	}
	r.Stages = append(r.Stages, m)
}

func (r *RunReport) addSignal(code, stage, severity, message string) {
	r.Signals = append(r.Signals, ReportSignal{
		Code:     code,
		Stage:    stage,
		Severity: severity,
		Message:  message,
	})
}

func (r *RunReport) finalize() {
	s := ReportSummary{
		StageCount:        len(r.Stages),
		SignalsBySeverity: map[string]int{},
	}
	for _, st := range r.Stages {
		if st.Status == "error" {
			s.FailedStages++
		}
		s.TotalAttempts += st.Attempts
	}
	for _, sig := range r.Signals {
		s.SignalsBySeverity[sig.Severity]++
	}
	r.Summary = s
}

// Save writes the report as indented JSON, creating parent directories.
func (r *RunReport) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
