package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codearchitect/internal/orchestrator"
	"codearchitect/internal/planner"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			prompt TEXT,
			provider TEXT,
			model TEXT,
			language TEXT,
			state TEXT,
			error TEXT,
			section_count INTEGER,
			plan JSON,
			sections JSON,
			script TEXT,
			report JSON,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, res *orchestrator.Result) error {
	if res == nil || res.ID == "" {
		return errors.New("run has no id")
	}

	plan, err := marshalNullable(res.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	sections, err := marshalNullable(res.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	report, err := marshalNullable(res.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	count := 0
	if res.Plan != nil {
		count = res.Plan.Len()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, prompt, provider, model, language, state, error, section_count, plan, sections, script, report, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prompt=excluded.prompt,
			provider=excluded.provider,
			model=excluded.model,
			language=excluded.language,
			state=excluded.state,
			error=excluded.error,
			section_count=excluded.section_count,
			plan=excluded.plan,
			sections=excluded.sections,
			script=excluded.script,
			report=excluded.report,
			started_at=excluded.started_at,
			finished_at=excluded.finished_at
	`, res.ID, res.Request.Prompt, res.Provider, res.Model, res.Request.Language, res.State.String(), res.Error,
		count, plan, sections, res.Script, report, formatTime(res.StartedAt), formatTime(res.FinishedAt))

	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*orchestrator.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt, provider, model, language, state, error, plan, sections, script, report, started_at, finished_at
		FROM runs WHERE id = ?`, id)

	var (
		res                       orchestrator.Result
		state                     string
		plan, sections, report    sql.NullString
		startedAt, finishedAt     string
		errText, script, language sql.NullString
	)
	err := row.Scan(&res.ID, &res.Request.Prompt, &res.Provider, &res.Model, &language, &state, &errText,
		&plan, &sections, &script, &report, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res.Request.Language = language.String
	res.State = orchestrator.ParseState(state)
	res.Error = errText.String
	res.Script = script.String
	res.StartedAt = parseTime(startedAt)
	res.FinishedAt = parseTime(finishedAt)

	if plan.Valid && plan.String != "" {
		var p planner.Plan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return nil, fmt.Errorf("decode plan of run %s: %w", id, err)
		}
		res.Plan = &p
	}
	if sections.Valid && sections.String != "" {
		if err := json.Unmarshal([]byte(sections.String), &res.Sections); err != nil {
			return nil, fmt.Errorf("decode sections of run %s: %w", id, err)
		}
	}
	if report.Valid && report.String != "" {
		var r orchestrator.RunReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("decode report of run %s: %w", id, err)
		}
		res.Report = &r
	}
	return &res, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT id, prompt, provider, model, language, state, error, section_count, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r                     RunSummary
			state                 string
			language, errText     sql.NullString
			count                 sql.NullInt64
			startedAt, finishedAt string
		)
		if err := rows.Scan(&r.ID, &r.Prompt, &r.Provider, &r.Model, &language, &state, &errText, &count, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.Language = language.String
		r.State = orchestrator.ParseState(state)
		r.Error = errText.String
		r.Sections = int(count.Int64)
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// marshalNullable encodes v as JSON, storing NULL for nil pointers and
// empty slices.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *planner.Plan:
		if t == nil {
			return nil, nil
		}
	case *orchestrator.RunReport:
		if t == nil {
			return nil, nil
		}
	case []orchestrator.GeneratedSection:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// timeLayout has a fixed-width fraction so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
