package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Section is one planned unit of code generation.
type Section struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Instruction string `json:"instruction,omitempty"`
}

// Plan is the ordered, non-empty list of sections produced by the planning
// call. Order is execution order.
type Plan struct {
	Sections []Section `json:"sections"`
}

func (p Plan) Len() int { return len(p.Sections) }

func (p Plan) Titles() []string {
	out := make([]string, len(p.Sections))
	for i, s := range p.Sections {
		out[i] = s.Title
	}
	return out
}

// Validate checks the structural invariants a Plan must hold: the shape
// described by plan.schema.json, and indexes matching positions.
func (p Plan) Validate() error {
	if len(p.Sections) == 0 {
		return errors.New("plan has no sections")
	}
	if err := validateSchema(p); err != nil {
		return err
	}
	for i, s := range p.Sections {
		if s.Index != i {
			return fmt.Errorf("section %q has index %d, expected %d", s.Title, s.Index, i)
		}
	}
	return nil
}

// ParseError reports a planning response that could not be turned into a
// Plan. Raw holds the response for debugging.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid plan: %s: %v", e.Reason, e.Err)
	}
	return "invalid plan: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// sectionKeys lists accepted root keys in lookup order.
var sectionKeys = []string{"sections", "plan"}

// Parser decodes planning responses.
type Parser struct {
	// MaxSections rejects plans longer than this. Zero means no limit.
	MaxSections int
}

// ParsePlan decodes raw with no section limit.
func ParsePlan(raw string) (Plan, error) {
	return Parser{}.Parse(raw)
}

// Parse decodes a planning response. Markdown fences and prose around the
// outermost JSON object are ignored. No partial plans are returned.
func (p Parser) Parse(raw string) (Plan, error) {
	if strings.IndexByte(raw, '{') < 0 {
		return Plan{}, &ParseError{Reason: "response contains no JSON object", Raw: raw}
	}
	root, err := decodeObject(raw)
	if err != nil {
		return Plan{}, &ParseError{Reason: "response is not a JSON object", Raw: raw, Err: err}
	}

	var list json.RawMessage
	for _, key := range sectionKeys {
		if v, ok := root[key]; ok {
			list = v
			break
		}
	}
	if list == nil {
		return Plan{}, &ParseError{Reason: `missing "sections" field`, Raw: raw}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return Plan{}, &ParseError{Reason: "sections field is not a list", Raw: raw, Err: err}
	}
	if len(items) == 0 {
		return Plan{}, &ParseError{Reason: "sections list is empty", Raw: raw}
	}
	if p.MaxSections > 0 && len(items) > p.MaxSections {
		return Plan{}, &ParseError{Reason: fmt.Sprintf("plan has %d sections, limit is %d", len(items), p.MaxSections), Raw: raw}
	}

	plan := Plan{Sections: make([]Section, 0, len(items))}
	for i, item := range items {
		sec, err := decodeSection(item)
		if err != nil {
			return Plan{}, &ParseError{Reason: fmt.Sprintf("section %d is malformed", i+1), Raw: raw, Err: err}
		}
		sec.Index = i
		if sec.Title == "" {
			sec.Title = fmt.Sprintf("Section %d", i+1)
		}
		plan.Sections = append(plan.Sections, sec)
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, &ParseError{Reason: "plan failed validation", Raw: raw, Err: err}
	}
	return plan, nil
}

type rawSection struct {
	Title       string `json:"title"`
	SectionName string `json:"section_name"`
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
	Description string `json:"description"`
}

func decodeSection(item json.RawMessage) (Section, error) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var title string
		if err := json.Unmarshal(trimmed, &title); err != nil {
			return Section{}, err
		}
		return Section{Title: strings.TrimSpace(title)}, nil
	}

	var rs rawSection
	if err := json.Unmarshal(trimmed, &rs); err != nil {
		return Section{}, err
	}
	return Section{
		Title:       strings.TrimSpace(firstNonEmpty(rs.Title, rs.SectionName, rs.Name)),
		Instruction: strings.TrimSpace(firstNonEmpty(rs.Instruction, rs.Description)),
	}, nil
}

// decodeObject decodes one JSON object starting at some '{' in raw and
// ignores the text after it, so braces in surrounding prose are skipped.
// The first object holding a section list wins; otherwise the first object
// that decodes at all.
func decodeObject(raw string) (map[string]json.RawMessage, error) {
	var first map[string]json.RawMessage
	var firstErr error
	for i := strings.IndexByte(raw, '{'); i >= 0; {
		var root map[string]json.RawMessage
		err := json.NewDecoder(strings.NewReader(raw[i:])).Decode(&root)
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
		case hasSectionKey(root):
			return root, nil
		case first == nil:
			first = root
		}

		next := strings.IndexByte(raw[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	if first != nil {
		return first, nil
	}
	return nil, firstErr
}

func hasSectionKey(root map[string]json.RawMessage) bool {
	for _, key := range sectionKeys {
		if _, ok := root[key]; ok {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
