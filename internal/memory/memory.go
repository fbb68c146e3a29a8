// Package memory holds the running record of sections already generated in
// a run. A Memory value is immutable: Append returns a new value and never
// touches the receiver, so earlier values can be kept and compared.
package memory

import (
	"fmt"
	"strings"
)

type Verbosity string

const (
	VerbosityTitles  Verbosity = "titles"
	VerbositySummary Verbosity = "summary"
	VerbosityFull    Verbosity = "full"
)

const DefaultExcerptChars = 300

// ParseVerbosity accepts the config spelling of a verbosity level. An empty
// string selects VerbositySummary.
func ParseVerbosity(s string) (Verbosity, error) {
	switch v := Verbosity(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VerbositySummary, nil
	case VerbosityTitles, VerbositySummary, VerbosityFull:
		return v, nil
	default:
		return "", fmt.Errorf("unknown memory verbosity %q (want titles, summary or full)", s)
	}
}

// Options controls how a Memory is rendered into prompt text.
type Options struct {
	Verbosity Verbosity

	// ExcerptChars bounds the code excerpt per section in summary mode.
	ExcerptChars int

	// MaxChars bounds the rendered text. When exceeded, the oldest entries
	// are rendered as bare references first. Every entry keeps at least its
	// title, so the cap can be overshot by long plans. Zero disables it.
	MaxChars int
}

type Entry struct {
	Title string
	Text  string
}

type Memory struct {
	entries []Entry
}

// Append returns m with a new entry for the section at the end.
func Append(m Memory, title, text string) Memory {
	next := make([]Entry, len(m.entries), len(m.entries)+1)
	copy(next, m.entries)
	next = append(next, Entry{Title: title, Text: text})
	return Memory{entries: next}
}

func (m Memory) Append(title, text string) Memory { return Append(m, title, text) }

func (m Memory) Len() int { return len(m.entries) }

func (m Memory) IsEmpty() bool { return len(m.entries) == 0 }

func (m Memory) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m Memory) Titles() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Title
	}
	return out
}

// Render produces the prompt text for m. Entries appear in the order they
// were appended.
func (m Memory) Render(opts Options) string {
	if len(m.entries) == 0 {
		return ""
	}
	verbosity := opts.Verbosity
	if verbosity == "" {
		verbosity = VerbositySummary
	}
	excerpt := opts.ExcerptChars
	if excerpt <= 0 {
		excerpt = DefaultExcerptChars
	}

	blocks := make([]string, len(m.entries))
	total := 0
	for i, e := range m.entries {
		blocks[i] = renderEntry(e, verbosity, excerpt)
		total += len(blocks[i])
	}

	if opts.MaxChars > 0 && verbosity != VerbosityTitles {
		for i := 0; i < len(m.entries) && total > opts.MaxChars; i++ {
			short := renderEntry(m.entries[i], VerbosityTitles, 0)
			total -= len(blocks[i]) - len(short)
			blocks[i] = short
		}
	}
	return strings.Join(blocks, "")
}

func renderEntry(e Entry, v Verbosity, excerpt int) string {
	head := fmt.Sprintf("Section `%s` was already written.\n", e.Title)
	switch v {
	case VerbosityTitles:
		return head
	case VerbosityFull:
		return head + "--- Code ---\n" + strings.TrimSpace(e.Text) + "\n\n"
	default:
		body := strings.TrimSpace(e.Text)
		if r := []rune(body); len(r) > excerpt {
			body = string(r[:excerpt]) + "..."
		}
		return head + "--- Summary ---\n" + body + "\n\n"
	}
}
