package generator

import (
	"fmt"
	"strings"

	"codearchitect/internal/llm"
	"codearchitect/internal/planner"
)

// CleanCode strips a surrounding markdown fence from a section response.
func CleanCode(text string) string {
	return llm.StripFences(text)
}

type AssembleOptions struct {
	Language string
	// Headers prefixes every section with a comment naming it.
	Headers bool
}

// SectionHeader is the comment line placed before a section when headers
// are enabled.
func SectionHeader(title string, lang Language) string {
	return fmt.Sprintf("%s --- SECTION: %s ---", lang.Comment, strings.ToUpper(title))
}

// Assemble joins generated sections in plan order. texts[i] belongs to
// plan.Sections[i].
func Assemble(plan planner.Plan, texts []string, opts AssembleOptions) (string, error) {
	if len(texts) != plan.Len() {
		return "", fmt.Errorf("assemble: have %d sections for a plan of %d", len(texts), plan.Len())
	}
	lang := LookupLanguage(opts.Language)
	blocks := make([]string, len(texts))
	for i, text := range texts {
		if opts.Headers {
			blocks[i] = SectionHeader(plan.Sections[i].Title, lang) + "\n" + text + "\n"
			continue
		}
		blocks[i] = text
	}
	return strings.Join(blocks, "\n"), nil
}
