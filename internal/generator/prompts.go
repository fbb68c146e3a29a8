package generator

import (
	"fmt"
	"strings"

	"codearchitect/internal/memory"
	"codearchitect/internal/planner"
)

// Request is what the user asked for.
type Request struct {
	Prompt   string
	Language string
}

// PromptBuilder constructs the planning and per-section prompts. It holds
// no state beyond its options; every method is a pure function of its
// arguments.
type PromptBuilder struct {
	Memory memory.Options
}

const firstSectionNote = "This is the first section of the script."

// BuildPlanningPrompt wraps the user's request in a strict instruction to
// return a JSON plan and nothing else.
func (pb *PromptBuilder) BuildPlanningPrompt(req Request) string {
	lang := LookupLanguage(req.Language)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: Software Architect. Task: Break a request for a SINGLE-FILE %s program into an ordered sequence of code sections.\n", lang.Name)
	sb.WriteString("\nYour answer MUST be a JSON object with a single root key named \"sections\".\n")
	sb.WriteString("\"sections\" is a list of objects, one per logical section of the file (e.g. imports, constants and setup, helper functions, main types, entry point).\n")
	sb.WriteString("Each object has exactly two keys:\n")
	sb.WriteString("- \"title\": a short name for the section.\n")
	sb.WriteString("- \"instruction\": concrete, step-by-step directions for what code THIS section must contain.\n")
	sb.WriteString("\n**RULES**:\n")
	sb.WriteString("1. Order the sections the way they must appear in the file: imports first, entry point last.\n")
	sb.WriteString("2. Output ONLY the raw JSON object. No prose, no markdown fences.\n")
	sb.WriteString("\n---\n")
	sb.WriteString(strings.TrimSpace(req.Prompt))
	sb.WriteString("\n---\n")
	return sb.String()
}

// BuildSectionPrompt builds the generation prompt for plan.Sections[index].
// It carries the original request, the whole plan, the rendered memory of
// earlier sections and the current instruction.
func (pb *PromptBuilder) BuildSectionPrompt(req Request, plan planner.Plan, mem memory.Memory, index int) string {
	lang := LookupLanguage(req.Language)
	current := plan.Sections[index]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: Expert %s Programmer. Task: Write one section of a larger single-file program.\n", lang.Name)
	sb.WriteString("\n**RULES**:\n")
	sb.WriteString("1. Output ONLY the raw code for the requested section.\n")
	sb.WriteString("2. No explanations and no markdown fences.\n")
	sb.WriteString("3. Stay consistent with the previously written sections listed under Cumulative Memory: reuse their names, imports and signatures.\n")
	sb.WriteString("4. The section must be complete. No placeholders.\n")

	sb.WriteString("\n**Original Request**:\n---\n")
	sb.WriteString(strings.TrimSpace(req.Prompt))
	sb.WriteString("\n---\n")

	sb.WriteString("\n**Plan**:\n")
	for _, s := range plan.Sections {
		marker := " "
		if s.Index == index {
			marker = ">"
		}
		fmt.Fprintf(&sb, "%s %d. %s", marker, s.Index+1, s.Title)
		if s.Instruction != "" {
			fmt.Fprintf(&sb, ": %s", s.Instruction)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n**Cumulative Memory (previously generated sections)**:\n---\n")
	if mem.IsEmpty() {
		sb.WriteString(firstSectionNote + "\n")
	} else {
		sb.WriteString(mem.Render(pb.Memory))
	}
	sb.WriteString("---\n")

	fmt.Fprintf(&sb, "\n**Current Task**:\nWrite the complete code for section %d, `%s`.\n", index+1, current.Title)
	if current.Instruction != "" {
		sb.WriteString("**Instructions for this section**:\n")
		sb.WriteString(current.Instruction)
		sb.WriteString("\n")
	}
	return sb.String()
}
