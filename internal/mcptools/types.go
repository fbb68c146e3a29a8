package mcptools

// PlanScriptInput is the input for the plan_script MCP tool.
type PlanScriptInput struct {
	Prompt   string `json:"prompt" jsonschema:"description of the single-file program to plan"`
	Language string `json:"language,omitempty" jsonschema:"target language (default: python)"`
}

// PlanScriptOutput is the result of the plan_script MCP tool.
type PlanScriptOutput struct {
	Sections []SectionInfo `json:"sections"`
}

type SectionInfo struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Instruction string `json:"instruction,omitempty"`
}

// GenerateScriptInput is the input for the generate_script MCP tool.
type GenerateScriptInput struct {
	Prompt   string `json:"prompt" jsonschema:"description of the single-file program to write"`
	Language string `json:"language,omitempty" jsonschema:"target language (default: python)"`
}

// GenerateScriptOutput is the result of the generate_script MCP tool.
type GenerateScriptOutput struct {
	RunID    string   `json:"run_id"`
	Status   string   `json:"status"` // "done" or "failed"
	Script   string   `json:"script,omitempty"`
	Sections []string `json:"sections"`
	Message  string   `json:"message,omitempty"`
}
