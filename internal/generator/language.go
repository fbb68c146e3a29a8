package generator

import "strings"

// Language describes how generated code for a target language is labelled
// and commented.
type Language struct {
	Name      string
	Comment   string
	Extension string
}

var languages = map[string]Language{
	"python":     {Name: "Python", Comment: "#", Extension: "py"},
	"go":         {Name: "Go", Comment: "//", Extension: "go"},
	"javascript": {Name: "JavaScript", Comment: "//", Extension: "js"},
	"typescript": {Name: "TypeScript", Comment: "//", Extension: "ts"},
	"rust":       {Name: "Rust", Comment: "//", Extension: "rs"},
	"bash":       {Name: "Bash", Comment: "#", Extension: "sh"},
	"ruby":       {Name: "Ruby", Comment: "#", Extension: "rb"},
}

var languageAliases = map[string]string{
	"py":     "python",
	"golang": "go",
	"js":     "javascript",
	"node":   "javascript",
	"ts":     "typescript",
	"sh":     "bash",
	"shell":  "bash",
	"rb":     "ruby",
}

// LookupLanguage resolves a config or flag value. Unknown names are kept as
// given with '#' comments and a .txt extension.
func LookupLanguage(name string) Language {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "python"
	}
	if alias, ok := languageAliases[key]; ok {
		key = alias
	}
	if lang, ok := languages[key]; ok {
		return lang
	}
	return Language{Name: strings.TrimSpace(name), Comment: "#", Extension: "txt"}
}

// FileName is the download name for a script in this language.
func (l Language) FileName() string {
	return "generated_app." + l.Extension
}
