package domain

import "strings"

// LanguageConfig binds a submission language to the execution backend.
type LanguageConfig struct {
	Name     string
	Runtime  string
	Version  string
	FileName string
}

// LanguageTable is the static language -> backend mapping, keyed by the
// lower-cased submission language.
type LanguageTable map[string]LanguageConfig

// DefaultLanguages returns the runtimes the judge has always supported.
func DefaultLanguages() LanguageTable {
	return LanguageTable{
		"javascript": {Name: "javascript", Runtime: "javascript", Version: "18.15.0", FileName: "main.js"},
		"python":     {Name: "python", Runtime: "python", Version: "3.10.0", FileName: "main.py"},
		"java":       {Name: "java", Runtime: "java", Version: "15.0.2", FileName: "Main.java"},
		"cpp":        {Name: "cpp", Runtime: "c++", Version: "10.2.0", FileName: "source.cpp"},
	}
}

// Resolution is the result of a language lookup. When Supported is false,
// Name holds the language that was asked for and Config is empty.
type Resolution struct {
	Name      string
	Config    LanguageConfig
	Supported bool
}

// Resolve looks the language up case-insensitively. There is no fallback.
func (t LanguageTable) Resolve(language string) Resolution {
	key := strings.ToLower(strings.TrimSpace(language))
	cfg, ok := t[key]
	if !ok {
		return Resolution{Name: language}
	}
	return Resolution{Name: key, Config: cfg, Supported: true}
}
