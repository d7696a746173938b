package execution

import (
	"fmt"
	"strings"
)

// Canonical language names.
const (
	LanguageCPP        = "c++"
	LanguageJava       = "java"
	LanguageJavaScript = "javascript"
)

var languageAliases = map[string]string{
	"cpp": LanguageCPP,
}

// DefaultLanguageIDs is the Judge0 CE language table the service ships with.
func DefaultLanguageIDs() map[string]int {
	return map[string]int{
		LanguageCPP:        54,
		LanguageJava:       62,
		LanguageJavaScript: 63,
	}
}

// NormalizeLanguage trims, lowercases and resolves aliases.
func NormalizeLanguage(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := languageAliases[name]; ok {
		return canonical
	}
	return name
}

type languageTable map[string]int

func newLanguageTable(overrides map[string]int) languageTable {
	table := languageTable(DefaultLanguageIDs())
	for name, id := range overrides {
		if id > 0 {
			table[NormalizeLanguage(name)] = id
		}
	}
	return table
}

func (t languageTable) lookup(language string) (int, error) {
	id, ok := t[NormalizeLanguage(language)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	return id, nil
}
