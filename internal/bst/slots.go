package bst

import (
	"regexp"
	"strings"
)

// maxHistoryScanTurns bounds how far back the history resolvers look.
const maxHistoryScanTurns = 8

// Turn is one conversation message visible to the resolvers.
type Turn struct {
	Role string
	Text string
}

// extensionLanguages is the global extension-to-language table for
// file_extension_inference.
var extensionLanguages = map[string]string{
	".py": "python", ".js": "javascript", ".ts": "typescript",
	".go": "go", ".rs": "rust", ".rb": "ruby", ".java": "java",
	".c": "c", ".cpp": "c++", ".cs": "c#", ".php": "php",
	".sh": "bash", ".sql": "sql", ".html": "html", ".css": "css",
	".yaml": "yaml", ".yml": "yaml", ".json": "json", ".md": "markdown",
}

var (
	backtickFileRe = regexp.MustCompile("`([\\w./-]+\\.[\\w]{1,6})`")
	quotedFileRe   = regexp.MustCompile(`["']([\w./-]+\.[\w]{1,6})["']`)
	bareFileRe     = regexp.MustCompile(`\b([\w/.-]+\.[A-Za-z]{1,6})\b`)
	pathRe         = regexp.MustCompile(`(?:^|\s)((?:/|\./|~/)[\w./-]+)`)
	quotedEntityRe = regexp.MustCompile("[\"'`]([^\"'`]{1,80})[\"'`]")
	extensionRe    = regexp.MustCompile(`(\.[A-Za-z]{1,6})$`)
)

// resolveSlot runs the slot's resolver list over the message and recent
// history. First non-empty answer wins; the default applies last.
func resolveSlot(def SlotDef, message string, history []Turn) string {
	recent := recentTurns(history, maxHistoryScanTurns)
	for _, resolver := range def.Resolvers {
		value := ""
		switch resolver {
		case ResolverKeywordMap:
			value = resolveKeywordMap(def.KeywordMap, message)
		case ResolverFileExtension:
			value = resolveFileExtension(message, recent)
		case ResolverLastMentionedFile:
			value = resolveLastFile(message, recent)
		case ResolverLastMentionedPath:
			value = resolveLastPath(message, recent)
		case ResolverLastMentionedEntity:
			value = resolveLastEntity(message, recent)
		case ResolverHistoryScan:
			value = resolveHistoryScan(def, message, recent)
		case ResolverContextInference:
			value = resolveContextInference(def, message)
		}
		if value != "" {
			return value
		}
	}
	return def.Default
}

func recentTurns(history []Turn, n int) []Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func resolveKeywordMap(keywordMap map[string]string, message string) string {
	lower := strings.ToLower(message)
	for keyword, value := range keywordMap {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return value
		}
	}
	return ""
}

func resolveFileExtension(message string, history []Turn) string {
	file := resolveLastFile(message, history)
	if file == "" {
		return ""
	}
	match := extensionRe.FindStringSubmatch(file)
	if match == nil {
		return ""
	}
	return extensionLanguages[strings.ToLower(match[1])]
}

// resolveLastFile finds the most recent file reference: the current message
// first, then history newest-to-oldest. Backticked and quoted names beat
// bare ones within a text.
func resolveLastFile(message string, history []Turn) string {
	if file := fileIn(message); file != "" {
		return file
	}
	for i := len(history) - 1; i >= 0; i-- {
		if file := fileIn(history[i].Text); file != "" {
			return file
		}
	}
	return ""
}

func fileIn(text string) string {
	for _, re := range []*regexp.Regexp{backtickFileRe, quotedFileRe, bareFileRe} {
		if match := re.FindStringSubmatch(text); match != nil {
			return match[1]
		}
	}
	return ""
}

func resolveLastPath(message string, history []Turn) string {
	if match := pathRe.FindStringSubmatch(message); match != nil {
		return match[1]
	}
	for i := len(history) - 1; i >= 0; i-- {
		if match := pathRe.FindStringSubmatch(history[i].Text); match != nil {
			return match[1]
		}
	}
	return ""
}

func resolveLastEntity(message string, history []Turn) string {
	if match := quotedEntityRe.FindStringSubmatch(message); match != nil {
		return strings.TrimSpace(match[1])
	}
	for i := len(history) - 1; i >= 0; i-- {
		if match := quotedEntityRe.FindStringSubmatch(history[i].Text); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

// resolveHistoryScan looks for a history line mentioning any of the slot's
// keyword-map keys, falling back to the keyword values themselves.
func resolveHistoryScan(def SlotDef, message string, history []Turn) string {
	texts := make([]string, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		texts = append(texts, history[i].Text)
	}
	for _, text := range texts {
		if value := resolveKeywordMap(def.KeywordMap, text); value != "" {
			return value
		}
	}
	return ""
}

var booleanHints = map[string]string{
	"yes": "true", "enable": "true", "enabled": "true", "on": "true",
	"no": "false", "disable": "false", "disabled": "false", "off": "false",
}

// resolveContextInference checks for the slot's known values or generic
// boolean and language hints mentioned inline.
func resolveContextInference(def SlotDef, message string) string {
	lower := strings.ToLower(message)

	// Enum-style: any mapped value named directly.
	for _, value := range def.KeywordMap {
		if value != "" && strings.Contains(lower, strings.ToLower(value)) {
			return value
		}
	}

	for hint, value := range booleanHints {
		if containsWord(lower, hint) {
			return value
		}
	}

	for _, language := range extensionLanguages {
		if containsWord(lower, language) {
			return language
		}
	}
	return ""
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
