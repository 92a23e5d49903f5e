// Package query analyzes user input: language detection, QUICK/FULL
// routing, URL extraction, and clarification of compound or ambiguous
// queries.
package query

import (
	"regexp"
	"strings"
)

// languageIndicators holds per-language word sets used for detection. A
// language qualifies only when at least two distinct indicator words appear
// in the text; otherwise detection falls back to English.
var languageIndicators = map[string][]string{
	"vi": {
		"tôi", "bạn", "của", "và", "các", "những", "cho", "với", "nghiên",
		"cứu", "về", "một", "vài", "chào", "không", "là", "có", "thể",
		"tìm", "giúp", "bài", "báo", "khoa", "học", "chi", "tiết", "nhanh",
	},
	"es": {
		"el", "la", "los", "las", "de", "que", "por", "para", "con",
		"sobre", "investigación", "artículos", "buscar", "hola", "quiero",
		"necesito", "una", "unos", "estudios", "rápido", "detallado",
	},
	"fr": {
		"le", "la", "les", "des", "de", "que", "pour", "avec", "sur",
		"recherche", "articles", "bonjour", "je", "veux", "besoin",
		"une", "études", "rapide", "détaillé", "papiers",
	},
	"de": {
		"der", "die", "das", "und", "für", "mit", "über", "forschung",
		"artikel", "hallo", "ich", "möchte", "brauche", "eine", "studien",
		"schnell", "ausführlich", "papiere", "suche",
	},
}

var wordSplitter = regexp.MustCompile(`[\s.,;:!?()\[\]{}"']+`)

// DetectLanguage returns an ISO 639-1 code for the message's language.
// English is the fallback.
func DetectLanguage(text string) string {
	words := map[string]bool{}
	for _, w := range wordSplitter.Split(strings.ToLower(text), -1) {
		if w != "" {
			words[w] = true
		}
	}

	best, bestCount := "en", 0
	for lang, indicators := range languageIndicators {
		count := 0
		for _, ind := range indicators {
			if words[ind] {
				count++
			}
		}
		if count >= 2 && count > bestCount {
			best, bestCount = lang, count
		}
	}
	return best
}

// LanguageName maps a detected code to the English name used in LLM
// prompts.
func LanguageName(code string) string {
	switch code {
	case "vi":
		return "Vietnamese"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	default:
		return "English"
	}
}
