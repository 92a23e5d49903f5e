package dialogue

import (
	"strings"

	"deepscholar/internal/types"
)

var addVerbs = []string{"add", "thêm", "añadir", "agregar", "ajouter", "hinzufügen"}
var removeVerbs = []string{"remove", "delete", "drop", "xóa", "bỏ", "quitar", "supprimer", "entfernen"}

// applyEdit parses an edit instruction against the pending plan. "add X"
// appends X as a query to the first research step; "remove X" drops
// matching queries from every step. Returns false when no edit was
// recognized.
func applyEdit(plan *types.ResearchPlan, instruction string) bool {
	trimmed := strings.TrimSpace(instruction)
	lower := strings.ToLower(trimmed)

	for _, verb := range addVerbs {
		if arg, ok := argAfter(lower, trimmed, verb); ok {
			return addQuery(plan, arg)
		}
	}
	for _, verb := range removeVerbs {
		if arg, ok := argAfter(lower, trimmed, verb); ok {
			return removeQueries(plan, arg)
		}
	}
	return false
}

// argAfter extracts the text following the verb, preserving original
// casing.
func argAfter(lower, original, verb string) (string, bool) {
	idx := strings.Index(lower, verb+" ")
	if idx < 0 {
		return "", false
	}
	// The verb must start a word.
	if idx > 0 && lower[idx-1] != ' ' {
		return "", false
	}
	arg := strings.TrimSpace(original[idx+len(verb):])
	arg = strings.Trim(arg, "\"'")
	return arg, arg != ""
}

func addQuery(plan *types.ResearchPlan, query string) bool {
	for i := range plan.Steps {
		if plan.Steps[i].Action == types.ActionResearch {
			for _, existing := range plan.Steps[i].Queries {
				if strings.EqualFold(existing, query) {
					return true
				}
			}
			plan.Steps[i].Queries = append(plan.Steps[i].Queries, query)
			return true
		}
	}
	return false
}

func removeQueries(plan *types.ResearchPlan, pattern string) bool {
	needle := strings.ToLower(pattern)
	removed := false
	for i := range plan.Steps {
		var kept []string
		for _, q := range plan.Steps[i].Queries {
			if strings.Contains(strings.ToLower(q), needle) {
				removed = true
				continue
			}
			kept = append(kept, q)
		}
		plan.Steps[i].Queries = kept
	}
	return removed
}
