package llm

import "strings"

// ExtractJSON pulls a JSON document out of a model response that may wrap it
// in prose or a fenced code block. Returns "" when nothing JSON-shaped is
// found.
func ExtractJSON(s string) string {
	if block := extractFenced(s); block != "" {
		s = block
	}
	obj := extractBalanced(s, '{', '}')
	arr := extractBalanced(s, '[', ']')
	// Prefer whichever starts first.
	oi, ai := strings.Index(s, "{"), strings.Index(s, "[")
	switch {
	case obj == "":
		return arr
	case arr == "":
		return obj
	case ai >= 0 && (oi < 0 || ai < oi):
		return arr
	default:
		return obj
	}
}

// extractFenced extracts content from a ```json ... ``` code block.
func extractFenced(s string) string {
	start := strings.Index(s, "```json")
	if start == -1 {
		start = strings.Index(s, "```")
		if start == -1 {
			return ""
		}
	}
	nl := strings.Index(s[start:], "\n")
	if nl == -1 {
		return ""
	}
	body := s[start+nl+1:]
	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(body[:end])
}

// extractBalanced extracts the first balanced open..close run.
func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
