package llm

import "strings"

// StripCodeFences removes ```json ... ``` wrappers models add around JSON.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// ExtractJSON finds the first complete JSON object in a string, tolerating
// prose before and after. Returns "" when no balanced object exists.
func ExtractJSON(s string) string {
	start := -1
	braceCount := 0

	for i, c := range s {
		if c == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
		} else if c == '}' {
			braceCount--
			if braceCount == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
