package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	// Adjacent object/array tokens with the comma dropped by the model.
	missingCommaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\}\s*\{`),
		regexp.MustCompile(`\]\s*\[`),
		regexp.MustCompile(`\}\s*\[`),
		regexp.MustCompile(`\]\s*\{`),
		regexp.MustCompile(`"\s*\n\s*"`),
	}
	missingCommaRepairs = []string{"},{", "],[", "},[", "],{", "\",\n\""}
)

// CleanResponse strips markdown fences and repairs the comma mistakes models
// make most often. The result may still be invalid JSON.
func CleanResponse(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	text = trailingCommaPattern.ReplaceAllString(text, "$1")
	for i, p := range missingCommaPatterns {
		text = p.ReplaceAllString(text, missingCommaRepairs[i])
	}
	return text
}

// ParseJSON decodes an LLM response into v with escalating leniency: cleanup
// then strict parse, then json-repair, then the largest balanced object
// extracted by brace counting.
func ParseJSON(raw string, v any) error {
	cleaned := CleanResponse(raw)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.RepairJSON(cleaned); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	if candidate := largestBalancedObject(cleaned); candidate != "" {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
		if repaired, err := jsonrepair.RepairJSON(candidate); err == nil {
			if err := json.Unmarshal([]byte(repaired), v); err == nil {
				return nil
			}
		}
	}

	return newError(ErrParseFailure, "unparseable completion: %s", snippet(cleaned))
}

// largestBalancedObject returns the longest balanced {...} span in text,
// ignoring braces inside string literals.
func largestBalancedObject(text string) string {
	best := ""
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					if candidate := text[start : i+1]; len(candidate) > len(best) {
						best = candidate
					}
				}
			}
		}
	}
	return best
}

func snippet(s string) string {
	const limit = 120
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
