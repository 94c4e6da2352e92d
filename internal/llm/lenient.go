package llm

import (
	"encoding/json"
	"strings"
)

// keySynonyms maps spellings models (and older prompt versions) use onto the
// canonical field names. When several spellings of one field are present the
// earliest entry wins.
var keySynonyms = []struct{ from, to string }{
	{"plagirism_score", "plagiarism_score"},
	{"plagiarismScore", "plagiarism_score"},
	{"clarityScore", "clarity_score"},
	{"readabilityScore", "readability_score"},
	{"todo", "todo_list"},
	{"todos", "todo_list"},
	{"to_do_list", "todo_list"},
	{"todoList", "todo_list"},
}

// StripCodeFence removes a surrounding ``` / ```json fence that models like to
// wrap JSON answers in. Text without a surrounding fence is returned trimmed.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if len(t) < 6 || !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") {
		return t
	}
	t = strings.TrimSuffix(t[3:], "```")
	// drop the info string (e.g. "json") on the opening line
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		if info := strings.TrimSpace(t[:nl]); !strings.ContainsAny(info, "{[") {
			t = t[nl+1:]
		}
	}
	return strings.TrimSpace(t)
}

// DecodeObject decodes a JSON object answer, renames known synonyms and drops
// explicit nulls. The second return is false when the text is not a JSON object.
func DecodeObject(raw string) (map[string]any, bool) {
	body := StripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil || m == nil {
		return nil, false
	}
	for _, syn := range keySynonyms {
		if v, ok := m[syn.from]; ok {
			// the canonical key, or an earlier synonym, takes precedence
			if _, exists := m[syn.to]; !exists {
				m[syn.to] = v
			}
			delete(m, syn.from)
		}
	}
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	return m, true
}
