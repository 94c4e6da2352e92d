package llm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SanitizeAnalysis cleans the optional fields of a decoded answer in place:
//   - numeric strings ("85", "85%") are coerced to numbers
//   - scores outside their range, of the wrong type, or non-integral quality scores are removed
//   - a todo_list that is not a list of strings is removed; its items are kept as sent
//
// Every removal is reported as a PartialParseWarning. outOfRange is true when at
// least one removal was a well-formed number outside its bounds. The report
// field is never touched.
func SanitizeAnalysis(m map[string]any) (warnings []PartialParseWarning, outOfRange bool) {
	drop := func(field, reason string) {
		delete(m, field)
		warnings = append(warnings, PartialParseWarning{Field: field, Reason: reason})
	}

	if v, ok := m["plagiarism_score"]; ok {
		f, isNum := coerceNumber(v)
		switch {
		case !isNum:
			drop("plagiarism_score", fmt.Sprintf("not a number (%T)", v))
		case f < MinPlagiarismScore || f > MaxPlagiarismScore:
			outOfRange = true
			drop("plagiarism_score", fmt.Sprintf("%g outside [%g,%g]", f, MinPlagiarismScore, MaxPlagiarismScore))
		default:
			m["plagiarism_score"] = f
		}
	}

	for _, k := range []string{"clarity_score", "readability_score"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		f, isNum := coerceNumber(v)
		switch {
		case !isNum:
			drop(k, fmt.Sprintf("not a number (%T)", v))
		case f != math.Trunc(f):
			drop(k, fmt.Sprintf("%g is not an integer", f))
		case f < MinQualityScore || f > MaxQualityScore:
			outOfRange = true
			drop(k, fmt.Sprintf("%g outside [%d,%d]", f, MinQualityScore, MaxQualityScore))
		default:
			m[k] = f
		}
	}

	if v, ok := m["todo_list"]; ok {
		items, isList := v.([]any)
		if !isList {
			drop("todo_list", fmt.Sprintf("not a list (%T)", v))
		} else {
			for i, it := range items {
				if _, isStr := it.(string); !isStr {
					drop("todo_list", fmt.Sprintf("item %d is not a string (%T)", i, it))
					break
				}
			}
		}
	}
	return warnings, outOfRange
}

// coerceNumber accepts JSON numbers and numeric strings such as "85" or "85%".
func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
