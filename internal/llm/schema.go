package llm

// Score bounds of the structured contract.
const (
	MinPlagiarismScore = 0.0
	MaxPlagiarismScore = 100.0
	MinQualityScore    = 0
	MaxQualityScore    = 10
)

// BuildAnalysisJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is appended to JSON-mode prompts and also used locally to validate answers.
// Unknown keys are tolerated; only 'report' is required.
func BuildAnalysisJSONSchema() map[string]any {
	props := map[string]any{
		"report": map[string]any{"type": "string", "minLength": 1},
		"plagiarism_score": map[string]any{
			"type":    "number",
			"minimum": MinPlagiarismScore,
			"maximum": MaxPlagiarismScore,
		},
		"clarity_score":     qualityScoreProp(),
		"readability_score": qualityScoreProp(),
		"todo_list": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"report"},
	}
}

func qualityScoreProp() map[string]any {
	return map[string]any{
		"type":    "integer",
		"minimum": MinQualityScore,
		"maximum": MaxQualityScore,
	}
}
