package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// OutOfRangePolicy decides what happens to a JSON answer carrying a score
// outside its bounds. Malformed fields are always dropped one by one.
type OutOfRangePolicy string

const (
	// PolicyDropField removes only the offending fields and keeps the rest.
	PolicyDropField OutOfRangePolicy = "drop-field"
	// PolicyFallback degrades the whole answer to an unstructured report.
	PolicyFallback OutOfRangePolicy = "fallback"
)

// ParsePolicy converts a config value, defaulting to PolicyDropField.
func ParsePolicy(s string) OutOfRangePolicy {
	if OutOfRangePolicy(strings.ToLower(strings.TrimSpace(s))) == PolicyFallback {
		return PolicyFallback
	}
	return PolicyDropField
}

// Parser turns a raw model answer into an AnalysisResult.
type Parser struct {
	policy OutOfRangePolicy
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewParser compiles the analysis schema once.
func NewParser(policy OutOfRangePolicy, logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := CompileSchema(BuildAnalysisJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("analysis schema: %w", err)
	}
	if policy == "" {
		policy = PolicyDropField
	}
	return &Parser{policy: policy, schema: schema, logger: logger}, nil
}

// Policy returns the configured out-of-range policy.
func (p *Parser) Policy() OutOfRangePolicy { return p.policy }

// Parse never fails on malformed JSON: anything that is not a usable JSON object
// becomes an unstructured result whose report is the raw text verbatim. The only
// error is ErrEmptyResponse, for an empty answer or an empty report field.
func (p *Parser) Parse(raw string) (AnalysisResult, error) {
	if strings.TrimSpace(raw) == "" {
		p.logger.Warn("llm.parse.rejected", "reason", "empty response")
		return AnalysisResult{Kind: StateRejected}, common.NewEmptyResponseError("the model returned an empty response")
	}

	m, ok := DecodeObject(raw)
	if !ok {
		p.logger.Info("llm.parse.unstructured", "reason", "not a json object", "bytes", len(raw))
		return unstructured(raw, nil), nil
	}
	report, ok := m["report"].(string)
	if !ok {
		p.logger.Info("llm.parse.unstructured", "reason", "missing report field", "bytes", len(raw))
		return unstructured(raw, nil), nil
	}
	if strings.TrimSpace(report) == "" {
		p.logger.Warn("llm.parse.rejected", "reason", "empty report field")
		return AnalysisResult{Kind: StateRejected}, common.NewEmptyResponseError("the model returned an empty report")
	}

	verr := p.schema.Validate(m)
	if verr == nil {
		p.logger.Info("llm.parse.structured")
		return structured(report, m, nil), nil
	}

	warnings, outOfRange := SanitizeAnalysis(m)
	if outOfRange && p.policy == PolicyFallback {
		p.logger.Warn("llm.parse.fallback", "error", verr.Error())
		return unstructured(report, nil), nil
	}
	if err := p.schema.Validate(m); err != nil {
		p.logger.Warn("llm.parse.fallback", "error", err.Error(), "dropped", len(warnings))
		return unstructured(report, warnings), nil
	}
	for _, w := range warnings {
		p.logger.Warn("llm.parse.partial", "field", w.Field, "reason", w.Reason)
	}
	return structured(report, m, warnings), nil
}

func unstructured(report string, warnings []PartialParseWarning) AnalysisResult {
	return AnalysisResult{Kind: StateParsedUnstructured, Report: report, Warnings: warnings}
}

// structured expects m to have passed schema validation.
func structured(report string, m map[string]any, warnings []PartialParseWarning) AnalysisResult {
	res := AnalysisResult{Kind: StateParsedStructured, Report: report, Warnings: warnings}
	if f, ok := m["plagiarism_score"].(float64); ok {
		res.PlagiarismScore = &f
	}
	if f, ok := m["clarity_score"].(float64); ok {
		n := int(f)
		res.ClarityScore = &n
	}
	if f, ok := m["readability_score"].(float64); ok {
		n := int(f)
		res.ReadabilityScore = &n
	}
	if items, ok := m["todo_list"].([]any); ok {
		res.TodoList = make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				res.TodoList = append(res.TodoList, s)
			}
		}
	}
	return res
}
