package llm

import (
	"context"
	"fmt"
)

// Generator is the hosted model seen as a capability: prompt in, text out.
// Implementations classify failures with the common model error sentinels so
// callers can tell transient from permanent failures.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ParseState is where a raw model response ended up after validation.
type ParseState string

const (
	StateRaw                ParseState = "raw"
	StateParsedStructured   ParseState = "structured"
	StateParsedUnstructured ParseState = "unstructured"
	StateRejected           ParseState = "rejected"
)

// AnalysisResult is the tagged variant the rest of the system consumes. Report
// is always set; the other fields are optional enrichment present only for
// structured results.
type AnalysisResult struct {
	Kind             ParseState            `json:"kind"`
	Report           string                `json:"report"`
	PlagiarismScore  *float64              `json:"plagiarism_score,omitempty"` // 0..100
	ClarityScore     *int                  `json:"clarity_score,omitempty"`    // 0..10
	ReadabilityScore *int                  `json:"readability_score,omitempty"`
	TodoList         []string              `json:"todo_list,omitempty"`
	Warnings         []PartialParseWarning `json:"warnings,omitempty"`
}

// IsStructured reports whether the model honoured the JSON contract.
func (r AnalysisResult) IsStructured() bool {
	return r.Kind == StateParsedStructured
}

// HasScores reports whether any numeric score survived validation.
func (r AnalysisResult) HasScores() bool {
	return r.PlagiarismScore != nil || r.ClarityScore != nil || r.ReadabilityScore != nil
}

// PartialParseWarning records a structured field that was nulled out because it
// was malformed or out of range. It is not fatal.
type PartialParseWarning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (w PartialParseWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Reason)
}
