package constants

import (
	"strings"
)

// Category is the industry a thesis belongs to. It fills the industry slot of
// prompt templates that have one.
type Category string

const (
	Healthcare  Category = "Healthcare"
	Automotive  Category = "Automotive"
	Development Category = "Development"
	Gaming      Category = "Gaming"
	Engineering Category = "Engineering"
)

var allCategories = []Category{
	Healthcare,
	Automotive,
	Development,
	Gaming,
	Engineering,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps user input onto a known category. Empty input is not a category.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	// synonyms map
	synonyms := map[string]Category{
		"health":     Healthcare,
		"medical":    Healthcare,
		"medicine":   Healthcare,
		"automobile": Automotive,
		"cars":       Automotive,
		"software":   Development,
		"games":      Gaming,
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	return "", false
}
