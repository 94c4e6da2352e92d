package common

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"unicode/utf8"
)

// ValidationError is one failed rule on one field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %q %s", e.Field, fmt.Sprint(e.Value), e.Message)
}

// Validator collects rule failures across fields so one error can name all
// of them.
type Validator struct {
	errs []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs rules against value in order.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(name, value); err != nil {
			v.errs = append(v.errs, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errs
}

// Err returns nil or an invalid-input AppError carrying every collected message.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	msgs := make([]string, 0, len(v.errs))
	for _, e := range v.errs {
		msgs = append(msgs, e.Error())
	}
	return NewInvalidInputError(strings.Join(msgs, "; "))
}

// ValidationRule checks one value. It returns nil when the value passes.
type ValidationRule func(name string, value any) *ValidationError

// Required rejects nil, blank strings and empty byte slices.
func Required(name string, value any) *ValidationError {
	missing := value == nil
	switch v := value.(type) {
	case string:
		missing = strings.TrimSpace(v) == ""
	case []byte:
		missing = len(v) == 0
		value = "<empty>"
	}
	if missing {
		return &ValidationError{Field: name, Value: value, Message: "is required"}
	}
	return nil
}

// MaxLength builds a rule rejecting strings longer than max runes.
func MaxLength(max int) ValidationRule {
	return func(name string, value any) *ValidationError {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > max {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("must be at most %d characters", max)}
		}
		return nil
	}
}

// Email accepts a bare RFC 5322 address (no display name).
func Email(name string, value any) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return &ValidationError{Field: name, Value: value, Message: "must be a string"}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != strings.TrimSpace(s) {
		return &ValidationError{Field: name, Value: value, Message: "must be a valid email address"}
	}
	return nil
}

// OneOf builds a rule accepting only the listed strings.
func OneOf(allowed ...string) ValidationRule {
	return func(name string, value any) *ValidationError {
		s, _ := value.(string)
		if slices.Contains(allowed, s) {
			return nil
		}
		return &ValidationError{Field: name, Value: value, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}
