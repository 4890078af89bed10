// Package validate implements the per-endpoint validator framework: a
// slice of rule records applied to a parsed request's query/form map and
// JSON payload, re-expressing input_validator.hpp's rule<T>/validator<Rules...>
// as an explicit sum-type design per spec.md §9's re-architecture guidance,
// rather than reaching for a reflection-based validation library.
package validate

import (
	"fmt"

	"github.com/cppservergit/apiserver2/internal/apierr"
)

// Requirement marks whether a rule's parameter must be present.
type Requirement int

const (
	Required Requirement = iota
	Optional
)

// FailureType classifies why a rule failed, mirroring
// validation_error::error_type.
type FailureType int

const (
	MissingRequiredParam FailureType = iota
	InvalidFormat
	CustomRuleFailed
)

// Rule targets one parameter name.
type Rule struct {
	Name      string
	Kind      Kind
	Req       Requirement
	Predicate func(Value) bool // nil means "always pass"
	Message   string
}

// Failure describes why validation rejected a request.
type Failure struct {
	ParamName string
	Type      FailureType
	Message   string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("validation failed for parameter %q: %s", f.ParamName, f.Message)
}

// ParamSource is anything a Rule can fetch a named parameter from: the
// parsed query/form map first, then the JSON payload.
type ParamSource interface {
	// Lookup returns the raw string form of a parameter by name and
	// whether it was present at all.
	Lookup(name string) (string, bool)
}

// Validator is an ordered set of rules applied to a request.
type Validator struct {
	rules []Rule
}

// New builds a Validator from zero or more rules, registered once at
// startup by the endpoint descriptor.
func New(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// Validate runs every rule against src in order, stopping at the first
// failure, matching validator<Rules...>::validate's short-circuit
// semantics.
func (v *Validator) Validate(src ParamSource) (map[string]Value, *Failure) {
	values := make(map[string]Value, len(v.rules))
	for _, r := range v.rules {
		raw, present := src.Lookup(r.Name)
		if !present {
			if r.Req == Required {
				return nil, &Failure{ParamName: r.Name, Type: MissingRequiredParam, Message: "Required parameter is missing."}
			}
			continue
		}

		val, ok := Parse(r.Kind, raw)
		if !ok {
			return nil, &Failure{ParamName: r.Name, Type: InvalidFormat, Message: fmt.Sprintf("Invalid value: '%s'", raw)}
		}

		if r.Predicate != nil && !r.Predicate(val) {
			return nil, &Failure{ParamName: r.Name, Type: CustomRuleFailed, Message: r.Message}
		}
		values[r.Name] = val
	}
	return values, nil
}

// AsAPIError surfaces a Failure as the 400 Bad Request spec.md §7 requires,
// carrying the failure message as the client-visible error and the
// parameter name as its description.
func (f *Failure) AsAPIError() *apierr.Error {
	return apierr.BadRequest(f.Message).WithDescription(f.ParamName)
}
