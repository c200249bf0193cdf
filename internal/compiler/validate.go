package compiler

import (
	"fmt"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
)

// Validation error codes (E100-E199)
const (
	// Program errors (E101-E109)
	ErrNoActors       = "E101" // a program needs at least one actor
	ErrInertActor     = "E102" // actor has nothing to assert or react to
	ErrDuplicateField = "E103" // field declared twice
	ErrEmptyNested    = "E104" // nested program has no actors

	// Reaction errors (E110-E119)
	ErrUnknownField      = "E110" // set or stop_when names an undeclared field
	ErrUnboundVariable   = "E114" // template reference is neither capture nor field
	ErrNoEffect          = "E115" // reaction does nothing
	ErrShadowedField     = "E116" // capture hides a field of the same name
	ErrOffsetOnNonInt    = "E117" // offset applied to a field that is not an integer
	ErrStopWhenUnreached = "E118" // stop_when value has a different type than the field
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled program for semantic errors.
// Returns all errors found (does not fail-fast).
func Validate(p *rules.Program) []ValidationError {
	return validateProgram(p, "actors")
}

func validateProgram(p *rules.Program, path string) []ValidationError {
	var errs []ValidationError
	if p == nil || len(p.Actors) == 0 {
		return append(errs, ValidationError{
			Field:   path,
			Message: "at least one actor is required",
			Code:    ErrNoActors,
		})
	}
	for _, a := range p.Actors {
		errs = append(errs, validateActor(a, path+"."+a.Name)...)
	}
	return errs
}

func validateActor(a rules.Actor, path string) []ValidationError {
	if a.Nested != nil {
		if len(a.Nested.Actors) == 0 {
			return []ValidationError{{
				Field:   path + ".nested",
				Message: "nested program has no actors",
				Code:    ErrEmptyNested,
			}}
		}
		return validateProgram(a.Nested, path+".nested.actors")
	}

	var errs []ValidationError

	// E102: inert actors terminate as soon as they boot
	if len(a.Assert) == 0 && len(a.On) == 0 {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "actor has no assertions and no reactions",
			Code:    ErrInertActor,
		})
	}

	fields := make(map[string]rules.FieldInit, len(a.Fields))
	for i, f := range a.Fields {
		// E103: duplicate field
		if _, dup := fields[f.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.fields[%d]", path, i),
				Message: fmt.Sprintf("field %q declared twice", f.Name),
				Code:    ErrDuplicateField,
			})
		}
		fields[f.Name] = f
	}

	for i, t := range a.Assert {
		errs = append(errs, validateTemplate(t, fmt.Sprintf("%s.assert[%d]", path, i), nil, fields)...)
	}

	for i, c := range a.StopWhen {
		f, ok := fields[c.Name]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.stop_when.%s", path, c.Name),
				Message: fmt.Sprintf("undeclared field %q", c.Name),
				Code:    ErrUnknownField,
			})
			continue
		}
		// E118: a field only ever holds values of its initial kind
		if fmt.Sprintf("%T", f.Value) != fmt.Sprintf("%T", c.Value) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.stop_when[%d]", path, i),
				Message: fmt.Sprintf("field %q starts as %T, stop value is %T", c.Name, f.Value, c.Value),
				Code:    ErrStopWhenUnreached,
			})
		}
	}

	for i, r := range a.On {
		errs = append(errs, validateReaction(r, r.ID(path, i), fields)...)
	}
	return errs
}

func validateReaction(r rules.Reaction, path string, fields map[string]rules.FieldInit) []ValidationError {
	var errs []ValidationError

	// E115: reaction must do something
	if len(r.Send)+len(r.Assert)+len(r.Retract)+len(r.Set) == 0 && !r.Stop {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "reaction has no effect",
			Code:    ErrNoEffect,
		})
	}

	// E116: capture shadows field
	for _, c := range r.Captures {
		if _, ok := fields[c]; ok {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("capture $%s hides field %q", c, c),
				Code:    ErrShadowedField,
			})
		}
	}

	for i, t := range r.Send {
		errs = append(errs, validateTemplate(t, fmt.Sprintf("%s.send[%d]", path, i), r.Captures, fields)...)
	}
	for i, t := range r.Assert {
		errs = append(errs, validateTemplate(t, fmt.Sprintf("%s.assert[%d]", path, i), r.Captures, fields)...)
	}
	for i, t := range r.Retract {
		errs = append(errs, validateTemplate(t, fmt.Sprintf("%s.retract[%d]", path, i), r.Captures, fields)...)
	}
	for _, s := range r.Set {
		// E110: set target must be declared
		if _, ok := fields[s.Field]; !ok {
			errs = append(errs, ValidationError{
				Field:   path + ".set." + s.Field,
				Message: fmt.Sprintf("undeclared field %q", s.Field),
				Code:    ErrUnknownField,
			})
		}
		errs = append(errs, validateTemplate(s.Value, path+".set."+s.Field, r.Captures, fields)...)
	}
	return errs
}

func validateTemplate(t rules.Template, path string, captures []string, fields map[string]rules.FieldInit) []ValidationError {
	var errs []ValidationError
	bound := make(map[string]bool, len(captures))
	for _, c := range captures {
		bound[c] = true
	}

	for _, ref := range t.Refs {
		if bound[ref.Name] {
			continue
		}
		f, ok := fields[ref.Name]
		if !ok {
			// E114: reference must resolve
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unbound variable %s", ref),
				Code:    ErrUnboundVariable,
			})
			continue
		}
		if ref.Offset != 0 {
			if _, isInt := f.Value.(ir.IRInt); !isInt {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("%s: field %q is not an integer", ref, ref.Name),
					Code:    ErrOffsetOnNonInt,
				})
			}
		}
	}
	return errs
}
