package compiler

import (
	"fmt"
	"slices"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/skeleton"
)

// Keys accepted in an actor block.
var actorKeys = []string{"fields", "assert", "on", "stop_when", "nested"}

// Keys accepted in a reaction block.
var reactionKeys = []string{"asserted", "retracted", "message", "send", "assert", "retract", "set", "stop"}

// triggers maps reaction trigger keys to the event they select.
var triggers = map[string]skeleton.EventType{
	"asserted":  skeleton.Added,
	"retracted": skeleton.Removed,
	"message":   skeleton.Message,
}

// CompileString compiles CUE source text into a Program.
// filename is used in error positions only.
func CompileString(src, filename string) (*rules.Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	p, err := Compile(v)
	if err != nil {
		return nil, err
	}
	p.Source = filename
	return p, nil
}

// Compile parses a CUE value into a Program. Uses the CUE SDK's Go API
// directly (not a CLI subprocess).
//
// The value must have an "actors" struct:
//
//	actors: box: {
//		fields: value: 0
//		assert: [{"@BoxState": ["$value"]}]
//		on: [{message: {"@SetBox": ["$v"]}, set: value: "$v"}]
//		stop_when: value: 5
//	}
func Compile(v cue.Value) (*rules.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	actorsVal := v.LookupPath(cue.ParsePath("actors"))
	if !actorsVal.Exists() {
		return nil, &CompileError{
			Field:   "actors",
			Message: "actors is required",
			Pos:     v.Pos(),
		}
	}
	return compileProgram(actorsVal)
}

func compileProgram(actorsVal cue.Value) (*rules.Program, error) {
	iter, err := actorsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	p := &rules.Program{}
	for iter.Next() {
		name := norm.NFC.String(iter.Selector().Unquoted())
		actor, err := compileActor(name, iter.Value())
		if err != nil {
			return nil, err
		}
		p.Actors = append(p.Actors, *actor)
	}

	if len(p.Actors) == 0 {
		return nil, &CompileError{
			Field:   "actors",
			Message: "at least one actor is required",
			Pos:     actorsVal.Pos(),
		}
	}
	return p, nil
}

func compileActor(name string, v cue.Value) (*rules.Actor, error) {
	if err := checkKeys(v, "actors."+name, actorKeys); err != nil {
		return nil, err
	}
	actor := &rules.Actor{Name: name}

	if nested := v.LookupPath(cue.ParsePath("nested")); nested.Exists() {
		if len(labels(v)) > 1 {
			return nil, &CompileError{
				Field:   "actors." + name,
				Message: "nested cannot be combined with other keys",
				Pos:     v.Pos(),
			}
		}
		p, err := Compile(nested)
		if err != nil {
			return nil, err
		}
		actor.Nested = p
		return actor, nil
	}

	var err error
	if actor.Fields, err = compileFieldInits(v, "fields"); err != nil {
		return nil, err
	}
	if actor.StopWhen, err = compileFieldInits(v, "stop_when"); err != nil {
		return nil, err
	}
	if actor.Assert, err = compileTemplates(v, "assert"); err != nil {
		return nil, err
	}

	onVal := v.LookupPath(cue.ParsePath("on"))
	if onVal.Exists() {
		list, err := onVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			r, err := compileReaction(list.Value())
			if err != nil {
				return nil, err
			}
			actor.On = append(actor.On, *r)
		}
	}

	return actor, nil
}

// compileFieldInits reads a struct of name: value pairs in declaration
// order.
func compileFieldInits(v cue.Value, key string) ([]rules.FieldInit, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []rules.FieldInit
	for iter.Next() {
		val, err := toIR(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rules.FieldInit{
			Name:  norm.NFC.String(iter.Selector().Unquoted()),
			Value: val,
		})
	}
	return out, nil
}

// compileTemplates reads key as a list of templates. A single value is
// accepted as a one-element list.
func compileTemplates(v cue.Value, key string) ([]rules.Template, error) {
	tv := v.LookupPath(cue.ParsePath(key))
	if !tv.Exists() {
		return nil, nil
	}

	var vals []cue.Value
	if tv.Kind() == cue.ListKind {
		list, err := tv.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			vals = append(vals, list.Value())
		}
	} else {
		vals = []cue.Value{tv}
	}

	out := make([]rules.Template, 0, len(vals))
	for _, item := range vals {
		val, err := toIR(item)
		if err != nil {
			return nil, err
		}
		t, err := compileTemplate(val)
		if err != nil {
			return nil, &CompileError{Field: key, Message: err.Error(), Pos: item.Pos()}
		}
		out = append(out, t)
	}
	return out, nil
}

func compileReaction(v cue.Value) (*rules.Reaction, error) {
	if err := checkKeys(v, "on", reactionKeys); err != nil {
		return nil, err
	}

	var found []string
	for key := range triggers {
		if v.LookupPath(cue.ParsePath(key)).Exists() {
			found = append(found, key)
		}
	}
	if len(found) != 1 {
		sort.Strings(found)
		return nil, &CompileError{
			Field:   "on",
			Message: fmt.Sprintf("exactly one of asserted, retracted or message is required, got %v", found),
			Pos:     v.Pos(),
		}
	}

	trigger := found[0]
	pv := v.LookupPath(cue.ParsePath(trigger))
	raw, err := toIR(pv)
	if err != nil {
		return nil, err
	}
	pattern, captures, err := compilePattern(raw)
	if err != nil {
		return nil, &CompileError{Field: "on." + trigger, Message: err.Error(), Pos: pv.Pos()}
	}
	if _, err := skeleton.Analyze(pattern); err != nil {
		return nil, &CompileError{Field: "on." + trigger, Message: err.Error(), Pos: pv.Pos()}
	}

	r := &rules.Reaction{
		Event:    triggers[trigger],
		Pattern:  pattern,
		Captures: captures,
	}
	if r.Send, err = compileTemplates(v, "send"); err != nil {
		return nil, err
	}
	if r.Assert, err = compileTemplates(v, "assert"); err != nil {
		return nil, err
	}
	if r.Retract, err = compileTemplates(v, "retract"); err != nil {
		return nil, err
	}

	if sv := v.LookupPath(cue.ParsePath("set")); sv.Exists() {
		iter, err := sv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			val, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			t, err := compileTemplate(val)
			if err != nil {
				return nil, &CompileError{Field: "set", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			r.Set = append(r.Set, rules.Assignment{
				Field: norm.NFC.String(iter.Selector().Unquoted()),
				Value: t,
			})
		}
	}

	if stop := v.LookupPath(cue.ParsePath("stop")); stop.Exists() {
		b, err := stop.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		r.Stop = b
	}

	return r, nil
}

// toIR converts a concrete CUE value to an IR value through its JSON
// form, so records use the canonical {"@Label": [...]} encoding.
func toIR(v cue.Value) (ir.IRValue, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	val, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, &CompileError{Field: "value", Message: err.Error(), Pos: v.Pos()}
	}
	return normalize(val), nil
}

// normalize applies NFC to every string, label and key.
func normalize(v ir.IRValue) ir.IRValue {
	switch t := v.(type) {
	case ir.IRString:
		return ir.IRString(norm.NFC.String(string(t)))
	case ir.IRArray:
		out := make(ir.IRArray, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(t))
		for k, item := range t {
			out[norm.NFC.String(k)] = normalize(item)
		}
		return out
	case ir.IRRecord:
		fields := make([]ir.IRValue, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = normalize(f)
		}
		return ir.Rec(norm.NFC.String(t.Label), fields...)
	default:
		return v
	}
}

func labels(v cue.Value) []string {
	iter, err := v.Fields()
	if err != nil {
		return nil
	}
	var out []string
	for iter.Next() {
		out = append(out, iter.Selector().Unquoted())
	}
	return out
}

// checkKeys rejects labels outside allowed, catching typos like "asert".
func checkKeys(v cue.Value, field string, allowed []string) error {
	if v.Kind() != cue.StructKind {
		return &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !slices.Contains(allowed, label) {
			return &CompileError{
				Field:   field + "." + label,
				Message: fmt.Sprintf("unknown key (allowed: %v)", allowed),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

// CompileError reports a problem at a source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
