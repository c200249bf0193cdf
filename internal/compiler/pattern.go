package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/skeleton"
)

// Variable syntax inside program strings:
//
//	"_"        discard (patterns only)
//	"$name"    capture in a pattern, reference in a template
//	"$name+1"  reference with an integer offset (templates only)
//	"$$text"   the literal string "$text"
var refPattern = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)(?:([+-])([0-9]+))?$`)

const discardToken = "_"

// parseRef interprets a program string. ok is false for plain literals.
func parseRef(s string) (ref rules.Ref, literal string, ok bool, err error) {
	if !strings.HasPrefix(s, "$") {
		return rules.Ref{}, s, false, nil
	}
	if strings.HasPrefix(s, "$$") {
		return rules.Ref{}, s[1:], false, nil
	}
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return rules.Ref{}, "", false, fmt.Errorf("invalid variable %q", s)
	}
	ref.Name = m[1]
	if m[3] != "" {
		n, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return rules.Ref{}, "", false, fmt.Errorf("invalid offset in %q: %w", s, err)
		}
		if m[2] == "-" {
			n = -n
		}
		ref.Offset = n
	}
	return ref, "", true, nil
}

// compilePattern turns "$name" strings into captures and "_" into
// discards. It returns the skeleton pattern and the capture names in
// capture order.
func compilePattern(v ir.IRValue) (ir.IRValue, []string, error) {
	var names []string
	p, err := patternWalk(v, &names)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, nil, fmt.Errorf("capture $%s is bound twice", n)
		}
		seen[n] = true
	}
	return p, names, nil
}

func patternWalk(v ir.IRValue, names *[]string) (ir.IRValue, error) {
	switch t := v.(type) {
	case ir.IRString:
		if string(t) == discardToken {
			return skeleton.Discard(), nil
		}
		ref, lit, ok, err := parseRef(string(t))
		if err != nil {
			return nil, err
		}
		if !ok {
			return ir.IRString(lit), nil
		}
		if ref.Offset != 0 {
			return nil, fmt.Errorf("offsets are not allowed in patterns: %s", ref)
		}
		*names = append(*names, ref.Name)
		return skeleton.Bind(), nil
	case ir.IRRecord:
		if err := checkLabel(t.Label); err != nil {
			return nil, err
		}
		fields := make([]ir.IRValue, len(t.Fields))
		for i, f := range t.Fields {
			p, err := patternWalk(f, names)
			if err != nil {
				return nil, err
			}
			fields[i] = p
		}
		return ir.Rec(t.Label, fields...), nil
	case ir.IRArray:
		items := make(ir.IRArray, len(t))
		for i, f := range t {
			p, err := patternWalk(f, names)
			if err != nil {
				return nil, err
			}
			items[i] = p
		}
		return items, nil
	case ir.IRObject:
		return unescapeObject(t)
	default:
		return v, nil
	}
}

// compileTemplate replaces "$name" strings with placeholders that
// skeleton.Instantiate fills in.
func compileTemplate(v ir.IRValue) (rules.Template, error) {
	var refs []rules.Ref
	p, err := templateWalk(v, &refs)
	if err != nil {
		return rules.Template{}, err
	}
	return rules.Template{Pattern: p, Refs: refs}, nil
}

func templateWalk(v ir.IRValue, refs *[]rules.Ref) (ir.IRValue, error) {
	switch t := v.(type) {
	case ir.IRString:
		ref, lit, ok, err := parseRef(string(t))
		if err != nil {
			return nil, err
		}
		if !ok {
			return ir.IRString(lit), nil
		}
		*refs = append(*refs, ref)
		return skeleton.Bind(), nil
	case ir.IRRecord:
		if err := checkLabel(t.Label); err != nil {
			return nil, err
		}
		fields := make([]ir.IRValue, len(t.Fields))
		for i, f := range t.Fields {
			p, err := templateWalk(f, refs)
			if err != nil {
				return nil, err
			}
			fields[i] = p
		}
		return ir.Rec(t.Label, fields...), nil
	case ir.IRArray:
		items := make(ir.IRArray, len(t))
		for i, f := range t {
			p, err := templateWalk(f, refs)
			if err != nil {
				return nil, err
			}
			items[i] = p
		}
		return items, nil
	case ir.IRObject:
		return unescapeObject(t)
	default:
		return v, nil
	}
}

// Objects are matched and built as whole atoms, so variables cannot
// appear inside them. Escaped strings are still unescaped.
func unescapeObject(obj ir.IRObject) (ir.IRValue, error) {
	out := make(ir.IRObject, len(obj))
	for _, k := range obj.SortedKeys() {
		v, err := unescapeAtom(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func unescapeAtom(v ir.IRValue) (ir.IRValue, error) {
	switch t := v.(type) {
	case ir.IRString:
		_, lit, ok, err := parseRef(string(t))
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, fmt.Errorf("variable %s is not allowed inside an object", t)
		}
		return ir.IRString(lit), nil
	case ir.IRArray:
		out := make(ir.IRArray, len(t))
		for i, item := range t {
			u, err := unescapeAtom(item)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	case ir.IRObject:
		return unescapeObject(t)
	case ir.IRRecord:
		fields := make([]ir.IRValue, len(t.Fields))
		for i, f := range t.Fields {
			u, err := unescapeAtom(f)
			if err != nil {
				return nil, err
			}
			fields[i] = u
		}
		return ir.Rec(t.Label, fields...), nil
	default:
		return v, nil
	}
}

// checkLabel rejects the labels the matcher reserves for itself.
func checkLabel(label string) error {
	switch label {
	case skeleton.LabelCapture, skeleton.LabelDiscard:
		return fmt.Errorf("record label %q is reserved", label)
	}
	return nil
}
