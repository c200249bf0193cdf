package skeleton

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/dataspace/internal/ir"
)

// Record labels with a meaning to the matcher.
const (
	LabelDiscard = "Discard"
	LabelCapture = "Capture"
	LabelObserve = "Observe"
)

// Discard returns the wildcard pattern.
func Discard() ir.IRValue {
	return ir.Rec(LabelDiscard)
}

// Capture returns a pattern that matches p and captures the matched value.
func Capture(p ir.IRValue) ir.IRValue {
	return ir.Rec(LabelCapture, p)
}

// Bind is Capture(Discard()): capture whatever is at this position.
func Bind() ir.IRValue {
	return Capture(Discard())
}

// Observe wraps a pattern into the assertion that expresses interest in it.
func Observe(p ir.IRValue) ir.IRRecord {
	return ir.Rec(LabelObserve, p)
}

// ObservedPattern returns p when v is Observe(p).
func ObservedPattern(v ir.IRValue) (ir.IRValue, bool) {
	r, ok := v.(ir.IRRecord)
	if !ok || r.Label != LabelObserve || len(r.Fields) != 1 {
		return nil, false
	}
	return r.Fields[0], true
}

func isRecord(v ir.IRValue, label string) (ir.IRRecord, bool) {
	r, ok := v.(ir.IRRecord)
	if !ok || r.Label != label {
		return ir.IRRecord{}, false
	}
	return r, true
}

// Kind distinguishes the two structured value kinds a skeleton indexes.
type Kind int

const (
	KindRecord Kind = iota + 1
	KindSequence
)

// Class is the structural discriminator of a skeleton node.
type Class struct {
	Kind  Kind
	Label string
	Arity int
}

func (c Class) String() string {
	if c.Kind == KindSequence {
		return "[" + strconv.Itoa(c.Arity) + "]"
	}
	return c.Label + "/" + strconv.Itoa(c.Arity)
}

// ClassOf returns the class of a structured value. Atoms and objects have
// no class.
func ClassOf(v ir.IRValue) (Class, bool) {
	switch t := v.(type) {
	case ir.IRRecord:
		return Class{Kind: KindRecord, Label: t.Label, Arity: len(t.Fields)}, true
	case ir.IRArray:
		return Class{Kind: KindSequence, Arity: len(t)}, true
	default:
		return Class{}, false
	}
}

// step returns the i-th child of a structured value.
func step(v ir.IRValue, i int) (ir.IRValue, bool) {
	switch t := v.(type) {
	case ir.IRRecord:
		if i < len(t.Fields) {
			return t.Fields[i], true
		}
	case ir.IRArray:
		if i < len(t) {
			return t[i], true
		}
	}
	return nil, false
}

// Skeleton is the compiled structural shape of a pattern. A nil *Skeleton
// places no structural constraint at its position.
type Skeleton struct {
	Class   Class
	Members []*Skeleton
}

// String renders the skeleton for logs and tests.
func (s *Skeleton) String() string {
	if s == nil {
		return "_"
	}
	var b strings.Builder
	b.WriteString(s.Class.String())
	b.WriteByte('(')
	for i, m := range s.Members {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Path addresses a sub-value by child indices from the root.
type Path []int

// Project returns the sub-value of v at path.
func Project(v ir.IRValue, path Path) (ir.IRValue, bool) {
	cur := v
	for _, i := range path {
		next, ok := step(cur, i)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ProjectPaths projects every path, failing if any is missing.
func ProjectPaths(v ir.IRValue, paths []Path) (ir.IRArray, bool) {
	out := make(ir.IRArray, len(paths))
	for i, p := range paths {
		sub, ok := Project(v, p)
		if !ok {
			return nil, false
		}
		out[i] = sub
	}
	return out, true
}

// EventType is the kind of event an observer receives.
type EventType int

const (
	Added EventType = iota + 1
	Removed
	Message
)

func (e EventType) String() string {
	switch e {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Message:
		return "message"
	default:
		return "unknown"
	}
}

// Callback receives events for an observer. captures follow the
// analysis's CapturePaths order.
type Callback func(evt EventType, captures []ir.IRValue)

// Analysis is a compiled pattern plus the callback it delivers to.
type Analysis struct {
	Pattern      ir.IRValue
	Skeleton     *Skeleton
	ConstPaths   []Path
	ConstVals    ir.IRArray
	CapturePaths []Path
	// Assertion is Observe(Pattern), the value published while the
	// observer is live.
	Assertion ir.IRValue
	Callback  Callback
}

// PatternError reports a malformed pattern.
type PatternError struct {
	Path    Path
	Message string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("bad pattern at %v: %s", []int(e.Path), e.Message)
}

// ErrCaptureCount is returned when Instantiate gets the wrong number of
// captures for its pattern.
var ErrCaptureCount = errors.New("capture count mismatch")

// ErrDiscardInTemplate is returned when Instantiate meets a bare Discard,
// which has no value to rebuild.
var ErrDiscardInTemplate = errors.New("discard cannot be instantiated")

// Analyze compiles pattern. Capture positions are recorded in pre-order,
// left to right; the captured sub-pattern still constrains the match.
func Analyze(pattern ir.IRValue) (*Analysis, error) {
	a := &Analysis{
		Pattern:    pattern,
		Assertion:  Observe(pattern),
		ConstVals:  ir.IRArray{},
		ConstPaths: []Path{},
	}
	sk, err := a.walk(Path{}, pattern)
	if err != nil {
		return nil, err
	}
	a.Skeleton = sk
	return a, nil
}

// MustAnalyze is like Analyze but panics on a malformed pattern. Use it for
// statically known patterns.
func MustAnalyze(pattern ir.IRValue) *Analysis {
	a, err := Analyze(pattern)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *Analysis) walk(path Path, p ir.IRValue) (*Skeleton, error) {
	if r, ok := isRecord(p, LabelDiscard); ok {
		if len(r.Fields) != 0 {
			return nil, &PatternError{Path: clonePath(path), Message: "Discard takes no fields"}
		}
		return nil, nil
	}
	if r, ok := isRecord(p, LabelCapture); ok {
		if len(r.Fields) != 1 {
			return nil, &PatternError{Path: clonePath(path), Message: fmt.Sprintf("Capture takes 1 field, got %d", len(r.Fields))}
		}
		a.CapturePaths = append(a.CapturePaths, clonePath(path))
		return a.walk(path, r.Fields[0])
	}

	cls, structured := ClassOf(p)
	if !structured {
		a.ConstPaths = append(a.ConstPaths, clonePath(path))
		a.ConstVals = append(a.ConstVals, p)
		return nil, nil
	}

	sk := &Skeleton{Class: cls, Members: make([]*Skeleton, cls.Arity)}
	for i := 0; i < cls.Arity; i++ {
		child, _ := step(p, i)
		m, err := a.walk(append(path, i), child)
		if err != nil {
			return nil, err
		}
		sk.Members[i] = m
	}
	return sk, nil
}

func clonePath(p Path) Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Matches reports whether v has the shape sk describes.
func (s *Skeleton) Matches(v ir.IRValue) bool {
	if s == nil {
		return true
	}
	cls, ok := ClassOf(v)
	if !ok || cls != s.Class {
		return false
	}
	for i, m := range s.Members {
		child, _ := step(v, i)
		if !m.Matches(child) {
			return false
		}
	}
	return true
}

// Match tests v against the analysis: structure first, then constants.
// On success it returns the captures in CapturePaths order.
func Match(a *Analysis, v ir.IRValue) ([]ir.IRValue, bool) {
	if !a.Skeleton.Matches(v) {
		return nil, false
	}
	vals, ok := ProjectPaths(v, a.ConstPaths)
	if !ok || !ir.Equal(vals, a.ConstVals) {
		return nil, false
	}
	caps, ok := ProjectPaths(v, a.CapturePaths)
	if !ok {
		return nil, false
	}
	return caps, true
}

// Instantiate rebuilds a value from pattern by substituting captures, in
// order, at Capture positions. Capture sub-patterns are replaced whole.
func Instantiate(pattern ir.IRValue, captures []ir.IRValue) (ir.IRValue, error) {
	next := 0
	v, err := instantiate(pattern, captures, &next)
	if err != nil {
		return nil, err
	}
	if next != len(captures) {
		return nil, fmt.Errorf("%w: pattern uses %d, got %d", ErrCaptureCount, next, len(captures))
	}
	return v, nil
}

func instantiate(p ir.IRValue, captures []ir.IRValue, next *int) (ir.IRValue, error) {
	if _, ok := isRecord(p, LabelDiscard); ok {
		return nil, ErrDiscardInTemplate
	}
	if r, ok := isRecord(p, LabelCapture); ok {
		if *next >= len(captures) {
			return nil, fmt.Errorf("%w: need more than %d", ErrCaptureCount, len(captures))
		}
		v := captures[*next]
		// Captures nested inside this one are covered by v.
		*next += 1 + countCaptures(r.Fields)
		return v, nil
	}

	switch t := p.(type) {
	case ir.IRRecord:
		fields := make([]ir.IRValue, len(t.Fields))
		for i, f := range t.Fields {
			v, err := instantiate(f, captures, next)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		return ir.Rec(t.Label, fields...), nil
	case ir.IRArray:
		items := make(ir.IRArray, len(t))
		for i, f := range t {
			v, err := instantiate(f, captures, next)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	default:
		return p, nil
	}
}

func countCaptures(ps []ir.IRValue) int {
	n := 0
	for _, p := range ps {
		switch t := p.(type) {
		case ir.IRRecord:
			if t.Label == LabelCapture {
				n++
			}
			n += countCaptures(t.Fields)
		case ir.IRArray:
			n += countCaptures(t)
		}
	}
	return n
}
