package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/skeleton"
)

// CycleWarning represents reactions that may keep triggering each other.
//
// Cycles are warnings, not errors, because they are often intended: a
// counter that stops at a bound, a ping-pong protocol, a retry loop.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["client.on[0]", "box.on[0]", "client.on[0]"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// trigger is an event a reaction can cause or respond to.
type trigger struct {
	event skeleton.EventType
	label string
}

// AnalyzeCycles reports reaction cycles in p and in its nested programs.
//
// The algorithm:
//  1. For each reaction, collect the triggers its effects can cause:
//     sends cause messages, ad-hoc asserts and retracts cause added and
//     removed events, field writes change the actor assertions that read
//     the field
//  2. Add an edge to every reaction whose pattern's record label and event
//     match one of those triggers
//  3. Use Tarjan's algorithm to find strongly connected components and
//     report each SCC with size > 1 or a self-loop
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(p *rules.Program) []CycleWarning {
	warnings := []CycleWarning{}
	if p == nil {
		return warnings
	}

	graph := buildDependencyGraph(p)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	for _, a := range p.Actors {
		if a.Nested != nil {
			for _, w := range AnalyzeCycles(a.Nested) {
				for i := range w.Path {
					w.Path[i] = a.Name + "/" + w.Path[i]
				}
				w.Message = fmt.Sprintf("%s (inside %s)", w.Message, a.Name)
				warnings = append(warnings, w)
			}
		}
	}
	return warnings
}

// dependencyGraph maps reaction id → reaction ids it could trigger.
type dependencyGraph map[string][]string

func buildDependencyGraph(p *rules.Program) dependencyGraph {
	graph := make(dependencyGraph)

	// Which reactions respond to each trigger
	listeners := make(map[trigger][]string)
	for _, a := range p.Actors {
		for i, r := range a.On {
			id := r.ID(a.Name, i)
			graph[id] = []string{}
			if label, ok := recordLabel(r.Pattern); ok {
				t := trigger{event: r.Event, label: label}
				listeners[t] = append(listeners[t], id)
			}
		}
	}

	for _, a := range p.Actors {
		for i, r := range a.On {
			id := r.ID(a.Name, i)
			for _, t := range effects(a, r) {
				graph[id] = append(graph[id], listeners[t]...)
			}
		}
	}
	return graph
}

// effects lists the triggers a reaction of actor a can cause.
func effects(a rules.Actor, r rules.Reaction) []trigger {
	var out []trigger
	add := func(evt skeleton.EventType, ts []rules.Template) {
		for _, t := range ts {
			if label, ok := recordLabel(t.Pattern); ok {
				out = append(out, trigger{event: evt, label: label})
			}
		}
	}
	add(skeleton.Message, r.Send)
	add(skeleton.Added, r.Assert)
	add(skeleton.Removed, r.Retract)

	for _, s := range r.Set {
		for _, t := range a.Assert {
			if !readsField(t, s.Field) {
				continue
			}
			add(skeleton.Added, []rules.Template{t})
			add(skeleton.Removed, []rules.Template{t})
		}
	}
	return out
}

func readsField(t rules.Template, field string) bool {
	for _, ref := range t.Refs {
		if ref.Name == field {
			return true
		}
	}
	return false
}

func recordLabel(v ir.IRValue) (string, bool) {
	r, ok := v.(ir.IRRecord)
	if !ok || r.Label == skeleton.LabelCapture || r.Label == skeleton.LabelDiscard {
		return "", false
	}
	return r.Label, true
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the output is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Self-triggering reaction detected: %s → %s", id, id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to it.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
