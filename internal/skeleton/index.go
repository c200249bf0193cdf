package skeleton

import (
	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// selector picks the next term while walking the index: pop popCount terms
// off the term stack, then take child index of the new top.
type selector struct {
	popCount int
	index    int
}

type edgeTable struct {
	sel   selector
	nodes map[Class]*node
	order []Class
}

type node struct {
	cont  *continuation
	edges []*edgeTable
}

func newNode(cont *continuation) *node {
	return &node{cont: cont}
}

func (n *node) table(sel selector) *edgeTable {
	for _, t := range n.edges {
		if t.sel == sel {
			return t
		}
	}
	t := &edgeTable{sel: sel, nodes: make(map[Class]*node)}
	n.edges = append(n.edges, t)
	return t
}

// continuation holds every assertion that reached its node together with
// the observer groups keyed by constant paths.
type continuation struct {
	cached *bag.Bag
	groups map[string]*constGroup
	order  []string
}

func newContinuation(cached *bag.Bag) *continuation {
	return &continuation{cached: cached, groups: make(map[string]*constGroup)}
}

func (c *continuation) removeGroup(key string) {
	delete(c.groups, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

type constGroup struct {
	paths  []Path
	leaves map[string]*leaf
}

type leaf struct {
	cached   *bag.Bag
	handlers map[string]*handler
	order    []string
}

func newLeaf() *leaf {
	return &leaf{cached: bag.New(), handlers: make(map[string]*handler)}
}

func (l *leaf) empty() bool {
	return l.cached.Len() == 0 && len(l.handlers) == 0
}

func (l *leaf) removeHandler(key string) {
	delete(l.handlers, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// handler keeps the multiset of capture tuples currently matched, so that
// observers hear about a tuple only on its 0 <-> >=1 transitions.
type handler struct {
	capturePaths []Path
	captures     *bag.Bag
	observers    []*Analysis
}

func (h *handler) deliver(evt EventType, captures ir.IRArray) {
	obs := make([]*Analysis, len(h.observers))
	copy(obs, h.observers)
	for _, a := range obs {
		if a.Callback != nil {
			a.Callback(evt, captures)
		}
	}
}

// Index is the shared observer index of one dataspace.
// It is not safe for concurrent use.
type Index struct {
	root *node
	all  *bag.Bag
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		root: newNode(newContinuation(bag.New())),
		all:  bag.New(),
	}
}

// Assertions returns the multiset of every assertion the index holds.
// Callers must not mutate it.
func (idx *Index) Assertions() *bag.Bag {
	return idx.all
}

// extend finds or creates the index path for sk and returns its
// continuation. New nodes are seeded with the cached assertions of their
// parent that have the right class at the new position.
func (idx *Index) extend(sk *Skeleton) *continuation {
	var walk func(n *node, popCount, index int, path Path, sk *Skeleton) (int, *node)
	walk = func(n *node, popCount, index int, path Path, sk *Skeleton) (int, *node) {
		if sk == nil {
			return popCount, n
		}

		t := n.table(selector{popCount: popCount, index: index})
		next, ok := t.nodes[sk.Class]
		if !ok {
			cached := bag.New()
			n.cont.cached.Ascend(func(v ir.IRValue, count int) bool {
				if sub, ok := Project(v, path); ok {
					if cls, ok := ClassOf(sub); ok && cls == sk.Class {
						cached.Change(v, count, false)
					}
				}
				return true
			})
			next = newNode(newContinuation(cached))
			t.nodes[sk.Class] = next
			t.order = append(t.order, sk.Class)
		}

		pc := 0
		cur := next
		for i, m := range sk.Members {
			pc, cur = walk(cur, pc, i, append(clonePath(path), i), m)
		}
		return pc + 1, cur
	}

	_, n := walk(idx.root, 0, 0, Path{}, sk)
	return n.cont
}

// AddHandler registers a.Callback for assertions matching a. Assertions
// already present are replayed to the new observer as Added events.
func (idx *Index) AddHandler(a *Analysis) {
	cont := idx.extend(a.Skeleton)

	pathsKey := ir.Key(pathsValue(a.ConstPaths))
	group, ok := cont.groups[pathsKey]
	if !ok {
		group = &constGroup{paths: a.ConstPaths, leaves: make(map[string]*leaf)}
		cont.cached.Ascend(func(v ir.IRValue, count int) bool {
			vals, ok := ProjectPaths(v, a.ConstPaths)
			if !ok {
				return true
			}
			k := ir.Key(vals)
			l, ok := group.leaves[k]
			if !ok {
				l = newLeaf()
				group.leaves[k] = l
			}
			l.cached.Change(v, count, false)
			return true
		})
		cont.groups[pathsKey] = group
		cont.order = append(cont.order, pathsKey)
	}

	valsKey := ir.Key(a.ConstVals)
	l, ok := group.leaves[valsKey]
	if !ok {
		l = newLeaf()
		group.leaves[valsKey] = l
	}

	capKey := ir.Key(pathsValue(a.CapturePaths))
	h, ok := l.handlers[capKey]
	if !ok {
		h = &handler{capturePaths: a.CapturePaths, captures: bag.New()}
		l.cached.Ascend(func(v ir.IRValue, count int) bool {
			if caps, ok := ProjectPaths(v, a.CapturePaths); ok {
				h.captures.Change(caps, 1, false)
			}
			return true
		})
		l.handlers[capKey] = h
		l.order = append(l.order, capKey)
	}
	h.observers = append(h.observers, a)

	if a.Callback != nil {
		for _, caps := range h.captures.Values() {
			a.Callback(Added, caps.(ir.IRArray))
		}
	}
}

// RemoveHandler unregisters a. It is a no-op if a is not registered.
func (idx *Index) RemoveHandler(a *Analysis) {
	cont := idx.extend(a.Skeleton)

	pathsKey := ir.Key(pathsValue(a.ConstPaths))
	group, ok := cont.groups[pathsKey]
	if !ok {
		return
	}
	valsKey := ir.Key(a.ConstVals)
	l, ok := group.leaves[valsKey]
	if !ok {
		return
	}
	capKey := ir.Key(pathsValue(a.CapturePaths))
	h, ok := l.handlers[capKey]
	if !ok {
		return
	}

	for i, o := range h.observers {
		if o == a {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			break
		}
	}
	if len(h.observers) == 0 {
		l.removeHandler(capKey)
	}
	if l.empty() {
		delete(group.leaves, valsKey)
	}
	if len(group.leaves) == 0 {
		cont.removeGroup(pathsKey)
	}
}

type visitor struct {
	cont    func(c *continuation)
	leaf    func(l *leaf)
	handler func(h *handler, captures ir.IRArray)
	// create reports whether a missing leaf should be created on the way.
	create bool
}

// visit walks every index node v reaches, applying the visitor at each
// continuation, leaf and handler compatible with v.
func (idx *Index) visit(v ir.IRValue, vis visitor) {
	var walkNode func(n *node, stack []ir.IRValue)
	walkNode = func(n *node, stack []ir.IRValue) {
		idx.visitContinuation(n.cont, v, vis)
		for _, t := range n.edges {
			if t.sel.popCount >= len(stack) {
				continue
			}
			next := stack[:len(stack)-t.sel.popCount]
			term, ok := step(next[len(next)-1], t.sel.index)
			if !ok {
				continue
			}
			cls, ok := ClassOf(term)
			if !ok {
				continue
			}
			child, ok := t.nodes[cls]
			if !ok {
				continue
			}
			pushed := make([]ir.IRValue, len(next), len(next)+1)
			copy(pushed, next)
			walkNode(child, append(pushed, term))
		}
	}
	walkNode(idx.root, []ir.IRValue{ir.IRArray{v}})
}

func (idx *Index) visitContinuation(c *continuation, v ir.IRValue, vis visitor) {
	if vis.cont != nil {
		vis.cont(c)
	}
	groupKeys := make([]string, len(c.order))
	copy(groupKeys, c.order)
	for _, gk := range groupKeys {
		group, ok := c.groups[gk]
		if !ok {
			continue
		}
		vals, ok := ProjectPaths(v, group.paths)
		if !ok {
			continue
		}
		valsKey := ir.Key(vals)
		l, ok := group.leaves[valsKey]
		if !ok {
			if !vis.create {
				continue
			}
			l = newLeaf()
			group.leaves[valsKey] = l
		}
		if vis.leaf != nil {
			vis.leaf(l)
		}
		handlerKeys := make([]string, len(l.order))
		copy(handlerKeys, l.order)
		for _, hk := range handlerKeys {
			h, ok := l.handlers[hk]
			if !ok {
				continue
			}
			caps, ok := ProjectPaths(v, h.capturePaths)
			if !ok {
				continue
			}
			vis.handler(h, caps)
		}
		if l.empty() {
			delete(group.leaves, valsKey)
		}
	}
}

// AdjustAssertion changes the multiplicity of v by delta. Only presence
// transitions touch the index: AbsentToPresent delivers Added and
// PresentToAbsent delivers Removed to every observer whose capture tuple
// appears or disappears.
func (idx *Index) AdjustAssertion(v ir.IRValue, delta int) bag.Transition {
	tr := idx.all.Change(v, delta, false)
	switch tr {
	case bag.AbsentToPresent:
		idx.visit(v, visitor{
			create: true,
			cont:   func(c *continuation) { c.cached.Change(v, 1, false) },
			leaf:   func(l *leaf) { l.cached.Change(v, 1, false) },
			handler: func(h *handler, caps ir.IRArray) {
				if h.captures.Change(caps, 1, false) == bag.AbsentToPresent {
					h.deliver(Added, caps)
				}
			},
		})
	case bag.PresentToAbsent:
		idx.visit(v, visitor{
			cont: func(c *continuation) { c.cached.Change(v, -1, true) },
			leaf: func(l *leaf) { l.cached.Change(v, -1, true) },
			handler: func(h *handler, caps ir.IRArray) {
				if h.captures.Change(caps, -1, true) == bag.PresentToAbsent {
					h.deliver(Removed, caps)
				}
			},
		})
	}
	return tr
}

// DeliverMessage delivers v as a Message to every observer matching it.
// Messages leave no trace in the index.
func (idx *Index) DeliverMessage(v ir.IRValue) {
	idx.visit(v, visitor{
		handler: func(h *handler, caps ir.IRArray) {
			h.deliver(Message, caps)
		},
	})
}

// ForEachMatch calls fn with the captures of every present assertion that
// matches a, in value order.
func (idx *Index) ForEachMatch(a *Analysis, fn func(v ir.IRValue, captures []ir.IRValue)) {
	for _, v := range idx.all.Values() {
		if caps, ok := Match(a, v); ok {
			fn(v, caps)
		}
	}
}

func pathsValue(paths []Path) ir.IRArray {
	out := make(ir.IRArray, len(paths))
	for i, p := range paths {
		seg := make(ir.IRArray, len(p))
		for j, n := range p {
			seg[j] = ir.IRInt(n)
		}
		out[i] = seg
	}
	return out
}
