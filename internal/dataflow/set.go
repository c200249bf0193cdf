package dataflow

// orderedSet is a set that iterates in insertion order, so repair order
// is deterministic.
type orderedSet[T comparable] struct {
	index map[T]int
	order []T
}

func newOrderedSet[T comparable]() *orderedSet[T] {
	return &orderedSet[T]{index: make(map[T]int)}
}

func (s *orderedSet[T]) add(v T) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = len(s.order)
	s.order = append(s.order, v)
}

func (s *orderedSet[T]) remove(v T) {
	i, ok := s.index[v]
	if !ok {
		return
	}
	delete(s.index, v)
	s.order = append(s.order[:i], s.order[i+1:]...)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

func (s *orderedSet[T]) len() int {
	return len(s.order)
}

func (s *orderedSet[T]) items() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}
