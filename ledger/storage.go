package ledger

// Value is a single journaled storage slot. Writes go through a Frame so
// that a reverted transaction restores the previous value.
type Value[T any] struct {
	v T
}

// NewValue creates a slot holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial}
}

// Get returns the current value.
func (s *Value[T]) Get() T {
	return s.v
}

// Set stores v and records the previous value in f's journal.
func (s *Value[T]) Set(f *Frame, v T) {
	old := s.v
	f.tx.record(func() { s.v = old })
	s.v = v
}

// Map is a journaled mapping.
type Map[K comparable, V any] struct {
	m map[K]V
}

// NewMap creates an empty mapping.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Get returns the value stored under k and whether it exists.
func (s *Map[K, V]) Get(k K) (V, bool) {
	v, ok := s.m[k]
	return v, ok
}

// Set stores v under k.
func (s *Map[K, V]) Set(f *Frame, k K, v V) {
	old, had := s.m[k]
	f.tx.record(func() {
		if had {
			s.m[k] = old
		} else {
			delete(s.m, k)
		}
	})
	s.m[k] = v
}

// Delete removes k.
func (s *Map[K, V]) Delete(f *Frame, k K) {
	old, had := s.m[k]
	if !had {
		return
	}
	f.tx.record(func() { s.m[k] = old })
	delete(s.m, k)
}

// Len returns the number of entries.
func (s *Map[K, V]) Len() int {
	return len(s.m)
}

// Range calls fn for every entry until fn returns false. Iteration order is
// unspecified.
func (s *Map[K, V]) Range(fn func(K, V) bool) {
	for k, v := range s.m {
		if !fn(k, v) {
			return
		}
	}
}

// List is a journaled append-only sequence.
type List[T any] struct {
	items []T
}

// NewList creates an empty sequence.
func NewList[T any]() *List[T] {
	return &List[T]{}
}

// Append adds v at the end.
func (s *List[T]) Append(f *Frame, v T) {
	n := len(s.items)
	f.tx.record(func() { s.items = s.items[:n] })
	s.items = append(s.items, v)
}

// Len returns the number of items.
func (s *List[T]) Len() int {
	return len(s.items)
}

// At returns the item at index i and whether i is in range.
func (s *List[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(s.items) {
		return zero, false
	}
	return s.items[i], true
}

// Items returns a copy of the sequence.
func (s *List[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
