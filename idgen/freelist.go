package idgen

// FreeList is a map from small integer ids to values. Removed ids are pushed
// on a free list and handed out again, most recently freed first, so ids stay
// dense.
//
// FreeList is not safe for concurrent use. Owners whose table is also
// walked by the data context mutate it through an invoke.
type FreeList[T any] struct {
	items []slot[T]
	free  []uint32
	count int
}

type slot[T any] struct {
	value T
	used  bool
}

// NewFreeList creates an empty FreeList.
func NewFreeList[T any]() *FreeList[T] {
	return &FreeList[T]{}
}

// Insert stores v and returns its id.
func (m *FreeList[T]) Insert(v T) uint32 {
	m.count++

	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		m.items[id] = slot[T]{value: v, used: true}

		return id
	}

	m.items = append(m.items, slot[T]{value: v, used: true})

	return uint32(len(m.items) - 1)
}

// InsertAt stores v under a caller chosen id. It reports false if id is
// already in use.
func (m *FreeList[T]) InsertAt(id uint32, v T) bool {
	if int(id) < len(m.items) {
		if m.items[id].used {
			return false
		}

		for i, f := range m.free {
			if f == id {
				m.free = append(m.free[:i], m.free[i+1:]...)
				break
			}
		}
	} else {
		for n := uint32(len(m.items)); n < id; n++ {
			m.items = append(m.items, slot[T]{})
			m.free = append(m.free, n)
		}
		m.items = append(m.items, slot[T]{})
	}

	m.items[id] = slot[T]{value: v, used: true}
	m.count++

	return true
}

// Lookup returns the value stored under id.
func (m *FreeList[T]) Lookup(id uint32) (T, bool) {
	var zero T

	if int(id) >= len(m.items) || !m.items[id].used {
		return zero, false
	}

	return m.items[id].value, true
}

// Remove releases id. It reports whether id was in use.
func (m *FreeList[T]) Remove(id uint32) bool {
	if int(id) >= len(m.items) || !m.items[id].used {
		return false
	}

	m.items[id] = slot[T]{}
	m.free = append(m.free, id)
	m.count--

	return true
}

// Len returns the number of ids in use.
func (m *FreeList[T]) Len() int {
	return m.count
}

// Each calls fn for every id in use, in id order, until fn returns false.
func (m *FreeList[T]) Each(fn func(id uint32, v T) bool) {
	for i, s := range m.items {
		if !s.used {
			continue
		}

		if !fn(uint32(i), s.value) {
			return
		}
	}
}
