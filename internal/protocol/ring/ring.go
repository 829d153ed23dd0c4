package ring

// DefaultCapacity is the per-channel history length used by the uSEQ editor.
const DefaultCapacity = 100

// Buffer is a fixed-capacity circular history with overwrite-oldest eviction.
//
// Buffer is not safe for concurrent use. Readers must go through Oldest,
// Last or Values rather than inspecting the store directly.
type Buffer[T any] struct {
	store    []T
	capacity int
	pointer  int
}

// New returns an empty buffer holding at most capacity values.
// A capacity below 1 is raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		store:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v while under capacity, otherwise overwrites the slot at the
// write cursor. The cursor always advances modulo capacity.
func (b *Buffer[T]) Push(v T) {
	if len(b.store) < b.capacity {
		b.store = append(b.store, v)
	} else {
		b.store[b.pointer] = v
	}
	b.pointer = (b.pointer + 1) % b.capacity
}

// Oldest returns the i-th value counting forward from the oldest retained one.
// Queries at or beyond Len return the zero value.
func (b *Buffer[T]) Oldest(i int) T {
	var zero T
	if i < 0 || i >= len(b.store) {
		return zero
	}
	if !b.Full() {
		return b.store[i]
	}
	return b.store[(b.pointer+i)%b.capacity]
}

// Last returns the i-th most recent value; Last(0) is the value just pushed.
// Queries at or beyond Len return the zero value.
func (b *Buffer[T]) Last(i int) T {
	var zero T
	if i < 0 || i >= len(b.store) {
		return zero
	}
	idx := (b.pointer - i - 1) % b.capacity
	if idx < 0 {
		idx += b.capacity
	}
	return b.store[idx]
}

// Values copies the retained history oldest-first.
func (b *Buffer[T]) Values() []T {
	out := make([]T, len(b.store))
	for i := range out {
		out[i] = b.Oldest(i)
	}
	return out
}

func (b *Buffer[T]) Len() int { return len(b.store) }

func (b *Buffer[T]) Cap() int { return b.capacity }

func (b *Buffer[T]) Full() bool { return len(b.store) == b.capacity }

// Pointer reports the write cursor, in [0, Cap).
func (b *Buffer[T]) Pointer() int { return b.pointer }
