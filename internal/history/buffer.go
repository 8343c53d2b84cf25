package history

import "time"

// #region buffer-struct
// Buffer is the bounded rolling history, oldest first.
// It is not synchronized; the owning session serializes access.
type Buffer struct {
	capacity  int
	items     []Observation
	now       func() time.Time
	listeners []func(length int)
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// #endregion buffer-struct

// #region constructor
// NewBuffer creates an empty buffer bounded to capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		capacity: capacity,
		items:    make([]Observation, 0, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// #endregion constructor

// #region accessors
func (b *Buffer) Capacity() int { return b.capacity }

func (b *Buffer) Len() int { return len(b.items) }

func (b *Buffer) Full() bool { return len(b.items) == b.capacity }

// Snapshot returns a copy of the current contents.
func (b *Buffer) Snapshot() []Observation {
	out := make([]Observation, len(b.items))
	copy(out, b.items)
	return out
}

// OnChange registers an observer called with the new length after every mutation.
func (b *Buffer) OnChange(fn func(length int)) {
	b.listeners = append(b.listeners, fn)
}

// #endregion accessors

// #region mutations
// Append stamps a new observation and evicts from the front past capacity.
func (b *Buffer) Append(r Result) Observation {
	obs := Observation{Result: r, Timestamp: b.now().UnixMilli()}
	b.items = append(b.items, obs)
	if over := len(b.items) - b.capacity; over > 0 {
		b.items = append(b.items[:0:0], b.items[over:]...)
	}
	b.notify()
	return obs
}

// RemoveLast drops the most recent observation. Returns false on an empty buffer.
func (b *Buffer) RemoveLast() bool {
	if len(b.items) == 0 {
		return false
	}
	b.items = b.items[:len(b.items)-1]
	b.notify()
	return true
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.items = b.items[:0]
	b.notify()
}

// Replace sets the contents to the most recent capacity entries of seq.
func (b *Buffer) Replace(seq []Observation) {
	if over := len(seq) - b.capacity; over > 0 {
		seq = seq[over:]
	}
	b.items = make([]Observation, len(seq), b.capacity)
	copy(b.items, seq)
	b.notify()
}

func (b *Buffer) notify() {
	n := len(b.items)
	for _, fn := range b.listeners {
		fn(n)
	}
}

// #endregion mutations
