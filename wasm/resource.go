package wasm

import (
	"sync"
)

type resourceEntry[T any] struct {
	res     T
	refs    int
	removed bool
}

// ResourceManager is a thread-safe handle table for host-owned resources
// handed to guests as u32 handles. Handle 0 is never issued.
//
// A resource removed while host calls still hold it is interrupted at once
// and dropped when the last holder releases it.
type ResourceManager[T any] struct {
	mu        sync.Mutex
	handles   map[uint32]*resourceEntry[T]
	nextID    uint32
	drop      func(T)
	interrupt func(T)
}

// NewResourceManager creates an empty table. drop, if not nil, is called
// exactly once for every resource removed from the table, including by
// Clear. interrupt, if not nil, is called under the table lock for a
// resource removed while in use; it must not block.
func NewResourceManager[T any](drop, interrupt func(T)) *ResourceManager[T] {
	return &ResourceManager[T]{
		handles:   make(map[uint32]*resourceEntry[T]),
		drop:      drop,
		interrupt: interrupt,
	}
}

// Add stores a resource and returns its handle.
func (m *ResourceManager[T]) Add(resource T) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if m.nextID == 0 {
		m.nextID++
	}
	m.handles[m.nextID] = &resourceEntry[T]{res: resource}
	return m.nextID
}

// Get retrieves a resource by handle without holding it.
func (m *ResourceManager[T]) Get(handle uint32) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.handles[handle]; ok {
		return e.res, true
	}
	var zero T
	return zero, false
}

// Acquire retrieves a resource and holds it until release is called. A held
// resource is not dropped, even if its handle is removed meanwhile.
func (m *ResourceManager[T]) Acquire(handle uint32) (res T, release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.handles[handle]
	if !ok {
		return res, nil, false
	}
	e.refs++
	return e.res, func() { m.release(e) }, true
}

func (m *ResourceManager[T]) release(e *resourceEntry[T]) {
	m.mu.Lock()
	e.refs--
	last := e.removed && e.refs == 0
	m.mu.Unlock()

	if last && m.drop != nil {
		m.drop(e.res)
	}
}

// retire marks e removed. It reports whether e can be dropped now; otherwise
// e is interrupted and dropped by its last release. m.mu must be held.
func (m *ResourceManager[T]) retire(e *resourceEntry[T]) bool {
	e.removed = true
	if e.refs == 0 {
		return true
	}
	if m.interrupt != nil {
		m.interrupt(e.res)
	}
	return false
}

// Remove deletes a handle and drops its resource. It reports whether the
// handle existed.
func (m *ResourceManager[T]) Remove(handle uint32) bool {
	m.mu.Lock()
	e, ok := m.handles[handle]
	dropNow := false
	if ok {
		delete(m.handles, handle)
		dropNow = m.retire(e)
	}
	m.mu.Unlock()

	if dropNow && m.drop != nil {
		m.drop(e.res)
	}
	return ok
}

// Len returns the number of live handles.
func (m *ResourceManager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Clear removes every handle and drops the resources no call is holding.
func (m *ResourceManager[T]) Clear() {
	m.mu.Lock()
	var idle []T
	for _, e := range m.handles {
		if m.retire(e) {
			idle = append(idle, e.res)
		}
	}
	m.handles = make(map[uint32]*resourceEntry[T])
	m.mu.Unlock()

	if m.drop == nil {
		return
	}
	for _, res := range idle {
		m.drop(res)
	}
}
