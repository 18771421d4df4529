package session

import "sync"

// Registry is the doubly-linked intrusive session list described in
// spec.md §3/§9. A map would hide the one place this repository still
// needs iteration-safe-under-concurrent-destroy semantics: broadcasting
// shutdown walks every live session while each session's own goroutines
// may be destroying it concurrently, so the walk must snapshot `.next`
// before calling into a handler that might unlink the current node.
type Registry struct {
	mu   sync.Mutex
	head *Session
	tail *Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add links s in at the tail. A session is in the registry iff its
// socket is being read from (spec.md §3).
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.prev = r.tail
	s.next = nil
	if r.tail != nil {
		r.tail.next = s
	} else {
		r.head = s
	}
	r.tail = s
}

// Remove unlinks s. It is idempotent: removing an already-removed
// session (prev, next, and registry head/tail all clear of it) is a
// no-op, matching the sentinel-safe destroy semantics in spec.md §4.2.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlink(s)
}

func (r *Registry) unlink(s *Session) {
	if s.prev != nil {
		s.prev.next = s.next
	} else if r.head == s {
		r.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else if r.tail == s {
		r.tail = s.prev
	}
	s.prev, s.next = nil, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for s := r.head; s != nil; s = s.next {
		n++
	}
	return n
}

// Shutdown destroys every live session, snapshotting each node's
// successor before destroying the current node — destroying a session
// unlinks it from the registry, which would otherwise invalidate the
// walk mid-iteration.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	cur := r.head
	r.mu.Unlock()

	for cur != nil {
		r.mu.Lock()
		next := cur.next
		r.mu.Unlock()
		cur.Destroy(errShutdown)
		cur = next
	}
}
