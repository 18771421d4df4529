package session

import (
	"io"
	"net"
	"testing"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	// net.Pipe is synchronous and unbuffered: drain the peer side so a
	// session's Flush/FlushAll never blocks forever waiting for a reader.
	go io.Copy(io.Discard, client)
	s := New(server, 42, nil)
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRegistryAddRemove(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestSession(t)
	b, _ := newTestSession(t)
	reg.Add(a)
	reg.Add(b)
	if got := reg.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	reg.Remove(a)
	if got := reg.Len(); got != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", got)
	}
	// Idempotent: removing again (or a node never added) is a no-op.
	reg.Remove(a)
	if got := reg.Len(); got != 1 {
		t.Fatalf("Len() after double Remove = %d, want 1", got)
	}
}

// Invariant 5: a destroyed session is closed and absent from the
// registry. This session never spawned a child, so there is nothing to
// signal and that part of the invariant is not checked here.
func TestDestroyRemovesFromRegistry(t *testing.T) {
	reg := NewRegistry()
	s, client := newTestSession(t)
	s.reg = reg
	reg.Add(s)

	s.Destroy(nil)
	s.Wait()

	if reg.Len() != 0 {
		t.Errorf("Len() after Destroy = %d, want 0", reg.Len())
	}
	// The session closed its end of the pipe; writes from the peer now fail.
	if _, err := client.Write([]byte("x")); err == nil {
		t.Error("write to peer succeeded after session destroy, want closed connection")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	s, _ := newTestSession(t)
	s.Destroy(nil)
	s.Destroy(errProtocolViolation) // must not panic or double-close
	s.Wait()
}

func TestShutdownDestroysAllSessions(t *testing.T) {
	reg := NewRegistry()
	var sessions []*Session
	for i := 0; i < 5; i++ {
		s, _ := newTestSession(t)
		s.Run(reg)
		sessions = append(sessions, s)
	}
	if reg.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", reg.Len())
	}
	reg.Shutdown()
	for _, s := range sessions {
		s.Wait()
	}
	if reg.Len() != 0 {
		t.Errorf("Len() after Shutdown = %d, want 0", reg.Len())
	}
}
