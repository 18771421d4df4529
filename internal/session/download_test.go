package session

import (
	"bytes"
	"testing"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/protocol"
)

// fakeConn is a minimal Conn backed by an in-memory buffer: Write always
// succeeds, matching a vsock socket with room in its kernel buffer.
type fakeConn struct {
	bytes.Buffer
}

func (*fakeConn) Close() error { return nil }

func newDownloadTestSession() (*Session, *fakeConn) {
	conn := &fakeConn{}
	return New(conn, 1, nil), conn
}

// Repeated enqueue-then-fully-flush cycles of a max-size chunk must never
// exhaust the ring: a download of many megabytes issues exactly this
// pattern, one FILE_DATA record per loop iteration of
// downloadProducerLoop. Before the ring learned to reclaim drained
// space, this sequence failed permanently once cumulative lifetime
// enqueues passed roughly one ring capacity.
func TestSendFileRecordLockedSurvivesManyFlushCycles(t *testing.T) {
	s, conn := newDownloadTestSession()
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := bytes.Repeat([]byte{0x42}, protocol.MaxPayload)
	const iterations = 400 // (12+4096)*400 > 1.5 MiB, well past one ring capacity
	for i := 0; i < iterations; i++ {
		if err := s.sendFileRecordLocked(protocol.Record{Type: protocol.TypeFileData, Payload: chunk}); err != nil {
			t.Fatalf("iteration %d: sendFileRecordLocked: %v", i, err)
		}
		if err := s.framer.FlushAll(conn); err != nil {
			t.Fatalf("iteration %d: FlushAll: %v", i, err)
		}
	}

	dec := framing.New()
	count := 0
	if err := dec.Decode(conn.Bytes(), func(rec protocol.Record) error {
		if rec.Type == protocol.TypeFileData {
			if !bytes.Equal(rec.Payload, chunk) {
				t.Fatalf("record %d payload corrupted", count)
			}
			count++
		}
		return nil
	}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if count != iterations {
		t.Fatalf("decoded %d FILE_DATA records, want %d", count, iterations)
	}
}

// A record larger than the whole ring can never be placed, flush or no
// flush: sendFileRecordLocked must return an error rather than hang.
func TestSendFileRecordLockedPropagatesWhenRecordExceedsRing(t *testing.T) {
	s, _ := newDownloadTestSession()
	s.mu.Lock()
	defer s.mu.Unlock()

	huge := make([]byte, framing.TXCapacity)
	if err := s.sendFileRecordLocked(protocol.Record{Type: protocol.TypeFileData, Payload: huge}); err == nil {
		t.Fatal("expected error for a record that can never fit the ring")
	}
}
