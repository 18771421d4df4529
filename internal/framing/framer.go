// Package framing implements the per-connection message queue: a
// ring-shaped transmit buffer and a linear receive buffer that turn a
// raw byte stream into the typed records defined in internal/protocol.
package framing

import (
	"errors"
	"io"

	"github.com/vsockshell/vsockshell/internal/protocol"
)

// Capacities matching the original message queue sizing.
const (
	TXCapacity = 1 << 20    // 1 MiB ring
	RXCapacity = 100 * 1000 // 100 KB linear
)

// ErrBufferFull is returned by Enqueue when the contiguous free run in
// the TX ring is smaller than the record being enqueued. The caller
// must flush and retry.
var ErrBufferFull = errors.New("framing: tx buffer full")

// ErrInvalidMagic is reported to Decode's error callback when a header's
// magic does not match protocol.Magic. The connection must be aborted.
var ErrInvalidMagic = errors.New("framing: invalid magic")

// ErrWouldBlock mirrors EAGAIN/EWOULDBLOCK: Flush made no progress
// because the underlying writer is not ready. It is not a failure.
var ErrWouldBlock = errors.New("framing: would block")

// Framer owns one connection's TX ring and RX linear buffer. It is not
// safe for concurrent use; callers serialize access with their own lock
// (internal/session does this once per Session).
type Framer struct {
	tx        [TXCapacity]byte
	txStart   int
	txEnd     int
	txPending bool // true once start==end represents "full", not "empty"

	rx    [RXCapacity]byte
	rxLen int
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{}
}

// txPlacement picks where a record of size total can be written without
// straddling the wrap seam: it prefers continuing at txEnd, and falls
// back to wrapping to the front of the buffer (offset 0) when the tail
// run is too small but the space already drained off the front
// (everything before txStart) has room. That front run only exists when
// the ring isn't already wrapped (txEnd >= txStart); once wrapped, the
// gap between txEnd and txStart is the only free space left.
func (f *Framer) txPlacement(total int) (offset int, ok bool) {
	if f.txStart == f.txEnd {
		if f.txPending {
			return 0, false // full
		}
		return f.txEnd, total <= TXCapacity-f.txEnd // empty
	}
	if f.txEnd > f.txStart {
		if total <= TXCapacity-f.txEnd {
			return f.txEnd, true
		}
		if total <= f.txStart {
			return 0, true
		}
		return 0, false
	}
	// Wrapped: data occupies [txStart,Cap) and [0,txEnd); only the gap
	// between them is free.
	return f.txEnd, total <= f.txStart-f.txEnd
}

// txPendingBytes is the total number of bytes awaiting flush.
func (f *Framer) txPendingBytes() int {
	if f.txEnd == f.txStart {
		if f.txPending {
			return TXCapacity
		}
		return 0
	}
	if f.txEnd > f.txStart {
		return f.txEnd - f.txStart
	}
	return TXCapacity - f.txStart + f.txEnd
}

// Enqueue appends one record to the TX ring. It fails with ErrBufferFull
// if no single contiguous run (tail or, failing that, wrapped front) is
// large enough to hold the record — records are never split across the
// wrap seam.
func (f *Framer) Enqueue(r protocol.Record) error {
	total := protocol.HeaderSize + len(r.Payload)
	offset, ok := f.txPlacement(total)
	if !ok {
		return ErrBufferFull
	}
	wire, err := r.Encode(make([]byte, 0, total))
	if err != nil {
		return err
	}
	n := copy(f.tx[offset:], wire)
	f.txEnd = offset + n
	if f.txEnd == TXCapacity {
		f.txEnd = 0
	}
	f.txPending = true
	return nil
}

// Saturated reports whether pending TX bytes exceed half capacity. It
// is a hint for producers to yield, never a hard cap: Enqueue may still
// accept a further max-size record immediately after Saturated reports
// true, as long as contiguous free space allows it.
func (f *Framer) Saturated() bool {
	return f.txPendingBytes() > TXCapacity/2
}

// HasPendingWrites reports whether any bytes are queued for Flush.
func (f *Framer) HasPendingWrites() bool {
	return f.txPendingBytes() > 0
}

// Flush issues one Write of the contiguous run currently queued,
// starting at txStart and running to either txEnd (non-wrap case) or
// the buffer end (wrap case, continued on a later call). A partial
// write advances txStart by the amount written. ErrWouldBlock is
// reported, not an error, when w reports it made no progress.
func (f *Framer) Flush(w io.Writer) (int, error) {
	if !f.HasPendingWrites() {
		return 0, nil
	}
	end := f.txEnd
	if f.txStart > f.txEnd || (f.txStart == f.txEnd && f.txPending) {
		// Wrapped or fully-wrapped-full: the contiguous run runs to the
		// buffer end; the remainder is picked up by a later Flush.
		end = TXCapacity
	}
	n, err := w.Write(f.tx[f.txStart:end])
	if n > 0 {
		f.txStart += n
		if f.txStart == TXCapacity {
			f.txStart = 0
		}
		if f.txStart == f.txEnd {
			f.txPending = false
			// Fully drained: reclaim the whole buffer at offset 0 instead
			// of leaving the cursors parked at a high-water mark, which
			// would otherwise starve the tail run for the ring's
			// remaining lifetime.
			f.txStart = 0
			f.txEnd = 0
		}
	}
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// FlushAll drains the TX ring completely, looping Flush until empty or
// an error occurs. Used by session destruction's bounded CLIENT_END
// drain (SPEC_FULL.md §9, resolved open question 3).
func (f *Framer) FlushAll(w io.Writer) error {
	for f.HasPendingWrites() {
		n, err := f.Flush(w)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil // writer reported no progress; stop rather than spin
		}
	}
	return nil
}

// MessageHandler is invoked once per fully decoded record. The payload
// slice aliases the RX buffer and is only valid for the duration of the
// call — Decode does not copy it, so a handler that retains the payload
// must copy it into its own storage first.
type MessageHandler func(rec protocol.Record) error

// Decode appends chunk to the RX buffer and delivers every complete
// record to handle, in arrival order, regardless of how chunk boundaries
// fall relative to record boundaries. A chunk larger than the free RX
// space is taken in pieces, decoding between them. It returns
// ErrInvalidMagic if a header's magic is wrong, without consuming any
// further input; it returns whatever handle returns, unmodified, stopping
// at the first error.
func (f *Framer) Decode(chunk []byte, handle MessageHandler) error {
	for {
		n := copy(f.rx[f.rxLen:], chunk)
		f.rxLen += n
		chunk = chunk[n:]
		if err := f.decodeBuffered(handle); err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if f.rxLen == RXCapacity {
			return errors.New("framing: rx buffer overflow")
		}
	}
}

func (f *Framer) decodeBuffered(handle MessageHandler) error {
	for f.rxLen >= protocol.HeaderSize {
		hdr := protocol.DecodeHeader(f.rx[:protocol.HeaderSize])
		if hdr.Magic != protocol.Magic {
			return ErrInvalidMagic
		}
		total := protocol.HeaderSize + int(hdr.Length)
		if f.rxLen < total {
			break
		}
		payload := f.rx[protocol.HeaderSize:total]
		if err := handle(protocol.Record{Type: hdr.Type, Payload: payload}); err != nil {
			return err
		}
		remaining := f.rxLen - total
		copy(f.rx[:remaining], f.rx[total:f.rxLen])
		f.rxLen = remaining
	}
	return nil
}

// RXLen returns the number of buffered-but-undecoded bytes. Exposed for
// the buffer-bounds property test (SPEC_FULL.md §8 invariant 3).
func (f *Framer) RXLen() int { return f.rxLen }

// TXPending returns the number of bytes queued for Flush. Exposed for
// the buffer-bounds property test.
func (f *Framer) TXPending() int { return f.txPendingBytes() }
