package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/protocol"
)

// validateDownloadSrc mirrors file_transfer_server.c's validate_download_request.
func validateDownloadSrc(src string) error {
	st, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source file '%s' does not exist", src)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("'%s' is not a regular file", src)
	}
	return nil
}

func (s *Session) handleDownloadStartLocked(payload []byte) error {
	if s.mode != ModeUnbound {
		return fmt.Errorf("%w: FILE_DOWNLOAD_START outside UNBOUND", errProtocolViolation)
	}
	src, dest, ok := parseTwoPaths(payload)
	if !ok {
		s.replyLocked(protocol.TypeFileReadyRecv, "KO malformed download request")
		return nil
	}
	if err := validateDownloadSrc(src); err != nil {
		s.replyLocked(protocol.TypeFileReadyRecv, "KO "+err.Error())
		return nil
	}
	f, err := os.Open(src)
	if err != nil {
		s.replyLocked(protocol.TypeFileReadyRecv, fmt.Sprintf("KO failed to open file: %v", err))
		return nil
	}
	s.file = f
	s.filePath = src
	s.mode = ModeDownloadSource
	s.replyLocked(protocol.TypeFileReadyRecv, fmt.Sprintf("OK %s %s", src, dest))
	go s.downloadProducerLoop()
	return nil
}

// sendFileRecordLocked enqueues one record, flushing and retrying once if
// the TX ring has no contiguous run free for it. Unlike PTY output, a
// FILE_DATA chunk that fails to enqueue must never be silently dropped
// (spec.md §7) — a dropped chunk leaves the receiver with a file that
// looks complete (FILE_DATA_END still arrives) but isn't.
func (s *Session) sendFileRecordLocked(rec protocol.Record) error {
	if err := s.framer.Enqueue(rec); err != nil {
		if !errors.Is(err, framing.ErrBufferFull) {
			return err
		}
		if _, ferr := s.framer.Flush(s.conn); ferr != nil {
			return ferr
		}
		if err := s.framer.Enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// downloadProducerLoop is the server-side half of spec.md §4.3: it
// enqueues FILE_DATA_BEGIN once, then streams the file in up to
// 4096-byte chunks, yielding whenever the TX ring is saturated. There is
// no shared per-tick "flush everything" loop to re-enter it the way the
// original select() loop does, so it polls its own backpressure with a
// short sleep instead — functionally the same cooperative yield, just
// self-scheduled rather than driven by an external event loop. Nothing
// else drains a DOWNLOAD_SOURCE session's conn, so the yield flushes
// first: otherwise a saturated ring would never un-saturate.
func (s *Session) downloadProducerLoop() {
	buf := make([]byte, protocol.MaxPayload)
	for {
		s.mu.Lock()
		if s.mode != ModeDownloadSource || s.file == nil {
			s.mu.Unlock()
			return
		}
		if s.framer.Saturated() {
			_, flushErr := s.framer.Flush(s.conn)
			s.mu.Unlock()
			if flushErr != nil {
				s.log("download flush error", "err", flushErr)
				s.Destroy(flushErr)
				return
			}
			if s.metrics != nil {
				s.metrics.SaturationTrip()
			}
			time.Sleep(2 * time.Millisecond)
			continue
		}
		if !s.transferBeginSent {
			if err := s.sendFileRecordLocked(protocol.Record{Type: protocol.TypeFileDataBegin}); err != nil {
				s.file.Close()
				s.file = nil
				s.mu.Unlock()
				s.Destroy(err)
				return
			}
			s.transferBeginSent = true
		}
		n, err := s.file.Read(buf)
		if n > 0 {
			if serr := s.sendFileRecordLocked(protocol.Record{Type: protocol.TypeFileData, Payload: buf[:n]}); serr != nil {
				s.file.Close()
				s.file = nil
				s.mu.Unlock()
				s.Destroy(serr)
				return
			}
			if s.metrics != nil {
				s.metrics.BytesDown(n)
			}
		}
		if err == io.EOF {
			endErr := s.sendFileRecordLocked(protocol.Record{Type: protocol.TypeFileDataEnd})
			size := "unknown"
			if info, statErr := s.file.Stat(); statErr == nil {
				size = humanizeBytes(info.Size())
			}
			s.file.Close()
			s.file = nil
			_, flushErr := s.framer.Flush(s.conn)
			s.mu.Unlock()
			if endErr != nil {
				s.log("download end-marker error", "err", endErr)
				s.Destroy(endErr)
				return
			}
			if flushErr != nil {
				s.log("download flush error", "err", flushErr)
			}
			s.log("download complete", "path", s.filePath, "size", size)
			return
		}
		if err != nil {
			s.log("download read error", "err", err)
			s.file.Close()
			s.file = nil
			s.mu.Unlock()
			s.Destroy(err)
			return
		}
		_, flushErr := s.framer.Flush(s.conn)
		s.mu.Unlock()
		if flushErr != nil {
			s.log("download flush error", "err", flushErr)
		}
	}
}
