package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vsockshell/vsockshell/internal/protocol"
)

func parseTwoPaths(payload []byte) (a, b string, ok bool) {
	s := nulTerminatedString(payload)
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func (s *Session) replyLocked(typ protocol.Type, payload string) {
	_ = s.framer.Enqueue(protocol.Record{Type: typ, Payload: []byte(payload + "\x00")})
	_, _ = s.framer.Flush(s.conn)
}

// validateUploadDest mirrors file_transfer_server.c's validate_upload_request:
// it exists only to produce a friendlier KO message in the common case.
// The O_CREATE|O_EXCL open below is the sequence's actual, race-free
// guard (SPEC_FULL.md §9, resolved open question 2).
func validateUploadDest(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination '%s' already exists", dest)
	}
	dir := filepath.Dir(dest)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return fmt.Errorf("destination directory '%s' does not exist", dir)
	}
	return nil
}

func (s *Session) handleUploadStartLocked(payload []byte) error {
	if s.mode != ModeUnbound {
		return fmt.Errorf("%w: FILE_UPLOAD_START outside UNBOUND", errProtocolViolation)
	}
	src, dest, ok := parseTwoPaths(payload)
	if !ok {
		s.replyLocked(protocol.TypeFileReadySend, "KO malformed upload request")
		return nil
	}
	if err := validateUploadDest(dest); err != nil {
		s.replyLocked(protocol.TypeFileReadySend, "KO "+err.Error())
		return nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.replyLocked(protocol.TypeFileReadySend, fmt.Sprintf("KO failed to create file: %v", err))
		return nil
	}
	s.file = f
	s.filePath = dest
	s.mode = ModeUploadSink
	s.replyLocked(protocol.TypeFileReadySend, fmt.Sprintf("OK %s %s", src, dest))
	return nil
}

func (s *Session) handleFileDataLocked(payload []byte) error {
	if s.mode != ModeUploadSink {
		return fmt.Errorf("%w: FILE_DATA outside UPLOAD_SINK", errProtocolViolation)
	}
	n, err := s.file.Write(payload)
	if err != nil {
		return fmt.Errorf("upload write: %w", err)
	}
	if n < len(payload) {
		// Unlike PTY writes, a short file write is a hard protocol error
		// (spec.md §7): the upload would silently corrupt on disk otherwise.
		return fmt.Errorf("%w: partial upload write (%d of %d bytes)", errProtocolViolation, n, len(payload))
	}
	if s.metrics != nil {
		s.metrics.BytesUp(n)
	}
	return nil
}

func (s *Session) handleFileDataEndLocked() error {
	if s.mode != ModeUploadSink {
		return fmt.Errorf("%w: FILE_DATA_END outside UPLOAD_SINK", errProtocolViolation)
	}
	info, statErr := s.file.Stat()
	s.file.Close()
	s.file = nil
	if statErr == nil {
		s.log("upload complete", "path", s.filePath, "size", humanizeBytes(info.Size()))
	}
	_ = s.framer.Enqueue(protocol.Record{Type: protocol.TypeFileDataEndAck})
	_, _ = s.framer.Flush(s.conn)
	return nil
}
