// Package session implements the server-side per-connection state
// machine: mode transitions, PTY lifecycle, and the file transfer
// handlers, grounded on
// _examples/original_source/server/terminal_server.c and
// _examples/original_source/server/file_transfer_server.c, with the
// concurrency shape (one goroutine per I/O source, mutex-guarded shared
// state) grounded on internal/egg/server.go's readPTY/cmd.Wait pattern.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/logging"
	"github.com/vsockshell/vsockshell/internal/metrics"
	"github.com/vsockshell/vsockshell/internal/protocol"
	"github.com/vsockshell/vsockshell/internal/ptyproc"
)

// Mode is a session's bound purpose. It is set exactly once.
type Mode int

const (
	ModeUnbound Mode = iota
	ModeBash
	ModeCmd
	ModeUploadSink
	ModeDownloadSource
)

func (m Mode) String() string {
	switch m {
	case ModeUnbound:
		return "UNBOUND"
	case ModeBash:
		return "BASH"
	case ModeCmd:
		return "CMD"
	case ModeUploadSink:
		return "UPLOAD_SINK"
	case ModeDownloadSource:
		return "DOWNLOAD_SOURCE"
	default:
		return "?"
	}
}

// Conn is the minimal transport a Session needs. vsocknet.Conn and
// net.Conn (used by tests) both satisfy it.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

var errProtocolViolation = errors.New("session: protocol violation")
var errShutdown = errors.New("session: server shutting down")

// Session is all state associated with one accepted connection,
// matching the ClientSession struct in
// original_source/server/terminal_server.h field for field.
type Session struct {
	ID      string
	PeerCID uint32

	mu      sync.Mutex
	conn    Conn
	framer  *framing.Framer
	mode    Mode
	proc    *ptyproc.Process // set in BASH/CMD
	file    *os.File         // set in UPLOAD_SINK/DOWNLOAD_SOURCE
	filePath string
	transferBeginSent bool

	metrics *metrics.Collector
	reg     *Registry

	prev, next *Session // registry links; owned by Registry

	destroyOnce sync.Once
	destroyed   chan struct{}
}

// New creates a session bound to an accepted connection. It does not
// start any goroutines; call Run for that.
func New(conn Conn, peerCID uint32, m *metrics.Collector) *Session {
	return &Session{
		ID:        uuid.NewString(),
		PeerCID:   peerCID,
		conn:      conn,
		framer:    framing.New(),
		mode:      ModeUnbound,
		metrics:   m,
		destroyed: make(chan struct{}),
	}
}

// Run adds s to reg and starts its socket-reader goroutine. It returns
// immediately; the session tears itself down when the connection or its
// child process ends.
func (s *Session) Run(reg *Registry) {
	s.reg = reg
	reg.Add(s)
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	go s.readSocketLoop()
}

func (s *Session) log(msg string, args ...any) {
	logging.Info(msg, append([]any{"session", s.ID, "peer_cid", s.PeerCID}, args...)...)
}

func (s *Session) readSocketLoop() {
	buf := make([]byte, protocol.MaxPayload)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if derr := s.decodeAndDispatch(buf[:n]); derr != nil {
				s.log("protocol error", "err", derr)
				if s.metrics != nil {
					s.metrics.ProtocolViolation()
				}
				s.Destroy(derr)
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				s.log("client closed connection")
			} else {
				s.log("socket read error", "err", err)
			}
			s.Destroy(err)
			return
		}
	}
}

func (s *Session) decodeAndDispatch(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framer.Decode(chunk, s.dispatchLocked)
}

// dispatchLocked runs with s.mu held; it is the Decode MessageHandler.
func (s *Session) dispatchLocked(rec protocol.Record) error {
	switch rec.Type {
	case protocol.TypeOpenBash:
		return s.handleOpenBashLocked()
	case protocol.TypeOpenCmd:
		return s.handleOpenCmdLocked(rec.Payload)
	case protocol.TypeWindowSize:
		return s.handleWindowSizeLocked(rec.Payload)
	case protocol.TypeClientData:
		return s.handleClientDataLocked(rec.Payload)
	case protocol.TypeFileUploadStart:
		return s.handleUploadStartLocked(rec.Payload)
	case protocol.TypeFileDownloadStart:
		return s.handleDownloadStartLocked(rec.Payload)
	case protocol.TypeFileData:
		return s.handleFileDataLocked(rec.Payload)
	case protocol.TypeFileDataEnd:
		return s.handleFileDataEndLocked()
	default:
		return fmt.Errorf("%w: unexpected record type %v in mode %v", errProtocolViolation, rec.Type, s.mode)
	}
}

func (s *Session) handleOpenBashLocked() error {
	if s.mode != ModeUnbound {
		return fmt.Errorf("%w: OPEN_BASH outside UNBOUND", errProtocolViolation)
	}
	proc, err := ptyproc.SpawnBash(24, 80)
	if err != nil {
		return fmt.Errorf("spawn bash: %w", err)
	}
	s.proc = proc
	s.mode = ModeBash
	go s.readPTYLoop(proc)
	go s.reapLoop(proc)
	return nil
}

func (s *Session) handleOpenCmdLocked(payload []byte) error {
	if s.mode != ModeUnbound {
		return fmt.Errorf("%w: OPEN_CMD outside UNBOUND", errProtocolViolation)
	}
	cmd := nulTerminatedString(payload)
	proc, err := ptyproc.SpawnCmd(cmd, 24, 80)
	if err != nil {
		return fmt.Errorf("spawn cmd: %w", err)
	}
	s.proc = proc
	s.mode = ModeCmd
	go s.readPTYLoop(proc)
	go s.reapLoop(proc)
	return nil
}

func (s *Session) handleWindowSizeLocked(payload []byte) error {
	if s.mode != ModeBash && s.mode != ModeCmd {
		return fmt.Errorf("%w: WINDOW_SIZE outside a PTY session", errProtocolViolation)
	}
	ws, err := protocol.DecodeWindowSize(payload)
	if err != nil {
		return err
	}
	return ptyproc.SetWinsize(s.proc.Master, ws.Rows, ws.Cols, ws.XPixel, ws.YPixel)
}

func (s *Session) handleClientDataLocked(payload []byte) error {
	if s.mode != ModeBash && s.mode != ModeCmd {
		return fmt.Errorf("%w: CLIENT_DATA outside a PTY session", errProtocolViolation)
	}
	n, err := s.proc.Master.Write(payload)
	if err != nil {
		// Matches spec.md §7: partial/failed PTY writes are logged, not retried.
		s.log("pty write error", "err", err)
		return nil
	}
	if n < len(payload) {
		s.log("partial pty write", "wrote", n, "want", len(payload))
	}
	if s.metrics != nil {
		s.metrics.BytesUp(n)
	}
	return nil
}

// readPTYLoop pumps PTY output into PTY_DATA records. It runs until the
// PTY closes (child exited) or the session is destroyed.
func (s *Session) readPTYLoop(proc *ptyproc.Process) {
	buf := make([]byte, protocol.MaxPayload)
	for {
		n, err := proc.Master.Read(buf)
		if n > 0 {
			s.enqueueAndFlush(protocol.Record{Type: protocol.TypePTYData, Payload: buf[:n]})
			if s.metrics != nil {
				s.metrics.BytesDown(n)
			}
		}
		if err != nil {
			s.Destroy(nil) // child exited or PTY closed; not a protocol error
			return
		}
	}
}

// reapLoop blocks on the child's exit. In the original C server this is
// SIGCHLD-plus-waitpid(WNOHANG) swept from the main loop; in Go,
// exec.Cmd.Wait already blocks a dedicated goroutine until the child
// exits, which is the same pattern internal/egg/server.go uses to
// supervise its own child processes, so no signal handling is needed.
func (s *Session) reapLoop(proc *ptyproc.Process) {
	_ = proc.Cmd.Wait()
	s.Destroy(nil)
}

// enqueueAndFlush is the shared producer helper: enqueue one record and
// flush immediately. In Go's blocking-I/O model this is the direct
// analog of "enqueue, then let the main loop's single flush-per-tick
// drain it" from spec.md §4.2 — here each producer drives its own flush
// since there is no shared tick.
func (s *Session) enqueueAndFlush(rec protocol.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.framer.Enqueue(rec); err != nil {
		s.log("enqueue failed, dropping record", "type", rec.Type, "err", err)
		return
	}
	if _, err := s.framer.Flush(s.conn); err != nil {
		s.log("flush error", "err", err)
	}
}

func nulTerminatedString(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		return string(payload[:i])
	}
	return string(payload)
}

// Destroy tears the session down exactly once: emits CLIENT_END, drains
// the TX ring, closes the PTY/file/child/socket, and unlinks from the
// registry. reason is logged but never changes behavior; it may be nil
// for a clean end (child exit).
func (s *Session) Destroy(reason error) {
	s.destroyOnce.Do(func() {
		s.destroyLocked(reason)
		close(s.destroyed)
	})
}

func (s *Session) destroyLocked(reason error) {
	s.mu.Lock()
	_ = s.framer.Enqueue(protocol.Record{Type: protocol.TypeClientEnd})
	_ = s.framer.FlushAll(s.conn) // bounded by the conn's own I/O, resolved open question 3
	mode := s.mode
	proc := s.proc
	file := s.file
	s.proc = nil
	s.file = nil
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Signal()
		proc.Master.Close()
	}
	if file != nil {
		file.Close()
	}
	s.conn.Close()
	if s.reg != nil {
		s.reg.Remove(s)
	}

	if reason != nil {
		s.log("session destroyed", "mode", mode, "reason", reason)
	} else {
		s.log("session destroyed", "mode", mode)
	}
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
}

// Wait blocks until the session has been destroyed.
func (s *Session) Wait() { <-s.destroyed }

// humanizeBytes is a tiny indirection so upload/download.go's log lines
// read naturally without importing go-humanize in three places.
func humanizeBytes(n int64) string { return humanize.Bytes(uint64(n)) }
