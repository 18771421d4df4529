// Package clientshell drives one interactive-or-one-shot terminal
// session from the client side: it opens a BASH or CMD session, pumps
// stdin/socket/resize events, and restores the terminal on exit.
// Grounded on _examples/original_source/client/terminal_client.c, with
// select()'s three-way wait translated into goroutines the way
// internal/session/session.go does on the server side.
package clientshell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/logging"
	"github.com/vsockshell/vsockshell/internal/protocol"
	"github.com/vsockshell/vsockshell/internal/ptyproc"
)

// hideCursor / showCursor match terminal_client.c's ANSI escapes.
const (
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h\r\n"
)

// Conn is the minimal transport Run needs.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Run opens a terminal session over conn and blocks until the server
// ends it or stdin reaches EOF. cmd is empty for an interactive shell.
func Run(conn Conn, cmd string) error {
	interactive := cmd == ""
	framer := framing.New()

	if rows, cols, xp, yp, err := ptyproc.Winsize(int(os.Stdin.Fd())); err == nil {
		enqueueAndFlush(framer, conn, protocol.Record{
			Type:    protocol.TypeWindowSize,
			Payload: protocol.WindowSize{Rows: rows, Cols: cols, XPixel: xp, YPixel: yp}.Encode(),
		})
	} else {
		logging.Debug("could not query local window size", "err", err)
	}

	if interactive {
		openRec := protocol.Record{Type: protocol.TypeOpenBash}
		enqueueAndFlush(framer, conn, openRec)
	} else {
		enqueueAndFlush(framer, conn, protocol.Record{
			Type:    protocol.TypeOpenCmd,
			Payload: append([]byte(cmd), 0),
		})
	}

	var restore func()
	if interactive && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stdout, hideCursor)
		prev, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			logging.Debug("could not enter raw mode", "err", err)
		} else {
			restore = func() {
				term.Restore(int(os.Stdin.Fd()), prev)
				fmt.Fprint(os.Stdout, showCursor)
			}
		}
	}
	if restore == nil {
		restore = func() {}
	}
	defer restore()

	resize := make(chan os.Signal, 1)
	if interactive {
		signal.Notify(resize, unix.SIGWINCH)
		defer signal.Stop(resize)
	}

	done := make(chan error, 1)
	stdinData := make(chan []byte)
	stdinErr := make(chan error, 1)

	go func() {
		buf := make([]byte, protocol.MaxPayload)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				stdinData <- cp
			}
			if err != nil {
				stdinErr <- err
				return
			}
		}
	}()

	go func() {
		buf := make([]byte, protocol.MaxPayload)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if derr := framer.Decode(buf[:n], func(rec protocol.Record) error {
					switch rec.Type {
					case protocol.TypePTYData:
						os.Stdout.Write(rec.Payload)
					case protocol.TypeClientEnd:
						return errSessionEnded
					}
					return nil
				}); derr != nil {
					done <- derr
					return
				}
			}
			if err != nil {
				done <- err
				return
			}
		}
	}()

	for {
		select {
		case err := <-done:
			if err == errSessionEnded || err == io.EOF {
				return nil
			}
			return err
		case err := <-stdinErr:
			if err == io.EOF {
				return nil
			}
			return err
		case data := <-stdinData:
			enqueueAndFlush(framer, conn, protocol.Record{Type: protocol.TypeClientData, Payload: data})
		case <-resize:
			rows, cols, xp, yp, err := ptyproc.Winsize(int(os.Stdin.Fd()))
			if err != nil {
				continue
			}
			enqueueAndFlush(framer, conn, protocol.Record{
				Type:    protocol.TypeWindowSize,
				Payload: protocol.WindowSize{Rows: rows, Cols: cols, XPixel: xp, YPixel: yp}.Encode(),
			})
		}
	}
}

var errSessionEnded = errors.New("clientshell: session ended by server")

func enqueueAndFlush(f *framing.Framer, conn Conn, rec protocol.Record) {
	if err := f.Enqueue(rec); err != nil {
		logging.Debug("enqueue failed", "type", rec.Type, "err", err)
		return
	}
	if err := f.FlushAll(conn); err != nil {
		logging.Debug("flush failed", "err", err)
	}
}
