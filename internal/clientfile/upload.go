// Package clientfile drives upload/download transfers from the client
// side, grounded on
// _examples/original_source/client/file_transfer_client.c with the
// select() loop translated into goroutines the way internal/clientshell
// and internal/session do on their sides of the wire.
package clientfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/logging"
	"github.com/vsockshell/vsockshell/internal/protocol"
)

// Conn is the minimal transport Upload/Download need.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// replyIsOK implements SPEC_FULL.md §9's resolved open question 1: the
// original's strncmp(response, "OK", 2) would also accept "OKAY" or a
// path that happens to start with those two letters. The reply grammar
// is always "OK <src> <dest>" or "KO <reason>", so an exact first-token
// match is both stricter and just as simple.
func replyIsOK(reply string) bool {
	token, _, _ := strings.Cut(reply, " ")
	return token == "OK"
}

func nulTerminated(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func validateUploadPath(localPath, remoteDir string) (string, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("local file '%s' does not exist", localPath)
	}
	if !st.Mode().IsRegular() {
		return "", fmt.Errorf("'%s' is not a regular file", localPath)
	}
	return remoteDir + "/" + filepath.Base(localPath), nil
}

// Upload sends localPath to remoteDir over conn and blocks until the
// transfer completes or fails.
func Upload(conn Conn, localPath, remoteDir string) error {
	remoteFull, err := validateUploadPath(localPath, remoteDir)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open '%s': %w", localPath, err)
	}
	defer f.Close()

	framer := framing.New()
	send(framer, conn, protocol.Record{
		Type:    protocol.TypeFileUploadStart,
		Payload: append([]byte(localPath+" "+remoteFull), 0),
	})

	done := make(chan error, 1)
	readyCh := make(chan error, 1)

	go func() {
		buf := make([]byte, protocol.MaxPayload)
		for {
			n, rerr := conn.Read(buf)
			if n > 0 {
				if derr := framer.Decode(buf[:n], func(rec protocol.Record) error {
					switch rec.Type {
					case protocol.TypeFileReadySend:
						reply := nulTerminated(rec.Payload)
						if replyIsOK(reply) {
							readyCh <- nil
						} else {
							readyCh <- fmt.Errorf("server rejected upload: %s", reply)
						}
					case protocol.TypeFileDataEndAck:
						done <- nil
					}
					return nil
				}); derr != nil {
					done <- derr
					return
				}
			}
			if rerr != nil {
				done <- rerr
				return
			}
		}
	}()

	if err := <-readyCh; err != nil {
		return err
	}
	if err := sendFileData(framer, conn, f); err != nil {
		return err
	}
	return <-done
}

// sendFileRecord enqueues one record, flushing and retrying once if the
// TX ring has no contiguous run free for it. A FILE_DATA chunk (or its
// begin/end markers) must never be silently dropped — unlike send, which
// is only used for records the other side can do without.
func sendFileRecord(framer *framing.Framer, conn Conn, rec protocol.Record) error {
	if err := framer.Enqueue(rec); err != nil {
		if !errors.Is(err, framing.ErrBufferFull) {
			return err
		}
		if ferr := framer.FlushAll(conn); ferr != nil {
			return ferr
		}
		if err := framer.Enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// sendFileData mirrors file_transfer_client.c's send_file_data: a begin
// marker, the file in up to-4096-byte chunks, flushing whenever the ring
// is saturated or a chunk won't fit, then an end marker.
func sendFileData(framer *framing.Framer, conn Conn, f *os.File) error {
	if err := sendFileRecord(framer, conn, protocol.Record{Type: protocol.TypeFileDataBegin}); err != nil {
		return err
	}
	buf := make([]byte, protocol.MaxPayload)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			rec := protocol.Record{Type: protocol.TypeFileData, Payload: buf[:n]}
			if serr := sendFileRecord(framer, conn, rec); serr != nil {
				return serr
			}
			if framer.Saturated() {
				if ferr := framer.FlushAll(conn); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			if serr := sendFileRecord(framer, conn, protocol.Record{Type: protocol.TypeFileDataEnd}); serr != nil {
				return serr
			}
			return framer.FlushAll(conn)
		}
		if err != nil {
			return fmt.Errorf("read '%s': %w", f.Name(), err)
		}
	}
}

func send(f *framing.Framer, conn Conn, rec protocol.Record) {
	if err := f.Enqueue(rec); err != nil {
		logging.Debug("enqueue failed", "type", rec.Type, "err", err)
		return
	}
	if err := f.FlushAll(conn); err != nil {
		logging.Debug("flush failed", "err", err)
	}
}
