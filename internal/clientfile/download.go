package clientfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/protocol"
)

func validateDownloadPath(remotePath, localDir string) (string, error) {
	st, err := os.Stat(localDir)
	if err != nil {
		return "", fmt.Errorf("local directory '%s' does not exist", localDir)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("'%s' is not a directory", localDir)
	}
	localFull := filepath.Join(localDir, filepath.Base(remotePath))
	if _, err := os.Stat(localFull); err == nil {
		return "", fmt.Errorf("local file '%s' already exists", localFull)
	}
	return localFull, nil
}

// Download fetches remotePath into localDir over conn and blocks until
// the transfer completes or fails.
func Download(conn Conn, remotePath, localDir string) error {
	localFull, err := validateDownloadPath(remotePath, localDir)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(localFull, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create '%s': %w", localFull, err)
	}

	framer := framing.New()
	send(framer, conn, protocol.Record{
		Type:    protocol.TypeFileDownloadStart,
		Payload: append([]byte(remotePath+" "+localFull), 0),
	})

	done := make(chan error, 1)
	writeErr := error(nil)

	go func() {
		buf := make([]byte, protocol.MaxPayload)
		for {
			n, rerr := conn.Read(buf)
			if n > 0 {
				if derr := framer.Decode(buf[:n], func(rec protocol.Record) error {
					switch rec.Type {
					case protocol.TypeFileReadyRecv:
						reply := nulTerminated(rec.Payload)
						if !replyIsOK(reply) {
							return fmt.Errorf("server rejected download: %s", reply)
						}
					case protocol.TypeFileData:
						if writeErr != nil {
							return nil
						}
						if _, werr := f.Write(rec.Payload); werr != nil {
							writeErr = werr
						}
					case protocol.TypeFileDataEnd:
						send(framer, conn, protocol.Record{Type: protocol.TypeFileDataEndAck})
						if writeErr != nil {
							return writeErr
						}
						done <- nil
					}
					return nil
				}); derr != nil {
					done <- derr
					return
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					rerr = fmt.Errorf("connection closed before transfer completed")
				}
				done <- rerr
				return
			}
		}
	}()

	err = <-done
	closeErr := f.Close()
	if err != nil {
		os.Remove(localFull)
		return err
	}
	return closeErr
}
