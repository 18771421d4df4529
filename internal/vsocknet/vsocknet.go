// Package vsocknet provides a minimal AF_VSOCK Listener/Conn pair built
// directly on golang.org/x/sys/unix, the way
// runZeroInc-sockstats/pkg/linux/tcpinfo.go wraps raw socket syscalls in
// a small typed Go API. The standard library's net package has no
// AF_VSOCK support, so this is the transport's one genuinely leaf-level
// syscall package.
package vsocknet

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// ListenBacklog matches spec.md §6: backlog 5.
const ListenBacklog = 5

// Listener accepts AF_VSOCK stream connections on a fixed port, CID=ANY.
type Listener struct {
	fd   int
	port uint32
}

// Listen opens a listening AF_VSOCK socket bound to VMADDR_CID_ANY:port.
func Listen(port uint32) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("vsocknet: socket: %w", err)
	}
	sa := &unix.SockaddrVM{CID: unix.VMADDR_CID_ANY, Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("vsocknet: bind port %d: %w", port, err)
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("vsocknet: listen: %w", err)
	}
	return &Listener{fd: fd, port: port}, nil
}

// Accept blocks until a connection arrives and returns it along with the
// connecting peer's CID.
func (l *Listener) Accept() (*Conn, uint32, error) {
	for {
		nfd, sa, err := unix.Accept(l.fd)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, 0, fmt.Errorf("vsocknet: accept: %w", err)
		}
		vm, ok := sa.(*unix.SockaddrVM)
		if !ok {
			unix.Close(nfd)
			return nil, 0, fmt.Errorf("vsocknet: accept returned non-vsock peer address %T", sa)
		}
		return &Conn{fd: nfd}, vm.CID, nil
	}
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Dial connects to (cid, port) as an AF_VSOCK stream client.
func Dial(cid, port uint32) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("vsocknet: socket: %w", err)
	}
	sa := &unix.SockaddrVM{CID: cid, Port: port}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("vsocknet: connect cid=%d port=%d: %w", cid, port, err)
	}
	return &Conn{fd: fd}, nil
}

// Conn is a single AF_VSOCK stream connection. It implements
// io.ReadWriteCloser and retries on EINTR, matching spec.md §7's
// signal-induced error handling (restart the blocked call).
type Conn struct {
	fd int
}

// Fd returns the underlying file descriptor, for ioctl use (window size).
func (c *Conn) Fd() int { return c.fd }

func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return n, err
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

func (c *Conn) Close() error {
	return unix.Close(c.fd)
}
