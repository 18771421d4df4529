// Package ptyproc spawns the shell or one-shot command behind a
// session's pseudo-terminal, using github.com/creack/pty the same way
// internal/egg/server.go in the teacher repo does for its own sessions.
package ptyproc

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// FixedPATH is the environment handed to every spawned shell, per
// SPEC_FULL.md's supplemented-features note: no trailing colon, no
// inheritance from the server's own PATH.
const FixedPATH = "/usr/sbin:/usr/bin:/sbin:/bin"

// FixedEnv builds the environment for a spawned shell: HOME (falling
// back to /root if unset in the server's own environment), a fixed
// PATH, TERM=xterm, and SHELL=/bin/bash.
func FixedEnv() []string {
	home := os.Getenv("HOME")
	if home == "" {
		home = "/root"
	}
	return []string{
		"HOME=" + home,
		"PATH=" + FixedPATH,
		"TERM=xterm",
		"SHELL=/bin/bash",
	}
}

// Process is a spawned shell attached to its PTY master.
type Process struct {
	Master *os.File
	Cmd    *exec.Cmd
}

// SpawnBash starts an interactive /bin/bash behind a new PTY, sized to
// rows x cols.
func SpawnBash(rows, cols uint16) (*Process, error) {
	return spawn(nil, rows, cols)
}

// SpawnCmd starts `/bin/bash -c cmd` behind a new PTY, sized to rows x cols.
func SpawnCmd(cmd string, rows, cols uint16) (*Process, error) {
	return spawn([]string{"-c", cmd}, rows, cols)
}

func spawn(args []string, rows, cols uint16) (*Process, error) {
	c := exec.Command("/bin/bash", args...)
	c.Env = FixedEnv()
	master, err := pty.StartWithSize(c, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("ptyproc: spawn: %w", err)
	}
	return &Process{Master: master, Cmd: c}, nil
}

// SetWinsize applies a new window size to a live PTY master.
func SetWinsize(master *os.File, rows, cols, xpixel, ypixel uint16) error {
	return pty.Setsize(master, &pty.Winsize{Rows: rows, Cols: cols, X: xpixel, Y: ypixel})
}

// Winsize reads the current window size of fd (used on the client to
// query the controlling terminal via TIOCGWINSZ).
func Winsize(fd int) (rows, cols, xpixel, ypixel uint16, err error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("ptyproc: TIOCGWINSZ: %w", err)
	}
	return ws.Row, ws.Col, ws.Xpixel, ws.Ypixel, nil
}

// Signal delivers SIGTERM to the spawned process's process group leader.
func (p *Process) Signal() error {
	if p.Cmd.Process == nil {
		return nil
	}
	return p.Cmd.Process.Signal(unix.SIGTERM)
}
