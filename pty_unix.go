//go:build unix
// +build unix

package sshpass

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/creack/pty"
)

type ptyimpl struct {
	*os.File // master

	slave *os.File
	// ourtty is the controller's own controlling terminal, nil if it has none.
	ourtty *os.File
}

// openPTY allocates a master, grants and unlocks its slave and opens the
// slave without making it our controlling terminal.
func openPTY() (*ptyimpl, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to get a pseudo terminal: %w", err)
	}
	p := &ptyimpl{File: master, slave: slave}
	if tty, err := os.Open("/dev/tty"); err == nil {
		p.ourtty = tty
	}
	return p, nil
}

// Start runs cmd in a new session whose controlling terminal is the slave.
// The command's standard streams are left as the caller configured them, so
// only what the child writes to /dev/tty reaches the master.
func (p *ptyimpl) Start(cmd *exec.Cmd) (waitFunc, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, p.slave)
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Ctty = 2 + len(cmd.ExtraFiles)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to run command: %w", err)
	}
	wait := func() (int, error) {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = nil
		}
		if cmd.ProcessState == nil {
			return int(StatusSignaled), err
		}
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code, err
		}
		return int(StatusSignaled), err
	}
	return wait, nil
}

func (p *ptyimpl) Resize(width, height int) error {
	if width < 0 || width > math.MaxUint16 || height < 0 || height > math.MaxUint16 {
		return strconv.ErrRange
	}
	return pty.Setsize(p.File, &pty.Winsize{Rows: uint16(height), Cols: uint16(width)})
}

// InheritSize copies the size of our controlling terminal to the master.
// Without a controlling terminal this is a no-op.
func (p *ptyimpl) InheritSize() error {
	if p.ourtty == nil {
		return nil
	}
	return pty.InheritSize(p.ourtty, p.File)
}

func (p *ptyimpl) HasTTY() bool { return p.ourtty != nil }

// Hangup closes our copy of the slave. Reads of the master then fail with EIO
// once no process has the terminal open.
func (p *ptyimpl) Hangup() error {
	if p.slave == nil {
		return nil
	}
	err := p.slave.Close()
	p.slave = nil
	return err
}

// Close closes both sides of the pair, which hangs up the child's terminal.
func (p *ptyimpl) Close() error {
	err := errors.Join(p.File.Close(), p.Hangup())
	if p.ourtty != nil {
		p.ourtty.Close()
	}
	return err
}
