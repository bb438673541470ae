package sshpass

import (
	"io"
	"os/exec"
	"time"
)

// terminal is the controller's side of a pseudo-terminal pair. Writes reach
// the child as terminal input; reads return what the child wrote to its
// terminal.
type terminal interface {
	io.ReadWriteCloser
	Resize(width, height int) error
	InheritSize() error
	HasTTY() bool
	Start(cmd *exec.Cmd) (waitFunc, error)

	// SetReadDeadline bounds reads of the master. It fails where the master
	// does not support deadlines.
	SetReadDeadline(t time.Time) error

	// Hangup drops the controller's hold on the child side, so that reads
	// report end of stream once the child and its descendants are gone.
	Hangup() error
}

// waitFunc blocks until the child exits and returns its exit code, or
// StatusSignaled when it did not exit normally.
type waitFunc func() (int, error)

var _ terminal = (*ptyimpl)(nil)
