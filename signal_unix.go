//go:build unix
// +build unix

package sshpass

import (
	"os"
	"os/signal"
	"syscall"
)

// forwardedSignals are relayed to the child when Config.ForwardSignals is
// set. The child runs in its own session and would not otherwise see them.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

func notifyResize(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGWINCH)
}
