//go:build windows
// +build windows

package sshpass

import (
	"os"
)

var forwardedSignals = []os.Signal{os.Interrupt}

// Windows has no resize signal; the pseudoconsole keeps its initial size.
func notifyResize(c chan<- os.Signal) {}
