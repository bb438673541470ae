//go:build windows
// +build windows

package sshpass

import (
	"errors"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ptyimpl is a ConPTY pseudoconsole. The child's console is the
// pseudoconsole itself, so all of its output is read through the master.
type ptyimpl struct {
	in  *os.File // our end of the console input pipe
	out *os.File // our end of the console output pipe
	con windows.Handle
}

func openPTY() (*ptyimpl, error) {
	var ptyIn, ptsIn windows.Handle
	if err := windows.CreatePipe(&ptsIn, &ptyIn, nil, 0); err != nil {
		return nil, &os.SyscallError{Syscall: "CreatePipe", Err: err}
	}
	var ptyOut, ptsOut windows.Handle
	if err := windows.CreatePipe(&ptyOut, &ptsOut, nil, 0); err != nil {
		windows.CloseHandle(ptyIn)
		windows.CloseHandle(ptsIn)
		return nil, &os.SyscallError{Syscall: "CreatePipe", Err: err}
	}
	// The pseudoconsole duplicates the slave ends; ours are not needed after.
	defer windows.CloseHandle(ptsIn)
	defer windows.CloseHandle(ptsOut)

	winsz := windows.Coord{X: 80, Y: 24}
	if cols, rows, ok := consoleSize(); ok {
		winsz = windows.Coord{X: int16(cols), Y: int16(rows)}
	}

	var con windows.Handle
	if err := windows.CreatePseudoConsole(winsz, ptsIn, ptsOut, 0, &con); err != nil {
		windows.CloseHandle(ptyIn)
		windows.CloseHandle(ptyOut)
		return nil, &os.SyscallError{Syscall: "CreatePseudoConsole", Err: err}
	}

	return &ptyimpl{
		in:  os.NewFile(uintptr(ptyIn), "<pty input>"),
		out: os.NewFile(uintptr(ptyOut), "<pty output>"),
		con: con,
	}, nil
}

func (p *ptyimpl) Read(b []byte) (int, error)  { return p.out.Read(b) }
func (p *ptyimpl) Write(b []byte) (int, error) { return p.in.Write(b) }

// SetReadDeadline fails on the anonymous output pipe, which is not pollable.
func (p *ptyimpl) SetReadDeadline(t time.Time) error { return p.out.SetReadDeadline(t) }

// Hangup is a no-op: the pseudoconsole owns the child side.
func (p *ptyimpl) Hangup() error { return nil }

// Start creates the child attached to the pseudoconsole. os.StartProcess has
// no way to pass a pseudoconsole, so CreateProcess is called directly.
func (p *ptyimpl) Start(cmd *exec.Cmd) (waitFunc, error) {
	attrlist, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, &os.SyscallError{Syscall: "NewProcThreadAttributeList", Err: err}
	}
	defer attrlist.Delete()

	err = attrlist.Update(
		windows.PROC_THREAD_ATTRIBUTE_PSEUDOCONSOLE,
		unsafe.Pointer(p.con),
		unsafe.Sizeof(p.con),
	)
	if err != nil {
		return nil, &os.SyscallError{Syscall: "UpdateProcThreadAttributeList", Err: err}
	}

	if cmd.Err != nil {
		return nil, cmd.Err
	}
	progname, err := windows.UTF16PtrFromString(cmd.Path)
	if err != nil {
		return nil, err
	}
	cmdline, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(cmd.Args))
	if err != nil {
		return nil, err
	}
	var workdir *uint16
	if cmd.Dir != "" {
		if workdir, err = windows.UTF16PtrFromString(cmd.Dir); err != nil {
			return nil, err
		}
	}

	var envblock []uint16
	for _, e := range cmd.Env {
		env, err := windows.UTF16FromString(e)
		if err != nil {
			return nil, err
		}
		envblock = append(envblock, env...)
	}
	var envp *uint16
	var flags uint32 = windows.EXTENDED_STARTUPINFO_PRESENT
	if len(envblock) > 0 {
		envblock = append(envblock, 0)
		envp = &envblock[0]
		flags |= windows.CREATE_UNICODE_ENVIRONMENT
	}

	var siex windows.StartupInfoEx
	siex.Cb = uint32(unsafe.Sizeof(siex))
	siex.ProcThreadAttributeList = attrlist.List()

	var procinfo windows.ProcessInformation
	err = windows.CreateProcess(progname, cmdline, nil, nil, false, flags, envp, workdir, &siex.StartupInfo, &procinfo)
	if err != nil {
		return nil, &os.SyscallError{Syscall: "CreateProcess", Err: err}
	}

	cmd.Process, err = os.FindProcess(int(procinfo.ProcessId))
	if err != nil {
		windows.CloseHandle(procinfo.Process)
		windows.CloseHandle(procinfo.Thread)
		return nil, err
	}

	wait := func() (int, error) {
		defer windows.CloseHandle(procinfo.Process)
		defer windows.CloseHandle(procinfo.Thread)
		if _, err := windows.WaitForSingleObject(procinfo.Process, windows.INFINITE); err != nil {
			return int(StatusSignaled), &os.SyscallError{Syscall: "WaitForSingleObject", Err: err}
		}
		var exit uint32
		if err := windows.GetExitCodeProcess(procinfo.Process, &exit); err != nil {
			return int(StatusSignaled), &os.SyscallError{Syscall: "GetExitCodeProcess", Err: err}
		}
		return int(exit), nil
	}
	return wait, nil
}

func (p *ptyimpl) Resize(width, height int) error {
	if width < 0 || width > math.MaxInt16 || height < 0 || height > math.MaxInt16 {
		return strconv.ErrRange
	}
	return windows.ResizePseudoConsole(p.con, windows.Coord{X: int16(width), Y: int16(height)})
}

func (p *ptyimpl) InheritSize() error {
	cols, rows, ok := consoleSize()
	if !ok {
		return nil
	}
	return p.Resize(cols, rows)
}

func (p *ptyimpl) HasTTY() bool {
	_, _, ok := consoleSize()
	return ok
}

func (p *ptyimpl) Close() error {
	defer windows.ClosePseudoConsole(p.con)
	return errors.Join(p.in.Close(), p.out.Close())
}

// consoleSize reports the visible window of our own console, if any.
func consoleSize() (cols, rows int, ok bool) {
	var info windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Handle(os.Stdout.Fd()), &info); err != nil {
		return 0, 0, false
	}
	cols = int(info.Window.Right-info.Window.Left) + 1
	rows = int(info.Window.Bottom-info.Window.Top) + 1
	return cols, rows, cols > 0 && rows > 0
}
