package sshpass

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// SourceKind identifies where a Credential comes from.
type SourceKind int

const (
	SourceStdin SourceKind = iota
	SourceFile
	SourceFD
	SourceLiteral
)

func (k SourceKind) String() string {
	switch k {
	case SourceStdin:
		return "stdin"
	case SourceFile:
		return "file"
	case SourceFD:
		return "fd"
	case SourceLiteral:
		return "literal"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// credentialChunk is the size of each read from a streaming source.
const credentialChunk = 40

// A Credential produces the line injected at a password prompt. The zero
// value reads from standard input.
type Credential struct {
	kind  SourceKind
	path  string
	r     io.Reader
	value string
}

func FromStdin() Credential { return Credential{kind: SourceStdin} }

// FromFile reads the first line of path. The file is opened anew for every
// injection.
func FromFile(path string) Credential { return Credential{kind: SourceFile, path: path} }

// FromFD reads from an already open descriptor. The Credential takes
// ownership of fd, which stays open while the Credential is reachable.
func FromFD(fd int) Credential {
	return Credential{kind: SourceFD, r: os.NewFile(uintptr(fd), fmt.Sprintf("<fd %d>", fd))}
}

// FromReader reads from r in the same way as a descriptor source.
func FromReader(r io.Reader) Credential { return Credential{kind: SourceFD, r: r} }

func FromLiteral(password string) Credential {
	return Credential{kind: SourceLiteral, value: password}
}

// FromEnv takes the credential from an environment variable, which is then
// removed so the child does not inherit it.
func FromEnv(name string) (Credential, error) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return Credential{}, fmt.Errorf("environment variable %s is not set: %w", name, ErrInvalidArguments)
	}
	os.Unsetenv(name)
	return FromLiteral(value), nil
}

func (c Credential) Kind() SourceKind { return c.kind }

// Write sends at most one line of the credential to dst, always terminated
// by exactly one newline.
func (c Credential) Write(dst io.Writer) error {
	var err error
	switch c.kind {
	case SourceStdin:
		err = writeStdin(dst)
	case SourceFD:
		err = writeLine(dst, c.r)
	case SourceFile:
		var f *os.File
		f, err = os.Open(c.path)
		if err == nil {
			err = writeLine(dst, f)
			f.Close()
		}
	case SourceLiteral:
		_, err = io.WriteString(dst, c.value)
	}
	if _, werr := dst.Write([]byte{'\n'}); err == nil {
		err = werr
	}
	return err
}

func writeStdin(dst io.Writer) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return writeLine(dst, os.Stdin)
	}
	line, err := term.ReadPassword(fd)
	if err != nil {
		return err
	}
	_, err = dst.Write(line)
	return err
}

// writeLine copies src to dst up to the first newline. Anything read past
// the newline is dropped.
func writeLine(dst io.Writer, src io.Reader) error {
	buf := make([]byte, credentialChunk)
	for {
		n, rerr := src.Read(buf)
		chunk := buf[:n]
		i := bytes.IndexByte(chunk, '\n')
		if i >= 0 {
			chunk = chunk[:i]
		}
		if len(chunk) > 0 {
			if _, err := dst.Write(chunk); err != nil {
				return err
			}
		}
		switch {
		case i >= 0, rerr == io.EOF, n == 0 && rerr == nil:
			return nil
		case rerr != nil:
			return rerr
		}
	}
}
