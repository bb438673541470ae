package sshpass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/shlex"
)

// verifyCommand is run remotely to check a password without side effects.
var verifyCommand = []string{"pwd>/dev/null", "2>&1"}

// Remote runs ssh against a target with a password answered automatically.
// The zero value is ready to use.
type Remote struct {
	// SSH is the client command line, split like a shell would. Empty means
	// "ssh".
	SSH string

	// SFTP is the file transfer client used by Transfer. Empty means "sftp".
	SFTP string

	// Options are passed as additional -o options.
	Options []string

	// ConnectTimeout is passed as ConnectTimeout in whole seconds, at least
	// one. Zero means 2s; negative leaves it to the client.
	ConnectTimeout time.Duration

	Logger *slog.Logger

	// Standard streams of the client. Nil means the controller's own.
	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

// Run executes command (or an interactive login when empty) on target, e.g.
// "root@192.0.2.1".
func (r *Remote) Run(ctx context.Context, target string, cred Credential, command string) Status {
	var args []string
	if command != "" {
		args = []string{command}
	}
	return r.run(ctx, target, cred, args)
}

// Verify runs a no-op on target to check that cred is accepted.
func (r *Remote) Verify(ctx context.Context, target string, cred Credential) Status {
	return r.run(ctx, target, cred, verifyCommand)
}

// Transfer runs the sftp commands read from batch (as with "sftp -b -") on
// target. The batch stops at the first failing command, which makes the
// client exit non-zero.
func (r *Remote) Transfer(ctx context.Context, target string, cred Credential, batch io.Reader) Status {
	argv, err := r.sftpArgv(target)
	if err != nil {
		return r.fail(err)
	}
	return r.exec(ctx, cred, argv, batch)
}

func (r *Remote) run(ctx context.Context, target string, cred Credential, remote []string) Status {
	argv, err := r.argv(target, remote)
	if err != nil {
		return r.fail(err)
	}
	return r.exec(ctx, cred, argv, r.Stdin)
}

func (r *Remote) fail(err error) Status {
	if r.Logger != nil {
		r.Logger.Error("building client command", "error", err)
	}
	return StatusOf(err)
}

func (r *Remote) exec(ctx context.Context, cred Credential, argv []string, stdin io.Reader) Status {
	cfg := Config{
		Credential: cred,
		Logger:     r.Logger,
		Stdin:      stdin,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return Run(ctx, cfg, argv[0], argv[1:]...)
}

func (r *Remote) argv(target string, remote []string) ([]string, error) {
	if target == "" {
		return nil, fmt.Errorf("no target given: %w", ErrInvalidArguments)
	}
	argv, err := splitClient(r.SSH, "ssh")
	if err != nil {
		return nil, err
	}
	argv = append(argv, target)
	argv = append(argv, r.options()...)
	return append(argv, remote...), nil
}

// sftpArgv puts every option before target, since sftp stops parsing
// options at the destination. "-b" implies BatchMode, which disables
// password authentication; ssh keeps the first value it is given for an
// option, so BatchMode=no has to come before it.
func (r *Remote) sftpArgv(target string) ([]string, error) {
	if target == "" {
		return nil, fmt.Errorf("no target given: %w", ErrInvalidArguments)
	}
	argv, err := splitClient(r.SFTP, "sftp")
	if err != nil {
		return nil, err
	}
	argv = append(argv, "-o", "BatchMode=no", "-b", "-")
	argv = append(argv, r.options()...)
	return append(argv, target), nil
}

func splitClient(cmdline, def string) ([]string, error) {
	if cmdline == "" {
		cmdline = def
	}
	argv, err := shlex.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("splitting %s command %q: %v: %w", def, cmdline, err, ErrInvalidArguments)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty %s command: %w", def, ErrInvalidArguments)
	}
	return argv, nil
}

func (r *Remote) options() []string {
	opts := []string{"-o", "StrictHostKeyChecking=no"}
	timeout := r.ConnectTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	if timeout > 0 {
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		opts = append(opts, "-o", fmt.Sprintf("ConnectTimeout=%d", secs))
	}
	for _, opt := range r.Options {
		opts = append(opts, "-o", opt)
	}
	return opts
}

// RunCommand runs command on target with password, using ssh from PATH.
func RunCommand(ctx context.Context, target, password, command string) Status {
	var r Remote
	return r.Run(ctx, target, FromLiteral(password), command)
}

// VerifyPassword reports whether password is accepted by target.
func VerifyPassword(ctx context.Context, target, password string) Status {
	var r Remote
	return r.Verify(ctx, target, FromLiteral(password))
}
