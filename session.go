package sshpass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// readBufferSize bounds a single read of the master. A prompt larger than
// this is still matched across reads; only the chunking changes.
const readBufferSize = 256

// drainTimeout bounds how long output is still read after the child exits.
const drainTimeout = 250 * time.Millisecond

// Config describes a single session. It must not change once Run starts.
type Config struct {
	Credential Credential

	// Prompt is the password prompt to watch for. Empty means
	// DefaultPasswordPrompt.
	Prompt string

	// Charset names the encoding of the child's terminal, as understood by
	// golang.org/x/text/encoding/htmlindex. The prompts and the credential
	// are transcoded to it. Empty means bytes are used as given.
	Charset string

	// Logger receives diagnostic tracing at debug level and setup failures at
	// error level. Nil discards everything.
	Logger *slog.Logger

	// Standard streams of the child. Nil connects the null device, as with
	// exec.Cmd. Only output written to /dev/tty is seen by the controller.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is appended to the controller's environment for the child.
	Env []string
	Dir string

	// ForwardSignals relays interrupt, termination and hangup signals that
	// the controller receives to the child.
	ForwardSignals bool
}

// Session drives exactly one child through a pseudo-terminal.
type Session struct {
	cfg  Config
	argv []string
	log  *slog.Logger
	enc  encoding.Encoding

	password *Matcher
	hostKey  *Matcher
	answered bool

	mu  sync.Mutex
	ran bool
}

func NewSession(cfg Config, name string, args ...string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("no command given: %w", ErrInvalidArguments)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		cfg:  cfg,
		argv: append([]string{name}, args...),
		log:  logger.With("session", uuid.NewString()),
	}

	prompt, host := cfg.Prompt, HostAuthenticityPrompt
	if prompt == "" {
		prompt = DefaultPasswordPrompt
	}
	if cfg.Charset != "" {
		enc, err := htmlindex.Get(cfg.Charset)
		if err != nil {
			return nil, fmt.Errorf("charset %q: %v: %w", cfg.Charset, err, ErrInvalidArguments)
		}
		if prompt, err = enc.NewEncoder().String(prompt); err != nil {
			return nil, fmt.Errorf("encoding prompt to %s: %v: %w", cfg.Charset, err, ErrInvalidArguments)
		}
		if host, err = enc.NewEncoder().String(host); err != nil {
			return nil, fmt.Errorf("encoding prompt to %s: %v: %w", cfg.Charset, err, ErrInvalidArguments)
		}
		s.enc = enc
	}
	s.password = NewMatcher(prompt)
	s.hostKey = NewMatcher(host)
	return s, nil
}

// Run runs name with args under a new session until the child exits or the
// controller decides to stop, and returns the outcome.
func Run(ctx context.Context, cfg Config, name string, args ...string) Status {
	s, err := NewSession(cfg, name, args...)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Error("invalid session", "error", err)
		}
		return StatusOf(err)
	}
	return s.Run(ctx)
}

type readResult struct {
	data []byte
	err  error
}

type waitResult struct {
	code int
	err  error
}

// Run executes the session. Cancelling ctx kills the child; the outcome is
// then whatever status the child ends with.
func (s *Session) Run(ctx context.Context) Status {
	s.mu.Lock()
	ran := s.ran
	s.ran = true
	s.mu.Unlock()
	if ran {
		s.log.Error("session already ran")
		return StatusRuntimeError
	}
	if err := ctx.Err(); err != nil {
		s.log.Error("not starting", "error", err)
		return StatusRuntimeError
	}

	p, err := openPTY()
	if err != nil {
		s.log.Error("open pty", "error", err)
		return StatusRuntimeError
	}
	var closeOnce sync.Once
	closePTY := func() {
		closeOnce.Do(func() {
			if err := p.Close(); err != nil {
				s.log.Debug("close pty", "error", err)
			}
		})
	}
	defer closePTY()

	var resize chan os.Signal
	if p.HasTTY() {
		if err := p.InheritSize(); err != nil {
			s.log.Debug("inherit terminal size", "error", err)
		}
		resize = make(chan os.Signal, 1)
		notifyResize(resize)
		defer signal.Stop(resize)
	}
	var forward chan os.Signal
	if s.cfg.ForwardSignals {
		forward = make(chan os.Signal, 1)
		signal.Notify(forward, forwardedSignals...)
		defer signal.Stop(forward)
	}

	cmd := s.command()
	wait, err := p.Start(cmd)
	if err != nil {
		s.log.Error("start", "command", s.argv, "error", err)
		return StatusRuntimeError
	}
	s.log.Debug("searching for password prompt", "match", s.password.Pattern(), "pid", cmd.Process.Pid)

	exited := make(chan waitResult, 1)
	go func() {
		code, err := wait()
		exited <- waitResult{code, err}
	}()

	// At most one read is outstanding at any time, requested through want.
	// Nothing asks for a read once the loop below has ended.
	reads := make(chan readResult, 1)
	want := make(chan struct{}, 1)
	defer close(want)
	go readLoop(p, want, reads)
	want <- struct{}{}
	rd := reader{want: want, reads: reads, pending: true}

	var (
		forced Status
		res    waitResult
		reaped bool
		done   = ctx.Done()
	)
loop:
	for {
		select {
		case r := <-reads:
			rd.pending = false
			if forced = s.handleOutput(p, r.data); forced != StatusOK {
				break loop
			}
			if r.err != nil {
				// Most likely the child side went away; wait for the exit.
				s.log.Debug("read", "error", r.err)
				continue
			}
			rd.next()
		case res = <-exited:
			reaped = true
			forced = s.drain(p, &rd)
			break loop
		case <-resize:
			if err := p.InheritSize(); err != nil {
				s.log.Debug("resize", "error", err)
			}
		case sig := <-forward:
			s.log.Debug("forwarding signal", "signal", sig)
			if err := cmd.Process.Signal(sig); err != nil {
				cmd.Process.Kill()
			}
		case <-done:
			s.log.Debug("killing child", "error", ctx.Err())
			cmd.Process.Kill()
			done = nil
		}
	}

	// Closing the terminal hangs up the child if it is still running.
	closePTY()
	if !reaped {
		res = <-exited
	}
	if res.err != nil {
		s.log.Debug("wait", "error", res.err)
	}
	s.log.Debug("child finished", "code", res.code, "forced", int(forced))

	if forced != StatusOK {
		return forced
	}
	return Status(res.code)
}

// drain matches what the child wrote before it exited but the loop has not
// read yet, so that a prompt followed by an immediate exit still forces its
// outcome. Draining ends on a read error or a forced outcome, and never
// lasts longer than drainTimeout.
func (s *Session) drain(t terminal, rd *reader) Status {
	if err := t.Hangup(); err != nil {
		s.log.Debug("hangup", "error", err)
	}
	if err := t.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		// Without deadlines only a chunk that has already been read is safe
		// to take.
		select {
		case r := <-rd.reads:
			rd.pending = false
			return s.handleOutput(t, r.data)
		default:
			return StatusOK
		}
	}
	for rd.pending {
		r := <-rd.reads
		rd.pending = false
		if st := s.handleOutput(t, r.data); st != StatusOK {
			return st
		}
		if r.err != nil {
			s.log.Debug("drain", "error", r.err)
			break
		}
		rd.next()
	}
	return StatusOK
}

func (s *Session) command() *exec.Cmd {
	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Stdin = s.cfg.Stdin
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	return cmd
}

// handleOutput runs the matchers over one chunk of terminal output and
// answers a password prompt. It returns a non-zero status when the session
// must be terminated.
func (s *Session) handleOutput(w io.Writer, data []byte) Status {
	if len(data) == 0 {
		return StatusOK
	}
	s.log.Debug("read", "data", string(data))

	if s.password.Feed(data) {
		if s.answered {
			s.log.Debug("detected prompt again, wrong password, terminating")
			return StatusIncorrectPassword
		}
		s.log.Debug("detected prompt, sending password")
		if err := s.inject(w); err != nil {
			s.log.Debug("write password", "error", err)
		}
		s.password.Reset()
		s.answered = true
		return StatusOK
	}

	if s.hostKey.Feed(data) {
		s.log.Debug("detected host authentication prompt, exiting")
		return StatusHostKeyUnknown
	}
	return StatusOK
}

func (s *Session) inject(w io.Writer) error {
	if s.enc == nil {
		return s.cfg.Credential.Write(w)
	}
	tw := transform.NewWriter(w, s.enc.NewEncoder())
	err := s.cfg.Credential.Write(tw)
	return errors.Join(err, tw.Close())
}

// reader tracks the single outstanding read of readLoop.
type reader struct {
	want    chan<- struct{}
	reads   <-chan readResult
	pending bool
}

func (r *reader) next() {
	r.want <- struct{}{}
	r.pending = true
}

// readLoop performs one read of r for every request received on want.
// The buffer is reused: a result is only valid until the next request.
func readLoop(r io.Reader, want <-chan struct{}, out chan<- readResult) {
	buf := make([]byte, readBufferSize)
	for range want {
		n, err := r.Read(buf)
		out <- readResult{data: buf[:n], err: err}
	}
}
