package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/alecthomas/kong"

	"snai.pe/sshpass"
)

var version = "dev"

// optString is a string flag that remembers whether it was given at all, so
// that an explicitly empty value can be told apart from an absent one.
type optString struct {
	value string
	set   bool
}

func (o *optString) Decode(ctx *kong.DecodeContext) error {
	o.set = true
	return ctx.Scan.PopValueInto("value", &o.value)
}

type optInt struct {
	value int
	set   bool
}

func (o *optInt) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("number", &s); err != nil {
		return err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected a number but got %q", s)
	}
	o.value, o.set = n, true
	return nil
}

type cli struct {
	File     optString `short:"f" placeholder:"FILE" help:"take password to use from file"`
	FD       optInt    `short:"d" name:"fd" placeholder:"NUMBER" help:"use number as file descriptor for getting password"`
	Password optString `short:"p" placeholder:"PASSWORD" help:"provide password as argument (security unwise)"`
	Env      bool      `short:"e" help:"password is passed as env-var \"SSHPASS\""`
	Prompt   optString `short:"P" placeholder:"PROMPT" help:"which string should sshpass search for to detect a password prompt"`
	Charset  string    `placeholder:"NAME" help:"character set of the child's terminal"`
	Verbose  bool      `short:"v" help:"be verbose about what you're doing"`

	Version kong.VersionFlag `short:"V" help:"print version information"`

	Command []string `arg:"" passthrough:"" help:"command to run, with its arguments"`
}

// exitCode is raised by the kong exit hook so that run can return instead of
// terminating the process.
type exitCode int

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) (code int) {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("sshpass"),
		kong.Description("Run an interactive command, answering its password prompt automatically.\n"+
			"With no password source, the password is taken from standard input."),
		kong.Vars{"version": "sshpass " + version},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
	)
	if err != nil {
		panic(err)
	}

	defer func() {
		if r := recover(); r != nil {
			ec, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(ec)
		}
	}()

	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintf(stderr, "sshpass: %v\n", err)
		return int(sshpass.StatusInvalidArguments)
	}

	level := slog.LevelError
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cred, err := c.credential()
	if err != nil {
		logger.Error("password source", "error", err)
		return int(sshpass.StatusOf(err))
	}
	if c.Prompt.set && c.Prompt.value == "" {
		logger.Error("prompt must not be empty", "error", sshpass.ErrInvalidArguments)
		return int(sshpass.StatusInvalidArguments)
	}

	cfg := sshpass.Config{
		Credential:     cred,
		Prompt:         c.Prompt.value,
		Charset:        c.Charset,
		Logger:         logger,
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		ForwardSignals: true,
	}
	return int(sshpass.Run(context.Background(), cfg, c.Command[0], c.Command[1:]...))
}

// credential picks the single password source given on the command line.
func (c *cli) credential() (sshpass.Credential, error) {
	var sources []string
	if c.File.set {
		sources = append(sources, "-f")
	}
	if c.FD.set {
		sources = append(sources, "-d")
	}
	if c.Password.set {
		sources = append(sources, "-p")
	}
	if c.Env {
		sources = append(sources, "-e")
	}
	if len(sources) > 1 {
		return sshpass.Credential{}, fmt.Errorf("only one of %v may be given: %w", sources, sshpass.ErrConflictingArguments)
	}

	switch {
	case c.File.set:
		return sshpass.FromFile(c.File.value), nil
	case c.FD.set:
		if c.FD.value < 0 {
			return sshpass.Credential{}, fmt.Errorf("invalid file descriptor %d: %w", c.FD.value, sshpass.ErrInvalidArguments)
		}
		return sshpass.FromFD(c.FD.value), nil
	case c.Password.set:
		return sshpass.FromLiteral(c.Password.value), nil
	case c.Env:
		return sshpass.FromEnv("SSHPASS")
	}
	return sshpass.FromStdin(), nil
}
