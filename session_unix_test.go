//go:build unix

package sshpass

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// The test binary doubles as a fake interactive client: with helperEnv set it
// talks to its controlling terminal the way ssh does instead of running
// tests.
const (
	helperEnv      = "SSHPASS_TEST_HELPER"
	helperCodeEnv  = "SSHPASS_TEST_CODE"
	helperReadyEnv = "SSHPASS_TEST_READY"
)

func TestMain(m *testing.M) {
	if scenario := os.Getenv(helperEnv); scenario != "" {
		os.Exit(runHelper(scenario))
	}
	os.Exit(m.Run())
}

func runHelper(scenario string) int {
	switch scenario {
	case "exit":
		code, _ := strconv.Atoi(os.Getenv(helperCodeEnv))
		return code
	case "kill":
		syscall.Kill(os.Getpid(), syscall.SIGKILL)
		time.Sleep(time.Hour)
		return 0
	case "hang":
		time.Sleep(time.Hour)
		return 0
	case "trap":
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGTERM)
		if err := os.WriteFile(os.Getenv(helperReadyEnv), nil, 0o600); err != nil {
			return 100
		}
		select {
		case <-c:
			return 21
		case <-time.After(20 * time.Second):
			return 99
		}
	}

	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "helper: open tty: %v\n", err)
		return 100
	}
	defer tty.Close()
	in := bufio.NewReader(tty)
	readLine := func() string {
		line, _ := in.ReadString('\n')
		return strings.TrimRight(line, "\r\n")
	}

	switch scenario {
	case "answer":
		fmt.Fprint(tty, "user@example.com's password: ")
		if readLine() == "secret" {
			return 0
		}
		return 42
	case "split":
		fmt.Fprint(tty, "Pass")
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(tty, "word: ")
		if readLine() == "secret" {
			return 0
		}
		return 42
	case "passcode":
		fmt.Fprint(tty, "Enter Passcode: ")
		if readLine() == "123456" {
			return 0
		}
		return 42
	case "reprompt":
		fmt.Fprint(tty, "user@example.com's password: ")
		readLine()
		fmt.Fprint(tty, "Permission denied, please try again.\r\nuser@example.com's password: ")
		readLine()
		return 43
	case "reprompt-exit":
		fmt.Fprint(tty, "user@example.com's password: ")
		readLine()
		fmt.Fprint(tty, "Permission denied, please try again.\r\nuser@example.com's password: ")
		return 1
	case "hostkey-exit":
		fmt.Fprint(tty, "The authenticity of host 'example.com (10.0.0.1)' can't be established.\r\n")
		return 1
	case "hostkey":
		fmt.Fprint(tty, "The authenticity of host 'example.com (10.0.0.1)' can't be established.\r\n"+
			"Are you sure you want to continue connecting (yes/no)? ")
		readLine()
		return 44
	}
	return 101
}

func runHelperSession(t *testing.T, scenario string, cfg Config, env ...string) Status {
	t.Helper()
	cfg.Env = append(append(cfg.Env, helperEnv+"="+scenario), env...)
	if testing.Verbose() {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	return Run(ctx, cfg, os.Args[0])
}

func TestRunInjectsPassword(t *testing.T) {
	if st := runHelperSession(t, "answer", Config{Credential: FromLiteral("secret")}); st != StatusOK {
		t.Fatalf("status %v (%d)", st, int(st))
	}
}

func TestRunSplitPrompt(t *testing.T) {
	if st := runHelperSession(t, "split", Config{Credential: FromLiteral("secret")}); st != StatusOK {
		t.Fatalf("status %v (%d)", st, int(st))
	}
}

func TestRunCustomPrompt(t *testing.T) {
	cfg := Config{Credential: FromLiteral("123456"), Prompt: "Passcode:"}
	if st := runHelperSession(t, "passcode", cfg); st != StatusOK {
		t.Fatalf("status %v (%d)", st, int(st))
	}
}

func TestRunIncorrectPassword(t *testing.T) {
	st := runHelperSession(t, "reprompt", Config{Credential: FromLiteral("wrong")})
	if st != StatusIncorrectPassword {
		t.Fatalf("status %v (%d), want %v", st, int(st), StatusIncorrectPassword)
	}
}

func TestRunHostKeyUnknown(t *testing.T) {
	r := &chunkReader{chunks: []string{"secret\n"}}
	st := runHelperSession(t, "hostkey", Config{Credential: FromReader(r)})
	if st != StatusHostKeyUnknown {
		t.Fatalf("status %v (%d), want %v", st, int(st), StatusHostKeyUnknown)
	}
	if r.reads != 0 {
		t.Errorf("credential read %d times", r.reads)
	}
}

func TestRunPassesExitCode(t *testing.T) {
	for _, code := range []int{0, 1, 7, 42} {
		st := runHelperSession(t, "exit", Config{}, fmt.Sprintf("%s=%d", helperCodeEnv, code))
		if int(st) != code {
			t.Errorf("exit %d: status %d", code, int(st))
		}
	}
}

func TestRunSignaled(t *testing.T) {
	if st := runHelperSession(t, "kill", Config{}); st != StatusSignaled {
		t.Fatalf("status %d, want %d", int(st), int(StatusSignaled))
	}
}

func TestRunContextCancelKillsChild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	st := Run(ctx, Config{Env: []string{helperEnv + "=hang"}}, os.Args[0])
	if st != StatusSignaled {
		t.Fatalf("status %d, want %d", int(st), int(StatusSignaled))
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("took %v to stop", elapsed)
	}
}

func TestRunMissingCommand(t *testing.T) {
	st := Run(context.Background(), Config{}, "/nonexistent/sshpass-test-command")
	if st != StatusRuntimeError {
		t.Fatalf("status %v, want %v", st, StatusRuntimeError)
	}
}

func TestRunOnlyOnce(t *testing.T) {
	s, err := NewSession(Config{Env: []string{helperEnv + "=exit"}}, os.Args[0])
	if err != nil {
		t.Fatal(err)
	}
	if st := s.Run(context.Background()); st != StatusOK {
		t.Fatalf("first run: %v", st)
	}
	if st := s.Run(context.Background()); st != StatusRuntimeError {
		t.Fatalf("second run: %v, want %v", st, StatusRuntimeError)
	}
}

func TestRunPromptThenExit(t *testing.T) {
	for i := 0; i < 10; i++ {
		st := runHelperSession(t, "reprompt-exit", Config{Credential: FromLiteral("wrong")})
		if st != StatusIncorrectPassword {
			t.Fatalf("run %d: status %v (%d), want %v", i, st, int(st), StatusIncorrectPassword)
		}
		if st := runHelperSession(t, "hostkey-exit", Config{Credential: FromLiteral("wrong")}); st != StatusHostKeyUnknown {
			t.Fatalf("run %d: status %v (%d), want %v", i, st, int(st), StatusHostKeyUnknown)
		}
	}
}

func TestRunForwardsSignals(t *testing.T) {
	ready := filepath.Join(t.TempDir(), "ready")
	result := make(chan Status, 1)
	go func() {
		result <- runHelperSession(t, "trap", Config{ForwardSignals: true}, helperReadyEnv+"="+ready)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(ready); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("child never installed its signal handler")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if st := <-result; st != 21 {
		t.Fatalf("status %d, want 21", int(st))
	}
}
