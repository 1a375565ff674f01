package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}

// ToolError is a stage-aware error with optional command context.
type ToolError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats tool failures for logs and status messages.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, msg)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		msg,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// command is one process invocation; Stdin may be nil.
type command struct {
	Name  string
	Args  []string
	Stdin io.Reader
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// process is a running command whose stdout is consumed incrementally.
type process interface {
	Stdout() io.Reader
	Stderr() string
	Kill() error
	Wait() error
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, cmd command) (commandResult, error)
	Start(ctx context.Context, name string, args ...string) (process, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command to completion and captures its output and exit code.
func (r *execRunner) Run(ctx context.Context, c command) (commandResult, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdin = c.Stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = exitCode(err)
		return result, err
	}

	return result, nil
}

// Start launches a command and exposes its stdout as a stream.
func (r *execRunner) Start(ctx context.Context, name string, args ...string) (process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, stdout: stdout}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// execProcess is a started os/exec command.
type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

// Stderr is only complete after Wait returns.
func (p *execProcess) Stderr() string {
	return p.stderr.String()
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
