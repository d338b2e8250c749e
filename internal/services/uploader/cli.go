// Package uploader drives the notebooklm command line tool. The tool owns its
// own login state; this package only runs its subcommands.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
)

const (
	DefaultCommand        = "notebooklm"
	DefaultTimeout        = 120 * time.Second
	DefaultResponseLength = "longer"

	maxOutputLog = 500
)

var notebookIDPattern = regexp.MustCompile(`[a-f0-9-]{36}`)

// Runner executes name with args and returns the combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CLIUploader implements interfaces.NotebookUploader with the notebooklm CLI
type CLIUploader struct {
	command        string
	timeout        time.Duration
	responseLength string
	run            Runner
	logger         arbor.ILogger
}

var _ interfaces.NotebookUploader = (*CLIUploader)(nil)

// Option configures the uploader
type Option func(*CLIUploader)

// WithCommand sets the CLI path
func WithCommand(command string) Option {
	return func(u *CLIUploader) {
		if command != "" {
			u.command = command
		}
	}
}

// WithTimeout sets the per-command timeout
func WithTimeout(timeout time.Duration) Option {
	return func(u *CLIUploader) {
		if timeout > 0 {
			u.timeout = timeout
		}
	}
}

// WithResponseLength sets the --response-length passed to configure
func WithResponseLength(length string) Option {
	return func(u *CLIUploader) {
		if length != "" {
			u.responseLength = length
		}
	}
}

// WithRunner replaces os/exec, used by tests
func WithRunner(run Runner) Option {
	return func(u *CLIUploader) {
		u.run = run
	}
}

// NewCLIUploader creates an uploader
func NewCLIUploader(logger arbor.ILogger, opts ...Option) *CLIUploader {
	u := &CLIUploader{
		command:        DefaultCommand,
		timeout:        DefaultTimeout,
		responseLength: DefaultResponseLength,
		run:            ExecRunner,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// CreateNotebook runs `create <title>` and parses the notebook ID from its output
func (u *CLIUploader) CreateNotebook(ctx context.Context, title string) (string, error) {
	out, err := u.exec(ctx, "create", title)
	if err != nil {
		return "", fmt.Errorf("create notebook: %w", err)
	}
	id := notebookIDPattern.FindString(out)
	if id == "" {
		return "", fmt.Errorf("create notebook: no notebook ID in output: %s", truncate(out))
	}

	u.logger.Info().
		Str("title", title).
		Str("notebook_id", id).
		Msg("Notebook created")

	return id, nil
}

// SetSystemPrompt runs `configure --notebook <id> --persona <text> --response-length <len>`
func (u *CLIUploader) SetSystemPrompt(ctx context.Context, notebookID, text string) error {
	if _, err := u.exec(ctx, "configure", "--notebook", notebookID, "--persona", text, "--response-length", u.responseLength); err != nil {
		return fmt.Errorf("configure notebook: %w", err)
	}
	return nil
}

// AddSource runs `source add <path> --notebook <id>`
func (u *CLIUploader) AddSource(ctx context.Context, notebookID, path string) error {
	if _, err := u.exec(ctx, "source", "add", path, "--notebook", notebookID); err != nil {
		return fmt.Errorf("add source %s: %w", path, err)
	}
	return nil
}

func (u *CLIUploader) exec(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	start := time.Now()
	out, err := u.run(ctx, u.command, args...)
	output := strings.TrimSpace(string(out))

	u.logger.Debug().
		Str("command", u.command).
		Str("subcommand", args[0]).
		Str("duration", time.Since(start).String()).
		Msg("Uploader command finished")

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("%s %s timed out after %s", u.command, args[0], u.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("%s %s exited with code %d: %s", u.command, args[0], exitErr.ExitCode(), truncate(output))
		}
		return output, fmt.Errorf("%s %s: %w", u.command, args[0], err)
	}
	return output, nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxOutputLog {
		return s
	}
	return string(r[:maxOutputLog]) + "..."
}
