package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var errEmptyCommand = errors.New("empty command")

// Result is the captured outcome of a query command.
type Result struct {
	Output string
	Code   int
	Err    error // set when the command could not be started at all
}

// Lines returns the non-empty output split into lines. Leading and trailing
// blank space is dropped; interior lines are kept as reported.
func (r Result) Lines() []string {
	trimmed := strings.TrimSpace(r.Output)
	if trimmed == "" {
		return nil
	}
	lines := strings.Split(trimmed, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

// Runner starts backend commands. The zero value is not usable; use New.
type Runner struct {
	logger *zap.Logger
	size   func() (cols, rows uint16)
}

// New creates a Runner that logs to logger.
func New(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, size: terminalSize}
}

// Query runs argv to completion and captures its standard output as text.
// Undecodable bytes are replaced rather than treated as an error. A non-zero
// exit is reported in Code; checkupdates, for one, exits 2 when nothing is
// pending.
func (r *Runner) Query(ctx context.Context, argv []string, env []string) Result {
	if len(argv) == 0 {
		return Result{Code: -1, Err: errEmptyCommand}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env

	out, err := cmd.Output()
	res := Result{Output: decode(out)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.Code = exitErr.ExitCode()
		r.logger.Debug("query exited non-zero",
			zap.Strings("argv", argv),
			zap.Int("code", res.Code),
			zap.String("stderr", decode(exitErr.Stderr)))
	default:
		res.Code = -1
		res.Err = fmt.Errorf("%s: %w", argv[0], err)
		r.logger.Warn("query failed to start", zap.Strings("argv", argv), zap.Error(err))
	}

	return res
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
