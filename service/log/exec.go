package log

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxLineLength of the outputs of a command. Longer lines are clipped.
const maxLineLength = 64 * 1024

type execOption struct {
	outl, errl zapcore.Level
}

// ExecOption is an option that can be passed to Exec()
type ExecOption func(eo *execOption)

// StdoutLevel sets the level at which stdout should be logged
func StdoutLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.outl = l
	}
}

// StderrLevel sets the level at which stderr should be logged
func StderrLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.errl = l
	}
}

// Exec runs the command, sending its outputs line by line to log.Logger(ctx)
// with a "cmd" field (stdout at Info level, stderr at Warn level by default).
// Outputs already redirected by the caller are left untouched.
// Use exec.CommandContext to kill the command on ctx cancellation.
func Exec(ctx context.Context, cmd *exec.Cmd, options ...ExecOption) error {
	opts := execOption{
		outl: zapcore.InfoLevel,
		errl: zapcore.WarnLevel,
	}
	for _, eo := range options {
		eo(&opts)
	}

	logger := Logger(ctx).With(zap.String("cmd", filepath.Base(cmd.Path)))
	type output struct {
		r     io.Reader
		level zapcore.Level
	}
	var outputs []output
	if cmd.Stdout == nil {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("Exec.StdoutPipe: %w", err)
		}
		outputs = append(outputs, output{stdout, opts.outl})
	}
	if cmd.Stderr == nil {
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("Exec.StderrPipe: %w", err)
		}
		outputs = append(outputs, output{stderr, opts.errl})
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("Exec.Start: %w", err)
	}

	// The pipes must be drained before Wait
	wg := sync.WaitGroup{}
	for _, o := range outputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logLines(o.r, logger, o.level)
		}()
	}
	wg.Wait()

	err := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("Exec: %s exited with code %d", filepath.Base(cmd.Path), exitErr.ExitCode())
	}
	return err
}

func logLines(r io.Reader, logger *zap.Logger, level zapcore.Level) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Log(level, line)
		}
	}
	if errors.Is(scanner.Err(), bufio.ErrTooLong) {
		logger.Log(level, "...[Message clipped]")
		// drain the rest of the output
		io.Copy(io.Discard, r)
	}
}
