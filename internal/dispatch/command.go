package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/google/shlex"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
)

// Command spawns an external process per event with positional arguments
// action, "directory"|"file", path and optionally the removed path. The
// process either runs to completion with a timeout or detaches under a
// watcher that kills it on timeout or shutdown.
type Command struct {
	base
	command           []string
	waitForProcess    bool
	dropDuringProcess bool
	timeout           time.Duration

	running atomic.Int32
}

func NewCommand(command string, waitForProcess, dropDuringProcess bool, timeout time.Duration, mappings []string, logger *slog.Logger) (*Command, error) {
	b, err := newBase("CommandDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	parts, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("dispatch: parsing command %q: %w", command, err)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("dispatch: empty command")
	}

	return &Command{
		base:              b,
		command:           parts,
		waitForProcess:    waitForProcess,
		dropDuringProcess: dropDuringProcess,
		timeout:           timeout,
	}, nil
}

func (c *Command) Dispatch(ctx context.Context, event *activity.Event) error {
	if c.dropDuringProcess && c.running.Load() > 0 {
		c.logger.Warn("command still running, event dropped",
			slog.String("path", event.Path),
		)

		return nil
	}

	kind := "file"
	if event.IsFolder {
		kind = "directory"
	}

	args := append([]string{}, c.command[1:]...)
	args = append(args, event.Action, kind, c.mapPath(event.Path))

	if event.RemovedPath != "" {
		args = append(args, c.mapPath(event.RemovedPath))
	}

	c.logger.Info("command dispatch",
		slog.String("command", c.command[0]),
		slog.Any("args", args),
	)

	if c.waitForProcess {
		return c.runBlocking(ctx, args)
	}

	return c.runDetached(ctx, args, event.Path)
}

func (c *Command) runBlocking(ctx context.Context, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.command[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		c.logger.Error("command failed",
			slog.String("command", c.command[0]),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// runDetached starts the process and leaves a watcher goroutine behind that
// kills it when the timeout fires or the dispatcher shuts down.
func (c *Command) runDetached(ctx context.Context, args []string, eventPath string) error {
	cmd := exec.Command(c.command[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		c.logger.Error("command start failed",
			slog.String("command", c.command[0]),
			slog.String("error", err.Error()),
		)

		return nil
	}

	c.running.Add(1)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	go func() {
		defer c.running.Add(-1)

		timer := time.NewTimer(c.timeout)
		defer timer.Stop()

		select {
		case err := <-done:
			if err != nil {
				c.logger.Error("command exited with error",
					slog.String("path", eventPath),
					slog.String("error", err.Error()),
				)
			}

		case <-timer.C:
			c.logger.Warn("command killed on timeout",
				slog.String("path", eventPath),
			)
			cmd.Process.Kill()
			<-done

		case <-ctx.Done():
			cmd.Process.Kill()
			<-done
		}
	}()

	return nil
}
