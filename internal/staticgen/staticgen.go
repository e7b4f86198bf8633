// Package staticgen runs the external static configuration generator once
// at startup, in the background.
//
// The generator is invoked as "<generator> <data-folder>". Its outcome is
// logged and reported, never returned as something that could stop the
// server: a failed run leaves the previous configuration on disk in place.
package staticgen

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// Result describes one generator run.
type Result struct {
	Stdout        string
	Stderr        string
	ExitSucceeded bool
	Duration      time.Duration
	// Err is set on spawn failure or non-zero exit
	Err error
}

type Options struct {
	Generator  string
	DataFolder string
	Logger     log.Logger
	// OnDone receives the result before it is sent on the channel (metrics)
	OnDone func(Result)
}

// Start launches the generator in its own goroutine and returns at once.
// The returned channel is buffered and receives exactly one Result, so
// nobody has to read it. ctx only carries logging and tracing values; the
// run is not cancelled with it.
func Start(ctx context.Context, opts Options) <-chan Result {
	out := make(chan Result, 1)
	L := opts.Logger
	if L == nil {
		L = log.FromContext(ctx)
	}
	L = L.With("component", "staticgen", "generator", opts.Generator, "data_folder", opts.DataFolder)
	ctx = context.WithoutCancel(ctx)

	go func() {
		res := run(opts.Generator, opts.DataFolder)
		report(ctx, L, res)
		if opts.OnDone != nil {
			opts.OnDone(res)
		}
		out <- res
	}()
	return out
}

func run(generator, dataFolder string) Result {
	var stdout, stderr bytes.Buffer
	// not bound to any context: the run has no timeout or cancellation
	cmd := exec.Command(generator, dataFolder)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitSucceeded = true
	case errors.As(err, &exitErr):
		res.Err = xerrors.Wrapf(err, "static generator exited with code %d", exitErr.ExitCode())
	default:
		res.Err = xerrors.Wrap(err, "spawn static generator")
	}
	return res
}

func report(ctx context.Context, L log.Logger, res Result) {
	ms := res.Duration.Milliseconds()
	if res.ExitSucceeded {
		L.Info(ctx, "static generator succeeded", "stdout", res.Stdout)
	} else {
		L.Error(ctx, res.Err, "static generator failed", "stderr", res.Stderr)
	}
	L.Info(ctx, "static configurations generated", "duration_ms", ms, "success", res.ExitSucceeded)
}
