// Package php runs cached payloads with the php command line interpreter.
//
// The wrapped payload is fed to the interpreter on stdin, which is how the
// envelope's "<?php" marker becomes meaningful.
package php

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/unkn0wn-root/codecache/backend"
)

var ErrBinaryNotFound = errors.New("php: interpreter not found")

// ExitError reports a non-zero exit of the interpreter.
type ExitError struct {
	ID     string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("php: %s exited with %d: %s", e.ID, e.Code, e.Stderr)
}

// Result is what Execute returns on success.
type Result struct {
	Stdout []byte
	Stderr []byte
}

type Config struct {
	Binary  string        // "" => "php" from PATH
	Args    []string      // extra interpreter flags, e.g. "-d", "display_errors=stderr"
	Env     []string      // nil => inherit
	Dir     string        // working directory
	Timeout time.Duration // 0 => only ctx bounds the run
}

type Executor struct {
	cfg Config
}

var _ backend.Executor = (*Executor)(nil)

func New(cfg Config) *Executor {
	if cfg.Binary == "" {
		cfg.Binary = "php"
	}
	return &Executor{cfg: cfg}
}

func (e *Executor) Execute(ctx context.Context, id string, payload []byte) (any, error) {
	bin, err := exec.LookPath(e.cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, e.cfg.Binary)
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, e.cfg.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = e.cfg.Env
	cmd.Dir = e.cfg.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("php: %s: %w", id, ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, &ExitError{ID: id, Code: ee.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("php: run %s: %w", id, err)
	}
	return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}
