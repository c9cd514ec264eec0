package detect

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultMaxOutput = 1 << 20

	maxStderr = 8 << 10
	waitDelay = 2 * time.Second
)

// Runner executes an external detector process with a deadline and a cap on
// captured output. The process is killed when the deadline passes, the caller
// cancels, or stdout grows past MaxOutput.
type Runner struct {
	Timeout   time.Duration
	MaxOutput int64
}

// Output is what a process produced. ExitErr is non-nil for a non-zero exit;
// callers decide whether the captured stdout still carries a usable message.
type Output struct {
	Stdout  []byte
	Stderr  string
	ExitErr error
}

func (r Runner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	if _, err := exec.LookPath(name); err != nil {
		return Output{}, fail(ReasonUnavailable, name+" not found in PATH", err)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &capBuffer{max: limit, onOverflow: cancel}
	stderr := &capBuffer{max: maxStderr}
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return Output{}, fail(ReasonUnavailable, "could not start "+name, err)
	}
	waitErr := cmd.Wait()

	switch {
	case ctx.Err() != nil:
		f := fail(ReasonCanceled, "detection canceled", ctx.Err())
		f.Stderr = stderr.String()
		return Output{}, f
	case stdout.overflowed():
		f := fail(ReasonOutputTooLarge, fmt.Sprintf("detector output exceeds %d bytes", limit), nil)
		f.Stderr = stderr.String()
		return Output{}, f
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		f := fail(ReasonTimeout, fmt.Sprintf("detector did not finish within %s", timeout), runCtx.Err())
		f.Stderr = stderr.String()
		return Output{}, f
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// I/O failure copying the pipes rather than a process exit status
		return Output{}, fail(ReasonMalformed, "could not read detector output", waitErr)
	}
	return Output{Stdout: stdout.Bytes(), Stderr: stderr.String(), ExitErr: waitErr}, nil
}

// capBuffer keeps at most max bytes and silently drops the rest.
type capBuffer struct {
	mu         sync.Mutex
	buf        []byte
	max        int64
	over       bool
	onOverflow func()
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - int64(len(b.buf))
	if int64(len(p)) > room {
		if room > 0 {
			b.buf = append(b.buf, p[:room]...)
		}
		if !b.over {
			b.over = true
			if b.onOverflow != nil {
				b.onOverflow()
			}
		}
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *capBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

func (b *capBuffer) String() string { return string(b.Bytes()) }

func (b *capBuffer) overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.over
}
