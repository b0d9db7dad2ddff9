// Package launcher spawns a child process with all three standard
// streams redirected to pipes owned by the caller.
//
// The pipes are plain OS pipes rather than exec.Cmd's StdoutPipe, so
// reaping the child never closes a read end that still holds output.
package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Process is a running child and the parent's ends of its pipes.
type Process struct {
	Path   string
	Pid    int
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
	waitErr error

	closeStdin sync.Once
	closeOnce  sync.Once
}

// Start launches path with no arguments and the inherited environment,
// from the program's own directory.  The child's stdin, stdout, and
// stderr are pipes; none is shared with the parent.
func Start(path string) (*Process, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(path)
	cmd.Dir = filepath.Dir(path)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("starting %q: %w", path, err)
	}

	// The child holds its own copies now.  Dropping ours is what lets
	// the read ends see EOF once the child (and its descendants) exit.
	closeAll(stdinR, stdoutW, stderrW)

	p := &Process{
		Path:    path,
		Pid:     cmd.Process.Pid,
		Stdin:   stdinW,
		Stdout:  stdoutR,
		Stderr:  stderrR,
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

// wait is the only caller of cmd.Wait, so the child is always reaped
// exactly once no matter how the session ends.
func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the child has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the child's exit code, or -1 if it has not exited
// or was killed by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Status describes how the child ended, for logging.
func (p *Process) Status() string {
	if !p.Exited() {
		return "running"
	}
	return p.cmd.ProcessState.String()
}

// Err returns the error from waiting on the child.  An *exec.ExitError
// for a non-zero exit is a normal outcome, not a failure.
func (p *Process) Err() error {
	if !p.Exited() {
		return nil
	}
	if _, ok := p.waitErr.(*exec.ExitError); ok {
		return nil
	}
	return p.waitErr
}

// Runtime returns how long the child has been (or was) running.
func (p *Process) Runtime() time.Duration {
	return time.Since(p.started)
}

// CloseStdin closes the parent's end of the child's stdin so the child
// sees end of input.  Safe to call more than once.
func (p *Process) CloseStdin() error {
	var err error
	p.closeStdin.Do(func() { err = p.Stdin.Close() })
	return err
}

// Kill terminates the child and everything in its process group.
// It is a no-op once the child has been reaped.
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	return killTree(p.cmd)
}

// Reap closes stdin, gives the child grace to exit on its own, then
// kills it and blocks until it has been waited on.  The remaining pipe
// ends are closed afterwards.  Safe to call more than once.
func (p *Process) Reap(grace time.Duration) {
	p.CloseStdin() //nolint:errcheck

	if grace > 0 && !p.Exited() {
		t := time.NewTimer(grace)
		select {
		case <-p.done:
		case <-t.C:
		}
		t.Stop()
	}
	p.Kill() //nolint:errcheck
	<-p.done
	p.Close() //nolint:errcheck
}

// Close releases the parent's pipe ends.  It does not touch the child.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.CloseStdin() //nolint:errcheck
		err = closeAll(p.Stdout, p.Stderr)
	})
	return err
}

func closeAll(cs ...io.Closer) error {
	var first error
	for _, c := range cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
