package adapters

import (
	"context"
	"os/exec"
)

// Process is a spawned target JVM.
type Process struct {
	cmd *exec.Cmd

	// Address is where the target's debug agent listens.
	Address string

	// Output holds the most recent stdout and stderr of the target.
	Output *OutputBuffer

	done chan struct{}
	err  error
}

// StartProcess starts cmd and reaps it in the background. output should
// already be wired to the command's stdout and stderr.
func StartProcess(cmd *exec.Cmd, output *OutputBuffer) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{
		cmd:    cmd,
		Output: output,
		done:   make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the operating system process ID
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitStatus describes how the process ended, or "running"
func (p *Process) ExitStatus() string {
	if !p.Exited() {
		return "running"
	}
	if p.err != nil {
		return p.err.Error()
	}
	return "exit status 0"
}

// Wait blocks until the process exits or ctx is done
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill terminates the process and any children it started
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	return killProcessGroup(p.cmd)
}
