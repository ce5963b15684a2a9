// Package proc launches commands as child processes and supervises them:
// interrupt handling for the foreground child, asynchronous reaping of
// background children and the final cleanup when the interpreter exits.
package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/fatih/color"
	"github.com/smallsh/smallsh/core/logger"
	"github.com/smallsh/smallsh/core/shell"
	"golang.org/x/sys/unix"
)

// heldSignals are held back while the Coordinator is masked and delivered
// again once it's unmasked.
var heldSignals = []os.Signal{unix.SIGHUP, unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2, unix.SIGALRM}

// StatusRecorder receives the termination cause of foreground commands.
type StatusRecorder interface {
	RecordExit(code int)
	RecordSignal(sig int)
}

// Options configures a Coordinator.
type Options struct {
	Launcher *Launcher

	// Stdout receives job notices, Stderr receives launch diagnostics.
	Stdout io.Writer
	Stderr io.Writer

	// Diagnostic colors launch diagnostics, nil prints them plain.
	Diagnostic *color.Color

	Events *logger.SessionLogger

	// ProcessGroup is signalled on Shutdown. Zero means the interpreter's
	// own process group.
	ProcessGroup int
}

// Coordinator owns the interpreter's signal disposition and every child it
// starts. Methods other than the notification goroutine must be called from
// the interpreter's main loop.
type Coordinator struct {
	launcher     *Launcher
	stdout       io.Writer
	stderr       io.Writer
	diagnostic   *color.Color
	events       *logger.SessionLogger
	processGroup int

	// mu guards the fields below and serializes reaping.
	mu         sync.Mutex
	masked     bool
	pending    bool
	background map[int]*shell.Command

	sigchld  chan os.Signal
	sigint   chan os.Signal
	held     chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator, call Start before running commands.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Launcher == nil {
		opts.Launcher = NewLauncher(shell.DevNull)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Events == nil {
		opts.Events = logger.NewNopLogger().Sessionless()
	}

	return &Coordinator{
		launcher:     opts.Launcher,
		stdout:       &syncWriter{w: opts.Stdout},
		stderr:       &syncWriter{w: opts.Stderr},
		diagnostic:   opts.Diagnostic,
		events:       opts.Events,
		processGroup: opts.ProcessGroup,
		background:   make(map[int]*shell.Command),
		sigchld:      make(chan os.Signal, 1),
		sigint:       make(chan os.Signal, 1),
		held:         make(chan os.Signal, len(heldSignals)),
		done:         make(chan struct{}),
	}
}

// Start puts interrupts into ignore mode and begins listening for child
// termination.
func (c *Coordinator) Start() {
	signal.Ignore(unix.SIGINT)
	signal.Notify(c.sigchld, unix.SIGCHLD)

	c.wg.Add(1)
	go c.notificationLoop()
}

func (c *Coordinator) notificationLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.sigchld:
			c.mu.Lock()
			if c.masked {
				c.pending = true
			} else {
				c.reapBackgroundLocked()
			}
			c.mu.Unlock()
		}
	}
}

// Mask holds back background completion notices and terminating signals
// until Unmask is called. The interpreter masks while it prompts for and
// reads a line.
func (c *Coordinator) Mask() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masked = true
	signal.Notify(c.held, heldSignals...)
}

// Unmask delivers notices held back by Mask, then raises any signal that
// arrived meanwhile with its usual disposition.
func (c *Coordinator) Unmask() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masked = false
	signal.Stop(c.held)
	if c.pending {
		c.pending = false
		c.reapBackgroundLocked()
	}

	for {
		select {
		case sig := <-c.held:
			if err := unix.Kill(unix.Getpid(), sig.(unix.Signal)); err != nil {
				fmt.Fprintf(c.stderr, "smallsh: raise %v: %v\n", sig, err)
			}
		default:
			return
		}
	}
}

// Run starts cmd in the foreground or background depending on the command.
func (c *Coordinator) Run(cmd *shell.Command, status StatusRecorder) {
	if cmd.Background() {
		c.RunBackground(cmd)
	} else {
		c.RunForeground(cmd, status)
	}
}

// RunForeground starts cmd and blocks until it terminates, recording how it
// ended in status. Interrupts received meanwhile go to the child, never the
// interpreter.
func (c *Coordinator) RunForeground(cmd *shell.Command, status StatusRecorder) {
	// Children started while the interpreter has a handler installed get the
	// default disposition on exec.
	signal.Notify(c.sigint, unix.SIGINT)
	defer func() {
		signal.Ignore(unix.SIGINT)
		drain(c.sigint)
	}()

	proc, err := c.launcher.Start(cmd)
	if err != nil {
		status.RecordExit(c.launchFailed(cmd, err))
		return
	}
	c.recordStart(proc)

	_, term, err := wait(proc.Pid, 0)
	if err != nil {
		fmt.Fprintf(c.stderr, "smallsh: wait %d: %v\n", proc.Pid, err)
		return
	}

	if term.Signaled() {
		fmt.Fprintf(c.stdout, "%s\n", term)
		status.RecordSignal(int(term.Signal))
	} else {
		status.RecordExit(term.ExitCode)
	}

	c.recordExit(proc.Pid, false, term)
}

// RunBackground starts cmd without waiting for it. The process ignores
// interrupts and is reaped when it terminates. A command that can't be
// started is replaced by a stand-in exiting with LaunchExitCode, so it still
// gets a pid and a completion notice.
func (c *Coordinator) RunBackground(cmd *shell.Command) {
	// Holding the lock keeps the notification loop from scanning before the
	// pid is tracked.
	c.mu.Lock()
	defer c.mu.Unlock()

	proc, err := c.launcher.Start(cmd)
	if err != nil {
		code := c.launchFailed(cmd, err)
		proc, err = c.launcher.StartStandIn(cmd, code)
		if err != nil {
			fmt.Fprintf(c.stderr, "smallsh: %v\n", err)
			return
		}
	} else {
		c.recordStart(proc)
	}

	c.background[proc.Pid] = cmd
	fmt.Fprintf(c.stdout, "background pid is %d\n", proc.Pid)
}

// Outstanding returns the number of background children not yet reaped.
func (c *Coordinator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.background)
}

// reapBackgroundLocked collects every terminated background child without
// blocking.
func (c *Coordinator) reapBackgroundLocked() {
	for pid := range c.background {
		wpid, term, err := wait(pid, unix.WNOHANG)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Collected elsewhere, nothing left to report.
			delete(c.background, pid)
			continue
		case err != nil:
			fmt.Fprintf(c.stderr, "smallsh: wait %d: %v\n", pid, err)
			continue
		case wpid == 0:
			continue
		}

		delete(c.background, pid)
		fmt.Fprintf(c.stdout, "background pid %d is done: %s\n", pid, term)
		c.recordExit(pid, true, term)
	}
}

// Stop stops listening for child termination. Children are left alone.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		signal.Stop(c.sigchld)
		signal.Stop(c.held)
		close(c.done)
		c.wg.Wait()
	})
}

// Shutdown terminates every process in the interpreter's process group and
// reaps all remaining children. It returns the number of children reaped.
func (c *Coordinator) Shutdown() int {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Don't take the interpreter down with the rest of the group.
	signal.Ignore(unix.SIGTERM)

	target := 0
	if c.processGroup > 0 {
		target = -c.processGroup
	}
	if err := unix.Kill(target, unix.SIGTERM); err != nil && err != unix.ESRCH {
		fmt.Fprintf(c.stderr, "smallsh: kill: %v\n", err)
	}

	reaped := 0
	for {
		pid, term, err := wait(-1, 0)
		if err != nil {
			if err != unix.ECHILD {
				fmt.Fprintf(c.stderr, "smallsh: wait: %v\n", err)
			}
			break
		}

		reaped++
		_, background := c.background[pid]
		delete(c.background, pid)
		c.recordExit(pid, background, term)
	}

	c.events.Record(&logger.Shutdown{Reaped: reaped})
	return reaped
}

// launchFailed reports a command that couldn't start and returns the status
// it counts as having exited with.
func (c *Coordinator) launchFailed(cmd *shell.Command, err error) int {
	code := LaunchExitCode
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		code = launchErr.ExitCode()
	}

	if c.diagnostic != nil {
		c.diagnostic.Fprintln(c.stderr, err.Error())
	} else {
		fmt.Fprintln(c.stderr, err.Error())
	}

	c.events.Record(&logger.LaunchError{
		Command:    cmd.Args(),
		Background: cmd.Background(),
		Error:      err.Error(),
	})
	return code
}

func (c *Coordinator) recordStart(p *Process) {
	c.events.Record(&logger.RunCommand{
		Command:      p.Command.Args(),
		ResolvedPath: p.Path,
		Pid:          p.Pid,
		Background:   p.Command.Background(),
	})
}

func (c *Coordinator) recordExit(pid int, background bool, term Termination) {
	c.events.Record(&logger.ProcessExit{
		Pid:        pid,
		Background: background,
		ExitCode:   term.ExitCode,
		Signal:     int(term.Signal),
	})
}

func drain(ch <-chan os.Signal) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// syncWriter serializes writes from the main loop and the notification
// goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
