package proc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"github.com/smallsh/smallsh/core/shell"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

// LaunchExitCode is the status a command that couldn't be started is
// reported with, as if the child had exited with it.
const LaunchExitCode = 1

// LaunchError is returned when a command can't be turned into a running
// process. Message is the diagnostic shown to the user.
type LaunchError struct {
	Command *shell.Command
	Message string
	Err     error
}

func (e *LaunchError) Error() string {
	return e.Message
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitCode is the status the failed launch is reported with.
func (e *LaunchError) ExitCode() int {
	return LaunchExitCode
}

// Process is a started child.
type Process struct {
	Pid int
	// Path is the resolved executable.
	Path string
	// Command is what the process was started from.
	Command *shell.Command
}

// Launcher turns commands into child processes. It never waits on them.
type Launcher struct {
	// NullDevice replaces standard output of background commands that don't
	// redirect it.
	NullDevice string

	// Env is the environment of new processes, if nil the interpreter's
	// environment is used.
	Env []string

	// Standard streams inherited by children when not redirected, if nil
	// the interpreter's streams are used.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// NewLauncher creates a launcher inheriting the interpreter's streams.
func NewLauncher(nullDevice string) *Launcher {
	return &Launcher{NullDevice: nullDevice}
}

func (l *Launcher) nullDevice() string {
	if l.NullDevice == "" {
		return shell.DevNull
	}
	return l.NullDevice
}

func orDefault(f, def *os.File) *os.File {
	if f == nil {
		return def
	}
	return f
}

// LookPath searches for an executable named file the way the OS does,
// following PATH unless file contains a slash.
func LookPath(file string) (string, error) {
	path, err := exec.LookPath(file)
	if errors.Is(err, exec.ErrDot) {
		// Unix shell semantics: path element "" means "."
		err = nil
	}
	return path, err
}

// Start creates a process for cmd. Failures to set up redirection or to find
// the executable are returned as a *LaunchError.
func (l *Launcher) Start(cmd *shell.Command) (*Process, error) {
	var toClose []*os.File
	defer func() {
		for _, f := range toClose {
			f.Close()
		}
	}()

	stdin := orDefault(l.Stdin, os.Stdin)
	stdout := orDefault(l.Stdout, os.Stdout)
	stderr := orDefault(l.Stderr, os.Stderr)

	outPath := cmd.Stdout()
	if outPath == "" && cmd.Background() {
		outPath = l.nullDevice()
	}

	if outPath != "" {
		fd, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, &LaunchError{
				Command: cmd,
				Message: fmt.Sprintf("cannot open %s for output", outPath),
				Err:     err,
			}
		}
		toClose = append(toClose, fd)
		stdout = fd
	}

	if inPath := cmd.Stdin(); inPath != "" {
		fd, err := os.Open(inPath)
		if err != nil {
			return nil, &LaunchError{
				Command: cmd,
				Message: fmt.Sprintf("cannot open %s for input", inPath),
				Err:     err,
			}
		}
		toClose = append(toClose, fd)
		stdin = fd
	}

	execPath, err := LookPath(cmd.Name())
	switch {
	case errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		return nil, &LaunchError{
			Command: cmd,
			Message: fmt.Sprintf("%s: no such file or directory", cmd.Name()),
			Err:     err,
		}
	case err != nil:
		return nil, &LaunchError{
			Command: cmd,
			Message: fmt.Sprintf("smallsh: cannot execute file: %v", err),
			Err:     err,
		}
	}

	proc, err := os.StartProcess(execPath, cmd.Args(), &os.ProcAttr{
		Env:   l.env(),
		Files: []*os.File{stdin, stdout, stderr},
	})
	if err != nil {
		return nil, &LaunchError{
			Command: cmd,
			Message: fmt.Sprintf("smallsh: cannot execute file: %v", err),
			Err:     err,
		}
	}

	// The coordinator reaps children with wait4, the handle isn't needed.
	pid := proc.Pid
	_ = proc.Release()

	return &Process{
		Pid:     pid,
		Path:    execPath,
		Command: cmd,
	}, nil
}

// StandInShell is the program StartStandIn runs.
const StandInShell = "sh"

// StartStandIn creates a process that exits with code right away. It takes
// the place of a background cmd that couldn't be started so the failure is
// reported like any other background child.
func (l *Launcher) StartStandIn(cmd *shell.Command, code int) (*Process, error) {
	path, err := LookPath(StandInShell)
	if err != nil {
		return nil, err
	}

	null, err := os.OpenFile(shell.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer null.Close()

	argv := []string{StandInShell, "-c", fmt.Sprintf("exit %d", code)}
	proc, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   l.env(),
		Files: []*os.File{null, null, null},
	})
	if err != nil {
		return nil, err
	}

	pid := proc.Pid
	_ = proc.Release()

	return &Process{
		Pid:     pid,
		Path:    path,
		Command: cmd,
	}, nil
}

func (l *Launcher) env() []string {
	if l.Env == nil {
		return os.Environ()
	}
	return l.Env
}
