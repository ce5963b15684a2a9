// Package core runs the interactive interpreter: it reads lines, dispatches
// builtins and hands everything else to the process coordinator.
package core

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/smallsh/smallsh/core/config"
	"github.com/smallsh/smallsh/core/logger"
	"github.com/smallsh/smallsh/core/proc"
	"github.com/smallsh/smallsh/core/shell"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Options configures a Shell. Streams left nil default to the process's own.
type Options struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Reader replaces the line reader picked for Stdin.
	Reader LineReader

	Events *logger.SessionLogger
}

type Shell struct {
	State *State
	// Quit is set once the shell should stop reading lines.
	Quit bool

	configuration *config.Configuration
	coordinator   *proc.Coordinator
	reader        LineReader
	stdout        io.Writer
	stderr        io.Writer
	diagnostic    *color.Color
	events        *logger.SessionLogger
}

// NewShell creates a shell and takes over the process's interrupt and child
// signals. Call Close when done to clean up children.
func NewShell(configuration *config.Configuration, opts Options) *Shell {
	stdin := orDefault(opts.Stdin, os.Stdin)
	stdout := orDefault(opts.Stdout, os.Stdout)
	stderr := orDefault(opts.Stderr, os.Stderr)

	events := opts.Events
	if events == nil {
		events = logger.NewNopLogger().Sessionless()
	}

	reader := opts.Reader
	if reader == nil {
		reader = NewLineReader(stdin, stdout, configuration.MaxLineLength)
	}

	diagnostic := diagnosticColor(configuration.Color, stderr)

	launcher := proc.NewLauncher(configuration.NullDevice)
	launcher.Stdin = stdin
	launcher.Stdout = stdout
	launcher.Stderr = stderr

	coordinator := proc.NewCoordinator(proc.Options{
		Launcher:     launcher,
		Stdout:       stdout,
		Stderr:       stderr,
		Diagnostic:   diagnostic,
		Events:       events,
		ProcessGroup: unix.Getpgrp(),
	})
	coordinator.Start()

	return &Shell{
		State:         NewState(),
		configuration: configuration,
		coordinator:   coordinator,
		reader:        reader,
		stdout:        stdout,
		stderr:        stderr,
		diagnostic:    diagnostic,
		events:        events,
	}
}

func orDefault(f, def *os.File) *os.File {
	if f == nil {
		return def
	}
	return f
}

// diagnosticColor resolves the configured color mode for w.
func diagnosticColor(mode string, w *os.File) *color.Color {
	c := color.New(color.FgRed, color.Bold)

	enabled := mode == config.ColorAlways
	if mode == config.ColorAuto {
		enabled = term.IsTerminal(int(w.Fd()))
	}

	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// Run reads and executes lines until exit is called or input runs out. It
// returns the status the interpreter should exit with.
func (s *Shell) Run() int {
	for !s.Quit {
		// Completion notices would land in the middle of the prompt.
		s.coordinator.Mask()
		line, err := s.reader.ReadLine(s.configuration.Prompt)
		s.coordinator.Unmask()

		switch {
		case err == io.EOF:
			s.Quit = true
		case err != nil:
			s.printDiagnostic("smallsh: reading input: %v", err)
			return 1
		default:
			s.RunLine(line)
		}
	}

	return 0
}

// RunLine parses and executes a single line.
func (s *Shell) RunLine(line string) {
	cmd := shell.Parse(line)
	if cmd == nil {
		return
	}

	if s.dispatchBuiltin(cmd) {
		return
	}

	s.coordinator.Run(cmd, s.State)
}

func (s *Shell) dispatchBuiltin(cmd *shell.Command) bool {
	builtin, ok := AllBuiltins[cmd.Name()]
	if !ok {
		return false
	}

	s.events.Record(&logger.Builtin{Command: cmd.Args()})
	builtin.Main(s, cmd.Args())
	return true
}

// Close terminates every process in the shell's process group and waits for
// all children to exit.
func (s *Shell) Close() error {
	s.coordinator.Shutdown()
	return nil
}

func (s *Shell) printDiagnostic(format string, a ...interface{}) {
	s.diagnostic.Fprintf(s.stderr, format+"\n", a...)
}
