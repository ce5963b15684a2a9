package shell

import (
	"fmt"
	"strings"
)

// DevNull is the sink and source used for background commands that don't
// name a file.
const DevNull = "/dev/null"

// Command is a single parsed line of input. It is not modified after
// construction.
type Command struct {
	args       []string
	stdin      string
	stdout     string
	background bool
}

// CommandOpt configures a Command built with NewCommand.
type CommandOpt func(*Command)

// WithStdin sets the file to use as standard input.
func WithStdin(path string) CommandOpt {
	return func(c *Command) {
		c.stdin = path
	}
}

// WithStdout sets the file to use as standard output.
func WithStdout(path string) CommandOpt {
	return func(c *Command) {
		c.stdout = path
	}
}

// InBackground marks the command as a background command.
func InBackground() CommandOpt {
	return func(c *Command) {
		c.background = true
	}
}

// NewCommand builds a Command directly from its argument vector. It panics if
// args is empty.
func NewCommand(args []string, opts ...CommandOpt) *Command {
	if len(args) == 0 {
		panic("shell: command requires at least one argument")
	}

	cmd := &Command{
		args: append([]string(nil), args...),
	}
	for _, opt := range opts {
		opt(cmd)
	}
	return cmd
}

// Args returns a copy of the argument vector, Args()[0] is the program name.
func (c *Command) Args() []string {
	return append([]string(nil), c.args...)
}

// Name is the program or builtin to run.
func (c *Command) Name() string {
	return c.args[0]
}

// Stdin is the path to read standard input from, empty if unset.
func (c *Command) Stdin() string {
	return c.stdin
}

// Stdout is the path to write standard output to, empty if unset.
func (c *Command) Stdout() string {
	return c.stdout
}

// Background reports whether the interpreter should not wait for the
// command.
func (c *Command) Background() bool {
	return c.background
}

func (c *Command) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(c.args, " "))
	if c.stdin != "" {
		fmt.Fprintf(&sb, " < %s", c.stdin)
	}
	if c.stdout != "" {
		fmt.Fprintf(&sb, " > %s", c.stdout)
	}
	if c.background {
		sb.WriteString(" &")
	}
	return sb.String()
}
