package core

import (
	"fmt"
	"os"
	"sort"
)

const (
	EnvHome = "HOME"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// BuiltinNames returns the names of all registered builtins in sorted order.
func BuiltinNames() []string {
	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cd is the cd shell builtin. With no argument it goes to $HOME and with "-"
// it goes to the directory that was current when cd last ran.
func Cd(s *Shell, args []string) int {
	// Recorded for the next "cd -" whether or not this call succeeds.
	cwd, _ := os.Getwd()
	defer func() {
		s.State.PreviousDir = cwd
	}()

	var dir string
	switch {
	case len(args) < 2:
		dir = os.Getenv(EnvHome)
	case args[1] == "-":
		dir = s.State.PreviousDir
	default:
		dir = args[1]
	}

	if err := os.Chdir(dir); err != nil {
		s.printDiagnostic("%s: %v", args[0], err)
		return 1
	}
	return 0
}

// Status prints how the last foreground command ended. Nothing is printed
// before the first one finishes.
func Status(s *Shell, args []string) int {
	if line, ok := s.State.Describe(); ok {
		fmt.Fprintln(s.stdout, line)
	}
	return 0
}

// Exit quits the shell after the current line. Children are cleaned up when
// the shell is closed.
func Exit(s *Shell, args []string) int {
	s.Quit = true
	return 0
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["status"] = ShellBuiltinFunc(Status)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
}
