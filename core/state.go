package core

import "fmt"

// State is what the interpreter remembers between lines.
type State struct {
	// LastExitCode is the exit status of the last foreground command, -1 until
	// one has finished.
	LastExitCode int
	// LastSignal is the signal that killed the last foreground command, 0 if
	// it exited on its own.
	LastSignal int
	// PreviousDir is the target of "cd -".
	PreviousDir string
}

// NewState creates the state of a shell that hasn't run anything yet.
func NewState() *State {
	return &State{
		LastExitCode: -1,
	}
}

// RecordExit stores the exit status of a foreground command.
func (s *State) RecordExit(code int) {
	s.LastExitCode = code
	s.LastSignal = 0
}

// RecordSignal stores the signal that terminated a foreground command. The
// exit code keeps its previous value.
func (s *State) RecordSignal(sig int) {
	s.LastSignal = sig
}

// Describe returns the line printed by the status builtin. It returns false
// if no foreground command has finished.
func (s *State) Describe() (string, bool) {
	switch {
	case s.LastSignal > 0:
		return fmt.Sprintf("terminated by signal: %d", s.LastSignal), true
	case s.LastExitCode > -1:
		return fmt.Sprintf("exit value: %d", s.LastExitCode), true
	default:
		return "", false
	}
}
