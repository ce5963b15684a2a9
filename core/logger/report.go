package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries int        `json:"invalid_entries,omitempty"`

	RunCommand  RunCommandReport  `json:"run_command_report"`
	ProcessExit ProcessExitReport `json:"process_exit_report"`
	LaunchError LaunchErrorReport `json:"launch_error_report"`
	Builtin     BuiltinReport     `json:"builtin_report"`
	Shutdown    ShutdownReport    `json:"shutdown_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	if le.SessionID != "" {
		r.Sessions.Increment(le.SessionID)
	}

	switch {
	case le.RunCommand != nil:
		r.RunCommand.update(le.RunCommand)
	case le.ProcessExit != nil:
		r.ProcessExit.update(le.ProcessExit)
	case le.LaunchError != nil:
		r.LaunchError.update(le.LaunchError)
	case le.Builtin != nil:
		r.Builtin.update(le.Builtin)
	case le.Shutdown != nil:
		r.Shutdown.update(le.Shutdown)
	default:
		r.InvalidEntries++
	}
}

type RunCommandReport struct {
	Foreground int `json:"foreground"`
	Background int `json:"background"`
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Path the command resolved to
	ResolvedCommandPaths StrCounter `json:"resolved_command_paths"`
}

func (r *RunCommandReport) update(rc *RunCommand) {
	if rc.Background {
		r.Background++
	} else {
		r.Foreground++
	}
	if len(rc.Command) > 0 {
		r.CommandNames.Increment(rc.Command[0])
	}
	r.ResolvedCommandPaths.Increment(rc.ResolvedPath)
}

type ProcessExitReport struct {
	ExitCodes StrCounter `json:"exit_codes"`
	Signals   StrCounter `json:"signals"`
}

func (r *ProcessExitReport) update(pe *ProcessExit) {
	if pe.Signal > 0 {
		r.Signals.Increment(strconv.Itoa(pe.Signal))
		return
	}
	r.ExitCodes.Increment(strconv.Itoa(pe.ExitCode))
}

type LaunchErrorReport struct {
	CommandNames StrCounter `json:"command_names"`
	Errors       StrCounter `json:"errors"`
}

func (r *LaunchErrorReport) update(le *LaunchError) {
	if len(le.Command) > 0 {
		r.CommandNames.Increment(le.Command[0])
	}
	r.Errors.Increment(le.Error)
}

type BuiltinReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *BuiltinReport) update(b *Builtin) {
	if len(b.Command) > 0 {
		r.CommandNames.Increment(b.Command[0])
	}
}

type ShutdownReport struct {
	Count  int `json:"count"`
	Reaped int `json:"reaped"`
}

func (r *ShutdownReport) update(s *Shutdown) {
	r.Count++
	r.Reaped += s.Reaped
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// Keys returns the counted strings, most frequent first.
func (s *StrCounter) Keys() []string {
	var out []string
	for k := range s.internal {
		out = append(out, k)
	}

	sort.Slice(out, func(i, j int) bool {
		ci, cj := s.internal[out[i]], s.internal[out[j]]
		if ci == cj {
			return out[i] < out[j]
		}
		return ci > cj
	})
	return out
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func (s StrCounter) String() string {
	return fmt.Sprint(s.internal)
}
