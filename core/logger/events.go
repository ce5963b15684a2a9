package logger

// LogEntry is a single line of the event log. Exactly one of the event fields
// is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	RunCommand  *RunCommand  `json:"run_command,omitempty"`
	ProcessExit *ProcessExit `json:"process_exit,omitempty"`
	LaunchError *LaunchError `json:"launch_error,omitempty"`
	Builtin     *Builtin     `json:"builtin,omitempty"`
	Shutdown    *Shutdown    `json:"shutdown,omitempty"`
}

// LogType is implemented by every event that can be recorded.
type LogType interface {
	setOn(le *LogEntry)
}

// RunCommand is logged when a child process is started.
type RunCommand struct {
	Command      []string `json:"command"`
	ResolvedPath string   `json:"resolved_path"`
	Pid          int      `json:"pid"`
	Background   bool     `json:"background"`
}

func (e *RunCommand) setOn(le *LogEntry) { le.RunCommand = e }

// ProcessExit is logged when a child process is reaped.
type ProcessExit struct {
	Pid        int  `json:"pid"`
	Background bool `json:"background"`
	ExitCode   int  `json:"exit_code"`
	Signal     int  `json:"signal,omitempty"`
}

func (e *ProcessExit) setOn(le *LogEntry) { le.ProcessExit = e }

// LaunchError is logged when a command couldn't be started.
type LaunchError struct {
	Command    []string `json:"command"`
	Background bool     `json:"background"`
	Error      string   `json:"error"`
}

func (e *LaunchError) setOn(le *LogEntry) { le.LaunchError = e }

// Builtin is logged when a builtin runs.
type Builtin struct {
	Command []string `json:"command"`
}

func (e *Builtin) setOn(le *LogEntry) { le.Builtin = e }

// Shutdown is logged when the shell exits.
type Shutdown struct {
	// Reaped is the number of children collected after the broadcast.
	Reaped int `json:"reaped"`
}

func (e *Shutdown) setOn(le *LogEntry) { le.Shutdown = e }
