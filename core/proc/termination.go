package proc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Termination describes how a child ended.
type Termination struct {
	// ExitCode is the exit status, only meaningful if Signal is 0.
	ExitCode int
	// Signal is the signal that killed the process, 0 if it exited.
	Signal unix.Signal
}

// TerminationFromWaitStatus decodes a status collected by wait4.
func TerminationFromWaitStatus(ws unix.WaitStatus) Termination {
	if ws.Signaled() {
		return Termination{Signal: ws.Signal()}
	}
	return Termination{ExitCode: ws.ExitStatus()}
}

// Signaled returns true if the process was killed by a signal.
func (t Termination) Signaled() bool {
	return t.Signal > 0
}

func (t Termination) String() string {
	if t.Signaled() {
		return fmt.Sprintf("terminated by signal %d", int(t.Signal))
	}
	return fmt.Sprintf("exit value %d", t.ExitCode)
}

// wait blocks (or polls with unix.WNOHANG) for pid. It returns 0 as the pid
// if a non-blocking wait found nothing to collect.
func wait(pid int, options int) (int, Termination, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, Termination{}, err
		case wpid == 0:
			return 0, Termination{}, nil
		default:
			return wpid, TerminationFromWaitStatus(ws), nil
		}
	}
}
