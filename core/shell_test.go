package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/smallsh/smallsh/core/config"
	"github.com/smallsh/smallsh/core/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const (
	// helperShellEnv makes the test binary run a shell on its standard
	// streams instead of the tests.
	helperShellEnv = "SMALLSH_HELPER_SHELL"
	// helperEventsEnv names the file the helper shell records events to.
	helperEventsEnv = "SMALLSH_HELPER_EVENTS"
)

func TestMain(m *testing.M) {
	if os.Getenv(helperShellEnv) == "1" {
		os.Exit(runHelperShell())
	}
	os.Exit(m.Run())
}

func runHelperShell() int {
	var opts Options
	if path := os.Getenv(helperEventsEnv); path != "" {
		fd, err := os.Create(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		defer fd.Close()
		opts.Events = logger.NewJsonLinesLogRecorder(fd).NewSession()
	}

	s := NewShell(config.Default(), opts)
	code := s.Run()
	s.Close()
	return code
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// helperShell is a shell running in its own process group so its shutdown
// broadcast can't reach the test binary.
type helperShell struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *lockedBuffer
	events string
}

func startHelperShell(t *testing.T, dir, home string) *helperShell {
	t.Helper()

	exe, err := os.Executable()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	h := &helperShell{
		output: &lockedBuffer{},
		events: filepath.Join(t.TempDir(), "events.log"),
	}

	h.cmd = exec.CommandContext(ctx, exe)
	h.cmd.Dir = dir
	h.cmd.Env = append(os.Environ(),
		helperShellEnv+"=1",
		helperEventsEnv+"="+h.events,
		EnvHome+"="+home,
	)
	h.cmd.Stdout = h.output
	h.cmd.Stderr = h.output
	h.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h.stdin, err = h.cmd.StdinPipe()
	require.NoError(t, err)
	require.NoError(t, h.cmd.Start())

	return h
}

// finish closes the shell's input and waits for it to exit.
func (h *helperShell) finish(t *testing.T) string {
	t.Helper()

	require.NoError(t, h.stdin.Close())
	require.NoError(t, h.cmd.Wait())
	return h.output.String()
}

func (h *helperShell) readEvents(t *testing.T) []*logger.LogEntry {
	t.Helper()

	fd, err := os.Open(h.events)
	require.NoError(t, err)
	defer fd.Close()

	var entries []*logger.LogEntry
	require.NoError(t, logger.ReadJSONLinesLog(fd, func(le *logger.LogEntry) {
		entries = append(entries, le)
	}))
	return entries
}

// runScript feeds script to a helper shell started in dir and returns
// everything it printed.
func runScript(t *testing.T, dir, script string) (string, *helperShell) {
	t.Helper()

	h := startHelperShell(t, dir, filepath.Join(dir, "home"))
	_, err := io.WriteString(h.stdin, script)
	require.NoError(t, err)
	return h.finish(t), h
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, contents := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	}
}

func TestTranscripts(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	cases := map[string]string{
		"status": strings.Join([]string{
			"status",
			"# a comment",
			"",
			"true",
			"status",
			"sh exit3.sh",
			"status",
			"sh kill9.sh",
			"status",
			"status",
			"exit",
			"status",
		}, "\n") + "\n",

		"redirection": strings.Join([]string{
			"cat < in.txt",
			"wc -l < in.txt > count.txt",
			"cat count.txt",
			"cat < missing.txt",
			"status",
			"ls > nodir/out.txt",
			"smallsh-no-such-command",
			"status",
			"cat < in.txt > copy.txt",
			"cat copy.txt",
		}, "\n") + "\n",

		"cd": strings.Join([]string{
			"cd sub",
			"ls",
			"cd /smallsh/does/not/exist",
			"cd",
			"ls",
			"cd -",
			"ls",
		}, "\n") + "\n",
	}

	for tn, script := range cases {
		t.Run(tn, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{
				"in.txt":           "one\ntwo\nthree\n",
				"exit3.sh":         "exit 3\n",
				"kill9.sh":         "kill -9 $$\n",
				"sub/marker-sub":   "",
				"home/marker-home": "",
			})

			out, _ := runScript(t, dir, script)
			g.Assert(t, tn, []byte(out))
		})
	}
}

var backgroundPidRegex = regexp.MustCompile(`background pid is (\d+)`)

func backgroundPids(t *testing.T, out string) []int {
	t.Helper()

	var pids []int
	for _, match := range backgroundPidRegex.FindAllStringSubmatch(out, -1) {
		pid, err := strconv.Atoi(match[1])
		require.NoError(t, err)
		pids = append(pids, pid)
	}
	return pids
}

func TestBackground(t *testing.T) {
	dir := t.TempDir()

	out, _ := runScript(t, dir, strings.Join([]string{
		"sleep 0.2 &",
		"sleep 1",
		"status",
	}, "\n")+"\n")

	pids := backgroundPids(t, out)
	require.Len(t, pids, 1, out)

	want := fmt.Sprintf(": background pid is %d\n: background pid %d is done: exit value 0\n: exit value: 0\n: ", pids[0], pids[0])
	assert.Equal(t, want, out)
}

func TestBackgroundOutputDiscarded(t *testing.T) {
	dir := t.TempDir()

	out, _ := runScript(t, dir, strings.Join([]string{
		"echo hidden &",
		"sleep 1",
		"echo shown > /dev/stdout &",
		"sleep 1",
	}, "\n")+"\n")

	pids := backgroundPids(t, out)
	require.Len(t, pids, 2, out)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown\n")
	assert.Contains(t, out, fmt.Sprintf("background pid %d is done: exit value 0\n", pids[0]))
}

func TestShutdownReapsChildren(t *testing.T) {
	dir := t.TempDir()

	start := time.Now()
	out, h := runScript(t, dir, strings.Join([]string{
		"sleep 30 &",
		"sleep 30 &",
		"sleep 30 &",
		"exit",
	}, "\n")+"\n")

	assert.Less(t, time.Since(start), 20*time.Second, "children outlived the shell")

	pids := backgroundPids(t, out)
	require.Len(t, pids, 3, out)

	exits := make(map[int]*logger.ProcessExit)
	var shutdown *logger.Shutdown
	for _, le := range h.readEvents(t) {
		if le.ProcessExit != nil {
			exits[le.ProcessExit.Pid] = le.ProcessExit
		}
		if le.Shutdown != nil {
			shutdown = le.Shutdown
		}
	}

	require.NotNil(t, shutdown)
	assert.Equal(t, 3, shutdown.Reaped)
	for _, pid := range pids {
		require.Contains(t, exits, pid)
		assert.Equal(t, int(unix.SIGTERM), exits[pid].Signal)
		assert.True(t, exits[pid].Background)
	}
}

func TestInterruptForeground(t *testing.T) {
	dir := t.TempDir()
	h := startHelperShell(t, dir, dir)

	_, err := io.WriteString(h.stdin, "sleep 30\n")
	require.NoError(t, err)

	// Wait for the child to be running before interrupting the group.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(h.events)
		return err == nil && bytes.Contains(data, []byte(`"run_command"`))
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, unix.Kill(-h.cmd.Process.Pid, unix.SIGINT))

	_, err = io.WriteString(h.stdin, "status\nexit\n")
	require.NoError(t, err)

	out := h.finish(t)
	assert.Equal(t, ": terminated by signal 2\n: terminated by signal: 2\n: ", out)
}

func TestBackgroundLaunchFailure(t *testing.T) {
	dir := t.TempDir()

	out, _ := runScript(t, dir, strings.Join([]string{
		"smallsh-no-such-command &",
		"cat < missing.txt &",
		"sleep 1",
		"status",
	}, "\n")+"\n")

	pids := backgroundPids(t, out)
	require.Len(t, pids, 2, out)

	assert.Contains(t, out, "smallsh-no-such-command: no such file or directory\n")
	assert.Contains(t, out, "cannot open missing.txt for input\n")
	for _, pid := range pids {
		assert.Contains(t, out, fmt.Sprintf("background pid %d is done: exit value 1\n", pid))
	}
	// Background results never reach status.
	assert.True(t, strings.HasSuffix(out, ": exit value: 0\n: "), out)
}

func TestTerminateHeldWhileReading(t *testing.T) {
	dir := t.TempDir()
	h := startHelperShell(t, dir, dir)

	// The prompt is written once the shell is reading.
	require.Eventually(t, func() bool {
		return h.output.String() == ": "
	}, 10*time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- h.cmd.Wait()
	}()

	require.NoError(t, unix.Kill(h.cmd.Process.Pid, unix.SIGTERM))
	assert.Never(t, func() bool {
		return len(done) > 0
	}, 500*time.Millisecond, 10*time.Millisecond, "shell exited while reading")

	_, err := io.WriteString(h.stdin, "status\n")
	require.NoError(t, err)

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shell kept running after the line was read")
	}

	var exitErr *exec.ExitError
	require.ErrorAs(t, waitErr, &exitErr)
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, ws.Signaled())
	assert.Equal(t, syscall.SIGTERM, ws.Signal())
}
