package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	keyCtrlC = 3
	keyCtrlU = 21
)

// LineReader reads one line of input for each prompt.
type LineReader interface {
	// ReadLine shows prompt and returns the next line without its newline.
	// io.EOF is returned once input is exhausted.
	ReadLine(prompt string) (string, error)
}

// NewLineReader picks a TerminalReader when in is a terminal and a
// ScriptReader otherwise.
func NewLineReader(in *os.File, out io.Writer, maxLength int) LineReader {
	if term.IsTerminal(int(in.Fd())) {
		return NewTerminalReader(in, out, maxLength)
	}
	return NewScriptReader(in, out, maxLength)
}

func truncate(line string, maxLength int) string {
	if maxLength > 0 && len(line) > maxLength {
		return line[:maxLength]
	}
	return line
}

// ScriptReader reads lines from a pipe or file.
type ScriptReader struct {
	in        *bufio.Reader
	out       io.Writer
	maxLength int
}

var _ LineReader = (*ScriptReader)(nil)

// NewScriptReader creates a reader that prints prompts to out and reads lines
// of at most maxLength bytes from in. The rest of a longer line is discarded.
func NewScriptReader(in io.Reader, out io.Writer, maxLength int) *ScriptReader {
	return &ScriptReader{
		in:        bufio.NewReader(in),
		out:       out,
		maxLength: maxLength,
	}
}

func (r *ScriptReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)

	line, err := r.in.ReadString('\n')
	switch {
	case err == io.EOF && line == "":
		return "", io.EOF
	case err != nil && err != io.EOF:
		return "", err
	}

	return truncate(strings.TrimSuffix(line, "\n"), r.maxLength), nil
}

// TerminalReader reads lines from a terminal with basic line editing. The
// terminal is only in raw mode while a line is being read so children see
// their usual cooked terminal.
type TerminalReader struct {
	fd        int
	out       io.Writer
	terminal  *term.Terminal
	maxLength int
}

var _ LineReader = (*TerminalReader)(nil)

// NewTerminalReader creates a reader for the terminal in, echoing to out.
func NewTerminalReader(in *os.File, out io.Writer, maxLength int) *TerminalReader {
	rw := struct {
		io.Reader
		io.Writer
	}{&clearOnInterrupt{r: in}, out}

	return &TerminalReader{
		fd:        int(in.Fd()),
		out:       out,
		terminal:  term.NewTerminal(rw, ""),
		maxLength: maxLength,
	}
}

func (r *TerminalReader) ReadLine(prompt string) (string, error) {
	prevState, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(r.fd, prevState)

	r.terminal.SetPrompt(prompt)
	line, err := r.terminal.ReadLine()
	if err == io.EOF {
		fmt.Fprint(r.out, "\r\n")
	}
	if err != nil {
		return "", err
	}

	return truncate(line, r.maxLength), nil
}

// clearOnInterrupt turns Ctrl-C into Ctrl-U. The terminal is raw while
// reading, so an interrupt arrives as a byte and should only discard the line.
type clearOnInterrupt struct {
	r io.Reader
}

func (c *clearOnInterrupt) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == keyCtrlC {
			p[i] = keyCtrlU
		}
	}
	return n, err
}
