package core

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptReader(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewScriptReader(strings.NewReader("ls -l\n\n0123456789abc\nlast"), out, 10)

	var lines []string
	for {
		line, err := r.ReadLine(": ")
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}

	assert.Equal(t, []string{"ls -l", "", "0123456789", "last"}, lines)
	assert.Equal(t, ": : : : : ", out.String())
}

func TestClearOnInterrupt(t *testing.T) {
	r := &clearOnInterrupt{r: strings.NewReader("abc\x03def\r")}

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc\x15def\r", string(got))
}
