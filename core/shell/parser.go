// Package shell turns a line of user input into a Command.
package shell

import "strings"

/**
Grammar:

1. The line is split into tokens on the space character. There is no quoting
or escaping, a run of non-space characters is a single token.

2. A line that is empty, contains only spaces, or starts with '#' is not a
command.

3. "<" takes the next token as the file to read standard input from and ">"
takes the next token as the file to write standard output to. If the next
token is "&" the command runs in the background with /dev/null in place of the
file and the rest of the line is dropped. A redirection operator at the end of
the line is ignored.

4. "&" runs the command in the background and ends the command.

5. Everything else is an argument.
**/

const (
	tokenInput      = "<"
	tokenOutput     = ">"
	tokenBackground = "&"
	commentPrefix   = "#"
)

// Tokenize splits a line on literal spaces, dropping empty tokens.
func Tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' '
	})
}

// Parse converts a line of input into a Command. It returns nil if the line
// holds no command.
func Parse(line string) *Command {
	if strings.HasPrefix(line, commentPrefix) {
		return nil
	}

	cmd := &Command{}
	tokens := Tokenize(line)

parse:
	for i := 0; i < len(tokens); i++ {
		switch tok := tokens[i]; tok {
		case tokenInput, tokenOutput:
			if i+1 >= len(tokens) {
				// Dangling operator, nothing to redirect to.
				continue
			}
			i++
			target := tokens[i]
			if target == tokenBackground {
				cmd.background = true
				target = DevNull
			}
			if tok == tokenInput {
				cmd.stdin = target
			} else {
				cmd.stdout = target
			}
			if cmd.background {
				break parse
			}

		case tokenBackground:
			cmd.background = true
			break parse

		default:
			cmd.args = append(cmd.args, tok)
		}
	}

	if len(cmd.args) == 0 {
		return nil
	}
	return cmd
}
