package main

import "github.com/smallsh/smallsh/cmd"

func main() {
	cmd.Execute()
}
