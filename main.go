// ./main.go
package main

import (
	"github.com/nelieo/superagent/cmd"
)

// main is the entry point for the superagent CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
