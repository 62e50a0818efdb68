// The main package for the archiver executable.
package main

import (
	"github.com/joalvis1996/archive-saver-web/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
