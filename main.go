// The main package for the quotes executable.
package main

import (
	"github.com/JakeFAU/quotes-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
