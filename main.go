// The main package for the enricher executable.
package main

import "github.com/JakeFAU/leadgraph-enricher/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
