// The main package for the catalog-crawler executable.
package main

import (
	"github.com/appdex/catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
