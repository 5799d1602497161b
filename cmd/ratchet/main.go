// Command ratchet is the Ratchet platform's entrypoint: a cobra CLI exposing
// serve, mcp-serve, tools and test, grounded on crawler/cmd/root.go's
// rootCmd-plus-subcommand-package shape and crawler/main.go's thin
// main()-calls-Execute() wrapper.
package main

import (
	"fmt"
	"os"

	"github.com/michiel/ratchet-sub007/internal/errs"
)

func main() {
	os.Exit(run())
}

// run executes the root command and maps its error, if any, onto the exit
// codes the CLI documents: 0 ok, 1 configuration error, 2 start-up failure.
func run() int {
	err := newRootCommand().Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, err)
	return exitCode(err)
}

// exitCode maps an error onto the CLI's documented exit codes: 1 for a
// configuration problem, 2 for anything else (the server-failure default).
func exitCode(err error) int {
	if errs.CategoryOf(err) == errs.CategoryConfiguration {
		return 1
	}
	return 2
}
