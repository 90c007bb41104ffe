// Command synccore validates system configurations, boots kernel nodes,
// runs scenario suites and reads run journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/synccore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
