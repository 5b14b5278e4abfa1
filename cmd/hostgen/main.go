// Command hostgen renders declared hosts into generated files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/hostgen/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
