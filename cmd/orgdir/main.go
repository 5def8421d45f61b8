// Command orgdir is the command line front end of the organization directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"orgdirectory/internal/cli"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "orgdir:", err)
		exitFunc(1)
	}
}
