// execgate - a TCP gateway that gives every connection its own copy of
// a console program.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"execgate/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "execgate: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
