// tlsnc - netcat for TLS, with SSH jump-host support.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tlsnc/cmd"
	ncerr "tlsnc/internal/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tlsnc: %v\n", err)
		if hint := ncerr.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
