package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var ee *ExitError
		if errors.As(err, &ee) {
			if ee.Err != nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render("[-] "+ee.Error()))
			}
			os.Exit(ee.Code)
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render("[-] "+err.Error()))
		os.Exit(ExitCLIError)
	}
}
