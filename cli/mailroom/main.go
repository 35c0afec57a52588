package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mailroomcmder "github.com/papercomputeco/mailroom/cmd/mailroom"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := mailroomcmder.NewMailroomCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
