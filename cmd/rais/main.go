package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/Bparsons0904/goLogger"
)

func main() {
	log := logger.New("main")

	// the first Ctrl+C cancels the run; progress already saved stays valid
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Er("command failed", err)
		stop()
		os.Exit(1)
	}
}
