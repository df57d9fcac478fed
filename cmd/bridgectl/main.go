// bridgectl talks to the panel directly for operators: run actions, read
// groups, send point commands and try result patterns. It opens the serial
// port itself, so stop bridge_api first.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/panel_bridge/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{log: logger.NewSlogWriter(os.Stderr, logger.WarnLevel, false)}
	if err := buildCLI(c).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
