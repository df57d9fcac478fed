// Job watcher follows the job event stream of a running bridge and prints
// each update. Depends on the bridge API being online.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/panel_bridge/pkg/jobwatch"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set the host:port from env var BRIDGE_API_HOST
	host := os.Getenv("BRIDGE_API_HOST")
	if host == "" {
		host = "localhost:9040"
	}

	log := logger.GetLogger()
	watcher := jobwatch.NewWatcher(host, handleJobUpdate, jobwatch.WithLogger(log))
	if err := watcher.Run(ctx); err != nil {
		log.Fatal("job watcher stopped", "error", err)
	}
}

// Terminal updates are printed as JSON lines, progress as a short status line.
func handleJobUpdate(job *types.Job) {
	if job.Status.IsTerminal() {
		fmt.Println(string(job.ToJsonBytes()))
		return
	}
	fmt.Printf("%s %s %s\n", job.ID, job.Kind, job.Status)
}
