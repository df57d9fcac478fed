// Bridge API owns the serial link to the panel, runs the job worker and
// exposes the HTTP surface producers enqueue work through.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/api"
	"github.com/NotCoffee418/panel_bridge/pkg/bridge"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/scheduler"
	"github.com/NotCoffee418/panel_bridge/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.GetLogger()

	paths, err := bridge.DefaultPaths()
	if err != nil {
		log.Fatal("failed to prepare directories", "error", err)
	}
	b, err := bridge.Open(ctx, paths, log)
	if err != nil {
		log.Fatal("failed to start bridge", "error", err)
	}
	defer b.Close()

	metrics := telemetry.NewMetrics()
	metrics.RegisterLink(b.Link.Metrics())

	sched := scheduler.NewScheduler(b.Store, b.Navigator, b.Config.Jobs,
		scheduler.WithRecorder(metrics),
		scheduler.WithLogger(log),
	)
	hub := api.NewHub(metrics, log)
	server := api.NewServer(sched, b.Store, hub, metrics, log)

	// Subscribe before the worker starts so no update is missed.
	sub := sched.Subscribe(64)
	go hub.Run(ctx, sub)

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- sched.Run(ctx)
	}()

	listener := fmt.Sprintf("%s:%d", b.Config.API.ListenAddress, b.Config.API.ListenPort)
	srv := &http.Server{
		Addr:              listener,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("starting panel bridge API", "listen", listener, "device", b.Config.Serial.Device)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}

	select {
	case err := <-workerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("job worker stopped with error", "error", err)
		}
	case <-shutdownCtx.Done():
		log.Warn("job worker did not stop in time")
	}
}
