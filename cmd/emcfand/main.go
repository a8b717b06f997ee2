// emcfand polls an EMC2101 fan controller, drives the fan from a
// configured temperature curve and exports the readings as prometheus
// metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/northbridge-labs/emcfan/internal/fand"
	"github.com/northbridge-labs/emcfan/pkg/log"
)

func main() {
	var wg sync.WaitGroup

	configPath := flag.String("config", "", "configuration file (default: search /etc/emcfan and . for emcfand.yaml)")
	flag.Parse()

	cfg, err := fand.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zapLogger := log.Setup("emcfand", cfg.Verbose)
	baseCtx := log.IntoContext(context.Background(), zapLogger)

	ctx, cancelCtx := context.WithCancelCause(baseCtx)
	defer cancelCtx(context.Canceled)

	daemon, err := fand.New(ctx, cfg)
	if err != nil {
		log.FromContext(ctx).Error("Failed to create fan daemon", zap.Error(err))
		cancelCtx(err)
	}

	// setup stop signal handlers
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Wait for context cancel or signal
		select {
		case <-ctx.Done():
		case sig := <-sigs:
			// On signal, cancel context
			cancelCtx(fmt.Errorf("signal %s received", sig))
		}
	}()

	// Run daemon
	if daemon != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := daemon.Run(ctx)
			if err != nil && err != context.Canceled {
				log.FromContext(ctx).Error("Failed to run fan daemon", zap.Error(err))
				cancelCtx(err)
			}
		}()
	}

	// setup prometheus endpoint
	promHandler := http.NewServeMux()
	promHandler.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: promHandler}
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.FromContext(ctx).Error("Failed to start prometheus server", zap.Error(err))
			cancelCtx(err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.FromContext(ctx).Error("Failed to shutdown prometheus server", zap.Error(err))
		}
	}()

	// Wait for context cancel
	wg.Wait()
	if err := context.Cause(ctx); err != nil && err != context.Canceled {
		log.FromContext(ctx).Fatal("Exiting", zap.Error(err))
	} else {
		log.FromContext(ctx).Info("Exiting")
	}
}
