package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	neary "github.com/ciotlosm/neary-sub003"
	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/geo"
	"github.com/ciotlosm/neary-sub003/transit"
)

// display holds the most recent pipeline pass for the HTTP handlers.
type display struct {
	mu        sync.RWMutex
	update    neary.DisplayUpdate
	refreshed time.Time
}

func (d *display) store(upd neary.DisplayUpdate, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.update = upd
	d.refreshed = at
}

func (d *display) load() (neary.DisplayUpdate, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.update, d.refreshed
}

func runServe(cfg config.AppConfig, log *logrus.Logger, reference geo.Coordinate) {
	if cfg.GTFSRT.VehiclePositionsURL == "" {
		log.Fatal("Serve mode needs gtfsrt.vehiclePositionsURL")
	}

	core, index := buildPipeline(cfg, log)
	builder := newVehicleMonitoringBuilder(cfg, index)
	current := &display{}

	unsubscribe := core.OnRouteTransition(func(tr transit.RouteTransition) {
		log.WithFields(logrus.Fields{
			"route": tr.RouteID,
			"from":  tr.PreviousClassification,
			"to":    tr.NewClassification,
		}).Info("Route activity changed")
	})
	defer unsubscribe()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go refreshLoop(loopCtx, core, current, reference, cfg.GTFSRT.ReadIntervalMS, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		upd, refreshed := current.load()
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		if upd.Snapshot.Degraded != nil {
			status = "degraded"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":            status,
			"lastRefreshEpoch":  refreshed.Unix(),
			"vehiclesDisplayed": len(upd.Displayed),
			"degradationLevel":  core.Degrader().Level().String(),
		})
	})
	mux.HandleFunc("/api/siri/vehicle-monitoring.json", func(w http.ResponseWriter, r *http.Request) {
		upd, _ := current.load()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(builder.Build(upd.Displayed))
	})
	mux.HandleFunc("/api/debug/export", func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "json"
		}
		out, err := core.ExportDebugData(format)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if format == "csv" {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		_, _ = w.Write([]byte(out))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server error")
		}
	}()
	log.WithField("addr", addr).Info("Server listening")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Shutdown signal received")
	stopLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Server shutdown error")
	} else {
		log.Info("Server shut down")
	}
}

// refreshLoop keeps the display current. Failed passes already produced a
// usable degraded update, so the loop stores whatever it gets and keeps
// going.
func refreshLoop(ctx context.Context, core *neary.Core, current *display, reference geo.Coordinate, intervalMS int, log *logrus.Logger) {
	interval := time.Duration(intervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 15 * time.Second
	}

	refresh := func() {
		passCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		upd, err := core.Refresh(passCtx, reference)
		if err != nil {
			log.WithError(err).Warn("Refresh degraded")
		}
		current.store(upd, time.Now())
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
