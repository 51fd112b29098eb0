package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	neary "github.com/ciotlosm/neary-sub003"
	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/feed"
	"github.com/ciotlosm/neary-sub003/geo"
	"github.com/ciotlosm/neary-sub003/siri"
	"github.com/ciotlosm/neary-sub003/stops"
	"github.com/ciotlosm/neary-sub003/transit"
)

func isHTTP(urlOrPath string) bool {
	return strings.HasPrefix(urlOrPath, "http://") || strings.HasPrefix(urlOrPath, "https://")
}

// buildPipeline assembles the core and its data sources from configuration.
// A missing static feed only costs journey enrichment and direction
// inference, so it downgrades to a warning.
func buildPipeline(cfg config.AppConfig, log *logrus.Logger) (*neary.Core, *stops.Index) {
	var index *stops.Index
	if cfg.GTFS.StaticPath != "" || cfg.GTFS.StaticURL != "" {
		var err error
		index, err = stops.Load(cfg.GTFS, log)
		if err != nil {
			log.WithError(err).Warn("Static feed unavailable, continuing without stop data")
			index = nil
		}
	}

	opts := []neary.CoreOption{}
	if index != nil {
		opts = append(opts, neary.WithStops(index))
	}
	if cfg.GTFSRT.VehiclePositionsURL != "" || cfg.GTFSRT.TripUpdatesURL != "" {
		feedOpts := []feed.Option{}
		if index != nil {
			feedOpts = append(feedOpts, feed.WithRouteResolver(index.RouteForTrip))
		}
		opts = append(opts, neary.WithFeed(feed.New(cfg.GTFSRT, log, feedOpts...)))
	}
	return neary.NewCore(cfg, log, opts...), index
}

// loadLocalVehicles decodes a GTFS-RT protobuf file from disk, for running
// the pipeline against captured feeds.
func loadLocalVehicles(path string, index *stops.Index, log *logrus.Logger) ([]transit.Vehicle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fm, err := feed.UnmarshalMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	var resolve feed.RouteResolver
	if index != nil {
		resolve = index.RouteForTrip
	}
	vehicles, skipped := feed.DecodeVehicles(fm, resolve, time.Now(), log)
	if skipped > 0 {
		log.WithFields(logrus.Fields{"skipped": skipped, "kept": len(vehicles)}).
			Warn("Some feed entities were not usable")
	}
	return vehicles, nil
}

func newVehicleMonitoringBuilder(cfg config.AppConfig, index *stops.Index) *siri.Builder {
	validity := time.Duration(cfg.GTFSRT.ReadIntervalMS) * time.Millisecond
	return siri.NewBuilder(index, cfg.GTFS.AgencyID, validity)
}

// runOneshot executes one pipeline pass and prints the result.
func runOneshot(cfg config.AppConfig, log *logrus.Logger, vehiclePositions string, reference geo.Coordinate, format string) error {
	core, index := buildPipeline(cfg, log)

	if vehiclePositions != "" && !isHTTP(vehiclePositions) {
		vehicles, err := loadLocalVehicles(vehiclePositions, index, log)
		if err != nil {
			return err
		}
		core.SetVehicles(vehicles)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	upd, err := core.Refresh(ctx, reference)
	if err != nil {
		// Degraded output still renders; the update carries the event.
		log.WithError(err).Warn("Pipeline degraded, rendering fallback data")
	}

	switch format {
	case "siri":
		response := newVehicleMonitoringBuilder(cfg, index).Build(upd.Displayed)
		buf, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		fmt.Println(string(buf))
	case "debug-json":
		out, err := core.ExportDebugData("json")
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "debug-csv":
		out, err := core.ExportDebugData("csv")
		if err != nil {
			return err
		}
		fmt.Print(out)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
