package main

import (
	"flag"
	"math"

	neary "github.com/ciotlosm/neary-sub003"
	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/geo"
)

func main() {
	mode := flag.String("mode", "oneshot", "oneshot|serve")
	configPath := flag.String("config", "", "path to config.yml (defaults to ./config.yml)")
	vehiclePositions := flag.String("vehiclePositions", "", "GTFS-RT VehiclePositions URL or local file (overrides config)")
	lat := flag.Float64("lat", math.NaN(), "viewer latitude; busy-route distance filtering is skipped without one")
	lon := flag.Float64("lon", math.NaN(), "viewer longitude")
	format := flag.String("format", "siri", "oneshot output: siri|debug-json|debug-csv")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log := neary.NewLogger(*debug)

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.WithError(err).Fatal("Configuration unusable")
	}
	if *vehiclePositions != "" && isHTTP(*vehiclePositions) {
		cfg.GTFSRT.VehiclePositionsURL = *vehiclePositions
	}

	reference := geo.Coordinate{Latitude: *lat, Longitude: *lon}

	switch *mode {
	case "oneshot":
		if err := runOneshot(cfg, log, *vehiclePositions, reference, *format); err != nil {
			log.WithError(err).Fatal("Oneshot run failed")
		}
	case "serve":
		runServe(cfg, log, reference)
	default:
		log.WithField("mode", *mode).Fatal("Unknown mode")
	}
}
