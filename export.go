package neary

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ciotlosm/neary-sub003/breaker"
	"github.com/ciotlosm/neary-sub003/cache"
	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/degrade"
	"github.com/ciotlosm/neary-sub003/transit"
)

// DebugReport is a point-in-time dump of every subsystem's observable
// state, the payload behind ExportDebugData.
type DebugReport struct {
	GeneratedAt      string                      `json:"generatedAt"`
	Config           config.FilterConfig         `json:"config"`
	Cache            cache.Stats                 `json:"cache"`
	Breakers         map[string]breaker.Snapshot `json:"breakers"`
	DegradationLevel string                      `json:"degradationLevel"`
	EmergencyMode    bool                        `json:"emergencyMode"`
	History          []degrade.Event             `json:"degradationHistory"`
	RouteActivity    transit.ActivityMap         `json:"routeActivity,omitempty"`
}

// DebugReport assembles the current report.
func (c *Core) DebugReport() DebugReport {
	return DebugReport{
		GeneratedAt:      c.now().UTC().Format(time.RFC3339),
		Config:           c.settings.Current(),
		Cache:            c.cache.Stats(),
		Breakers:         c.breakers.Snapshots(),
		DegradationLevel: c.degrader.Level().String(),
		EmergencyMode:    c.degrader.EmergencyActive(),
		History:          c.degrader.History(),
		RouteActivity:    c.lastActivitySnapshot(),
	}
}

// ExportDebugData renders the debug report as "json" or "csv". Anything
// else is a configuration error.
func (c *Core) ExportDebugData(format string) (string, error) {
	report := c.DebugReport()
	switch strings.ToLower(format) {
	case "json":
		buf, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("neary: encode debug report: %w", err)
		}
		return string(buf), nil
	case "csv":
		return encodeDebugCSV(report)
	default:
		return "", fmt.Errorf("neary: unsupported debug export format %q", format)
	}
}

// encodeDebugCSV flattens the report into section/name/value rows so it
// pastes straight into a spreadsheet.
func encodeDebugCSV(report DebugReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "name", "value"},
		{"report", "generatedAt", report.GeneratedAt},
		{"config", "busyRouteThreshold", strconv.Itoa(report.Config.BusyRouteThreshold)},
		{"config", "distanceFilterThreshold", strconv.FormatFloat(report.Config.DistanceFilterThreshold, 'f', -1, 64)},
		{"config", "enableDebugLogging", strconv.FormatBool(report.Config.EnableDebugLogging)},
		{"config", "performanceMonitoring", strconv.FormatBool(report.Config.PerformanceMonitoring)},
		{"cache", "entries", strconv.Itoa(report.Cache.Entries)},
		{"cache", "sizeBytes", strconv.FormatInt(report.Cache.SizeBytes, 10)},
		{"cache", "hits", strconv.FormatInt(report.Cache.Counters.Hits, 10)},
		{"cache", "misses", strconv.FormatInt(report.Cache.Counters.Misses, 10)},
		{"cache", "staleServes", strconv.FormatInt(report.Cache.Counters.StaleServes, 10)},
		{"cache", "staleFallbacks", strconv.FormatInt(report.Cache.Counters.StaleFallbacks, 10)},
		{"cache", "evictions", strconv.FormatInt(report.Cache.Counters.Evictions, 10)},
		{"cache", "backgroundRefreshes", strconv.FormatInt(report.Cache.Counters.BackgroundRefreshes, 10)},
		{"cache", "backgroundFailures", strconv.FormatInt(report.Cache.Counters.BackgroundFailures, 10)},
	}

	for _, prefix := range sortedKeys(report.Cache.Prefixes) {
		ps := report.Cache.Prefixes[prefix]
		rows = append(rows, []string{"cachePrefix", prefix, strconv.Itoa(ps.Entries)})
	}

	for _, component := range sortedKeys(report.Breakers) {
		snap := report.Breakers[component]
		rows = append(rows, []string{"breaker", component,
			fmt.Sprintf("%s failures=%d successes=%d", snap.State, snap.FailureCount, snap.SuccessCount)})
	}

	rows = append(rows,
		[]string{"degradation", "level", report.DegradationLevel},
		[]string{"degradation", "emergencyMode", strconv.FormatBool(report.EmergencyMode)},
	)
	for _, ev := range report.History {
		rows = append(rows, []string{"degradationEvent",
			ev.Timestamp.UTC().Format(time.RFC3339) + " " + string(ev.Failure),
			fmt.Sprintf("%s level=%s confidence=%.2f", ev.Strategy, ev.Level, ev.Confidence)})
	}

	for _, routeID := range sortedKeys(report.RouteActivity) {
		ra := report.RouteActivity[routeID]
		rows = append(rows, []string{"routeActivity", routeID,
			fmt.Sprintf("%s vehicles=%d", ra.Classification, ra.VehicleCount)})
	}

	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("neary: encode debug csv: %w", err)
	}
	return buf.String(), nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
