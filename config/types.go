package config

// ServerConfig contains server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// GTFSConfig contains GTFS static feed configuration. StaticPath takes
// precedence over StaticURL when both are set.
type GTFSConfig struct {
	StaticURL  string `yaml:"staticURL" validate:"omitempty,url"`
	StaticPath string `yaml:"staticPath" validate:"omitempty"`
	AgencyID   string `yaml:"agency_id" validate:"omitempty"`
}

// GTFSRTConfig contains GTFS-Realtime feed configuration
type GTFSRTConfig struct {
	TripUpdatesURL      string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	ReadIntervalMS      int    `yaml:"readIntervalMS" validate:"gte=0"`
	TimeoutMS           int    `yaml:"timeoutMS" validate:"gte=0"`
}

// Documented defaults for the user-adjustable filtering settings. An invalid
// field in an update falls back to these independently of its siblings.
const (
	DefaultBusyRouteThreshold      = 5
	DefaultDistanceFilterThreshold = 2000.0
	DefaultEnableDebugLogging      = false
	DefaultPerformanceMonitoring   = true
)

// FilterConfig holds the user-adjustable route filtering settings.
// BusyRouteThreshold is the vehicle count at which a route counts as busy;
// DistanceFilterThreshold is in meters.
type FilterConfig struct {
	BusyRouteThreshold      int     `yaml:"busyRouteThreshold" json:"busyRouteThreshold" validate:"gte=1"`
	DistanceFilterThreshold float64 `yaml:"distanceFilterThreshold" json:"distanceFilterThreshold" validate:"gte=100"`
	EnableDebugLogging      bool    `yaml:"enableDebugLogging" json:"enableDebugLogging"`
	PerformanceMonitoring   bool    `yaml:"performanceMonitoring" json:"performanceMonitoring"`
}

// DefaultFilterConfig returns the documented defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		BusyRouteThreshold:      DefaultBusyRouteThreshold,
		DistanceFilterThreshold: DefaultDistanceFilterThreshold,
		EnableDebugLogging:      DefaultEnableDebugLogging,
		PerformanceMonitoring:   DefaultPerformanceMonitoring,
	}
}

// CacheRuleConfig is the yaml-facing shape of one per-prefix cache rule.
type CacheRuleConfig struct {
	TTLSeconds           int  `yaml:"ttlSeconds" validate:"gte=0"`
	MaxAgeSeconds        int  `yaml:"maxAgeSeconds" validate:"gte=0"`
	StaleWhileRevalidate bool `yaml:"staleWhileRevalidate"`
	MaxEntries           int  `yaml:"maxEntries" validate:"gte=0"`
}

// CacheConfig bounds the cache manager.
type CacheConfig struct {
	MaxEntries         int                        `yaml:"maxEntries" validate:"gte=0"`
	PressureThreshold  float64                    `yaml:"pressureThreshold" validate:"gte=0,lte=1"`
	EmergencyThreshold float64                    `yaml:"emergencyThreshold" validate:"gte=0,lte=1"`
	HeapBudgetMB       int                        `yaml:"heapBudgetMB" validate:"gte=0"`
	Rules              map[string]CacheRuleConfig `yaml:"rules"`
}

// BreakerConfig tunes the circuit breakers.
type BreakerConfig struct {
	FailureThreshold     int `yaml:"failureThreshold" validate:"gte=0"`
	RecoveryTimeoutMS    int `yaml:"recoveryTimeoutMS" validate:"gte=0"`
	ForgivenessThreshold int `yaml:"forgivenessThreshold" validate:"gte=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" validate:"required"`
	GTFS    GTFSConfig    `yaml:"gtfs"`
	GTFSRT  GTFSRTConfig  `yaml:"gtfsrt"`
	Filter  FilterConfig  `yaml:"filter"`
	Cache   CacheConfig   `yaml:"cache"`
	Breaker BreakerConfig `yaml:"breaker"`
}
