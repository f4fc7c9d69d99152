package monitoring

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// NewRelicApp wraps the New Relic application. A nil or disabled value
// accepts every call and records nothing.
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{}, nil
	}

	opts := []newrelic.ConfigOption{
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	}
	if cfg.LogLevel == "debug" {
		opts = append(opts, newrelic.ConfigDebugLogger(os.Stdout))
	}

	app, err := newrelic.NewApplication(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr != nil && nr.enabled && nr.Application != nil
}

// App returns the agent application, or nil when disabled.
func (nr *NewRelicApp) App() *newrelic.Application {
	if !nr.IsEnabled() {
		return nil
	}
	return nr.Application
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.Shutdown(timeout)
}

// Trip helpers

func (nr *NewRelicApp) RecordTripCreated(vehicleType string) {
	nr.RecordCustomEvent("TripCreated", map[string]interface{}{
		"vehicle_type": vehicleType,
		"timestamp":    time.Now().Unix(),
	})
}

// RecordTripTransition records one lifecycle operation. outcome is "applied",
// "not_found" or "precondition_failed".
func (nr *NewRelicApp) RecordTripTransition(operation, status, outcome string) {
	nr.RecordCustomEvent("TripTransition", map[string]interface{}{
		"operation": operation,
		"status":    status,
		"outcome":   outcome,
	})
}

// RecordAssignmentConflict counts assignments lost to a concurrent one.
func (nr *NewRelicApp) RecordAssignmentConflict() {
	nr.RecordCustomMetric("custom/trip/assignment_conflict", 1)
}

func (nr *NewRelicApp) RecordFareEstimated(vehicleType string, distanceMeters, fare float64) {
	nr.RecordCustomEvent("FareEstimated", map[string]interface{}{
		"vehicle_type": vehicleType,
		"distance_m":   distanceMeters,
		"fare":         fare,
	})
}

// RecordDatabasePoolStats records database connection pool statistics
func (nr *NewRelicApp) RecordDatabasePoolStats(stats sql.DBStats) {
	nr.RecordCustomMetric("custom/db/open_connections", float64(stats.OpenConnections))
	nr.RecordCustomMetric("custom/db/idle_connections", float64(stats.Idle))
	nr.RecordCustomMetric("custom/db/in_use_connections", float64(stats.InUse))
	nr.RecordCustomMetric("custom/db/wait_count", float64(stats.WaitCount))
}

// RecordRedisPoolStats records Redis pool statistics
func (nr *NewRelicApp) RecordRedisPoolStats(stats map[string]interface{}) {
	if hits, ok := stats["hits"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/cache_hits", float64(hits))
	}
	if misses, ok := stats["misses"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/cache_misses", float64(misses))
	}
	if timeouts, ok := stats["timeouts"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/timeouts", float64(timeouts))
	}
}
