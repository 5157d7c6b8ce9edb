// Package telemetrystore is the write-only InfluxDB time-series sink for
// per-tick subsystem and performance-history telemetry, for trend analysis
// the live NDJSON stream and the [1800,2200]-byte packet budget cannot
// carry (§3/§4.7 only keeps an 8-entry ring in the packet itself).
package telemetrystore

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/model"
)

// Store is the write-only telemetry time-series sink. A disabled Store is
// a valid zero-value-backed no-op.
type Store struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.TelemetryStoreConfig
	log      *zap.Logger
}

// New connects to InfluxDB when enabled; when disabled it returns a Store
// whose Write call is a no-op.
func New(cfg config.TelemetryStoreConfig, logger *zap.Logger) (*Store, error) {
	log := logger.With(zap.String("component", "telemetrystore"))
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log}, nil
	}

	options := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		options.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		options.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect telemetry store: %w", err)
	}
	if health.Status != "pass" {
		return nil, fmt.Errorf("telemetry store health check failed: %s", health.Status)
	}

	log.Info("telemetry store connected", zap.String("url", cfg.URL), zap.String("bucket", cfg.Bucket))
	return &Store{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		cfg:      cfg,
		log:      log,
	}, nil
}

// Write appends one tick's subsystem and performance telemetry as points.
// Non-blocking: the underlying client batches and flushes asynchronously.
func (s *Store) Write(pkt model.TelemetryPacket) {
	if !s.cfg.Enabled {
		return
	}
	ts := time.UnixMilli(pkt.TimestampMS)

	s.writeAPI.WritePoint(influxdb2.NewPointWithMeasurement("power").
		AddField("battery_voltage_mv", pkt.Power.BatteryVoltageMV).
		AddField("battery_level_pct", pkt.Power.BatteryLevelPct).
		AddField("solar_enabled", pkt.Power.SolarEnabled).
		AddField("power_save", pkt.Power.PowerSave).
		AddField("charging", pkt.Power.Charging).
		SetTime(ts))

	s.writeAPI.WritePoint(influxdb2.NewPointWithMeasurement("thermal").
		AddField("core_temp_c_x100", pkt.Thermal.CoreTempC).
		AddField("battery_temp_c_x100", pkt.Thermal.BatteryTempC).
		AddField("panel_temp_c_x100", pkt.Thermal.PanelTempC).
		AddField("heater_on", pkt.Thermal.HeaterOn).
		AddTag("mode", string(pkt.Thermal.Mode)).
		SetTime(ts))

	s.writeAPI.WritePoint(influxdb2.NewPointWithMeasurement("comms").
		AddField("link_up", pkt.Comms.LinkUp).
		AddField("rx_packets", pkt.Comms.RxPackets).
		AddField("tx_packets", pkt.Comms.TxPackets).
		AddField("ber_x1e6", pkt.Comms.BitErrorRateX6).
		SetTime(ts))

	s.writeAPI.WritePoint(influxdb2.NewPointWithMeasurement("safety").
		AddTag("level", string(pkt.SafetyLevel)).
		AddField("safe_mode_active", pkt.SafeModeActive).
		AddField("active_event_count", len(pkt.SafetyEvents)).
		SetTime(ts))

	latest := pkt.PerformanceHistory[len(pkt.PerformanceHistory)-1]
	s.writeAPI.WritePoint(influxdb2.NewPointWithMeasurement("performance").
		AddField("uptime_s", latest.UptimeSeconds).
		AddField("loop_time_us", latest.LoopTimeUS).
		AddField("free_memory_kb", latest.FreeMemoryKB).
		SetTime(ts))
}

// Close flushes any buffered points and releases the client.
func (s *Store) Close() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}

// HealthCheck reports whether the InfluxDB connection is alive.
func (s *Store) HealthCheck() error {
	if !s.cfg.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := s.client.Health(ctx)
	if err != nil {
		return err
	}
	if health.Status != "pass" {
		return fmt.Errorf("telemetry store health check failed: %s", health.Status)
	}
	return nil
}
