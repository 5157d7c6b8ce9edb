package model

// PerformanceSnapshot is one entry of the telemetry performance-history ring, §3.
// Downsized types keep the packet within budget: uptime fits a year in u32
// seconds, loop time is u16 microseconds (saturating at 65535 us), free memory
// fits a small flight computer in u16 KiB.
type PerformanceSnapshot struct {
	UptimeSeconds  uint32 `json:"uptime_s"`
	LoopTimeUS     uint16 `json:"loop_time_us"`
	FreeMemoryKB   uint16 `json:"free_memory_kb"`
}

// PerformanceHistoryCapacity bounds the performance-history ring, §3/§4.7.
const PerformanceHistoryCapacity = 8

// SafetyEventSummary is the compact, wire-sized projection of a SafetyEvent.
type SafetyEventSummary struct {
	Kind        SafetyEventKind `json:"kind"`
	Level       SafetyLevel     `json:"level"`
	TimestampMS int64           `json:"timestamp"`
	Resolved    bool            `json:"resolved"`
}

// PowerTelemetry is the compact on-wire power snapshot.
type PowerTelemetry struct {
	BatteryVoltageMV int16 `json:"battery_voltage_mv"`
	BatteryLevelPct  uint8 `json:"battery_level_pct"`
	SolarEnabled     bool  `json:"solar_enabled"`
	PowerSave        bool  `json:"power_save"`
	Charging         bool  `json:"charging"`
	BootVoltageWord  uint32 `json:"boot_voltage_word"` // boot_count<<16 | system_voltage_mv
}

// ThermalTelemetry is the compact on-wire thermal snapshot.
type ThermalTelemetry struct {
	CoreTempC    int16       `json:"core_temp_c_x100"` // degC * 100
	BatteryTempC int16       `json:"battery_temp_c_x100"`
	PanelTempC   int16       `json:"panel_temp_c_x100"`
	HeaterOn     bool        `json:"heater_on"`
	Mode         ThermalMode `json:"mode"`
}

// CommsTelemetry is the compact on-wire comms snapshot.
type CommsTelemetry struct {
	LinkUp         bool   `json:"link_up"`
	SignalTxWord   uint16 `json:"signal_tx_word"` // signal_dbm<<8 | tx_dbm, both signed bytes
	RxPackets      uint32 `json:"rx_packets"`
	TxPackets      uint32 `json:"tx_packets"`
	BitErrorRateX6 uint32 `json:"ber_x1e6"` // BER * 1e6, integer
}

// OrbitalScalars are placeholder environment fields carried for size parity,
// §9 Open Questions: no orbital propagator backs these.
type OrbitalScalars struct {
	AltitudeKM    uint16  `json:"altitude_km"`
	MagneticXNT   int16   `json:"magnetic_x_nt"`
	MagneticYNT   int16   `json:"magnetic_y_nt"`
	MagneticZNT   int16   `json:"magnetic_z_nt"`
}

// TelemetryPacket is the full §3/§4.7 packet, built fresh every tick.
type TelemetryPacket struct {
	TimestampMS    int64                `json:"timestamp"`
	SequenceNumber uint64               `json:"sequence_number"`

	Power   PowerTelemetry   `json:"power"`
	Thermal ThermalTelemetry `json:"thermal"`
	Comms   CommsTelemetry   `json:"comms"`

	HealthScoresWord uint32 `json:"health_scores_word"` // power|thermal|comms|spare, one byte each

	QuaternionX int16 `json:"quaternion_x"` // scaled by 2^15; w recovered client-side
	QuaternionY int16 `json:"quaternion_y"`
	QuaternionZ int16 `json:"quaternion_z"`

	PerformanceHistory [PerformanceHistoryCapacity]PerformanceSnapshot `json:"performance_history"`

	SafetyLevel    SafetyLevel          `json:"safety_level"`
	SafeModeActive bool                 `json:"safe_mode_active"`
	SafetyEvents   []SafetyEventSummary `json:"safety_events"`

	Orbital OrbitalScalars `json:"orbital"`

	Truncated bool   `json:"truncated"`
	Padding   []byte `json:"padding"`
}

// Telemetry sizing contract, §4.7.
const (
	TelemetryMinBytes     = 1800
	TelemetryMaxBytes     = 2200
	TelemetrySoftTarget   = 2048
	TelemetryFieldMargin  = 150
	TelemetryPadMax       = 500
	TelemetryPadByte byte = 0xAA
)
