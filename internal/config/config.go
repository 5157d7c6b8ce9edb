package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration: a flat,
// validate-tagged struct loaded once at startup.
type Config struct {
	Simulation     SimulationConfig     `mapstructure:"simulation" validate:"required"`
	Server         ServerConfig         `mapstructure:"server" validate:"required"`
	GroundBridge   GroundBridgeConfig   `mapstructure:"ground_bridge" validate:"required"`
	Recorder       RecorderConfig       `mapstructure:"recorder" validate:"required"`
	TelemetryStore TelemetryStoreConfig `mapstructure:"telemetry_store" validate:"required"`
	API            APIConfig            `mapstructure:"api" validate:"required"`
	Logging        LoggingConfig        `mapstructure:"logger" validate:"required"`
}

// SimulationConfig drives the core agent's tick loop, §2/§5.
type SimulationConfig struct {
	TickIntervalMS int64 `mapstructure:"tick_interval_ms" validate:"required,min=1,max=60000"`
}

// ServerConfig configures the NDJSON-over-TCP command/telemetry stream, §5/§7.
type ServerConfig struct {
	Host          string  `mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port          int     `mapstructure:"port" validate:"required,min=1,max=65535"`
	TelemetryHz   float64 `mapstructure:"telemetry_hz" validate:"required,min=0.01,max=50"`
	MaxClients    int     `mapstructure:"max_clients" validate:"required,min=1,max=256"`
}

// GroundBridgeConfig configures the Modbus TCP slave that mirrors telemetry
// words for ground support equipment.
type GroundBridgeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Host    string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port    int           `mapstructure:"port" validate:"required_if=Enabled true,max=65535"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required_if=Enabled true"`
}

// RecorderConfig configures the write-only Postgres flight-recorder sink.
type RecorderConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true,omitempty,hostname_rfc1123|ip"`
	Port     int    `mapstructure:"port" validate:"required_if=Enabled true"`
	Username string `mapstructure:"username" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password" validate:"required_if=Enabled true"`
	Database string `mapstructure:"database" validate:"required_if=Enabled true"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxIdle  int    `mapstructure:"max_idle_connections" validate:"omitempty,min=1"`
	MaxOpen  int    `mapstructure:"max_open_connections" validate:"omitempty,min=1"`
}

// TelemetryStoreConfig configures the write-only InfluxDB time-series sink.
type TelemetryStoreConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url" validate:"required_if=Enabled true,omitempty,url"`
	Token         string        `mapstructure:"token" validate:"required_if=Enabled true"`
	Organization  string        `mapstructure:"organization" validate:"required_if=Enabled true"`
	Bucket        string        `mapstructure:"bucket" validate:"required_if=Enabled true"`
	BatchSize     uint          `mapstructure:"batch_size" validate:"omitempty,min=1"`
	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"omitempty,aligned_interval"`
}

// APIConfig configures the read-only ops/status HTTP surface, §9.
type APIConfig struct {
	Host string `mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// LoggingConfig contains logger-specific configuration.
type LoggingConfig struct {
	Level            string   `mapstructure:"level" validate:"required,oneof=debug info warn error fatal"`
	Encoding         string   `mapstructure:"encoding" validate:"required,oneof=json console"`
	TimeEncoder      string   `mapstructure:"time_encoder" validate:"required,oneof=iso8601 epoch"`
	OutputPaths      []string `mapstructure:"output_paths" validate:"required,min=1,dive,logpath"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths" validate:"required,min=1,dive,logpath"`
}

// Load loads configuration from the specified file path, §9.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SATBUS")

	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("simulation.tick_interval_ms")

	v.BindEnv("server.host")
	v.BindEnv("server.port")
	v.BindEnv("server.telemetry_hz")
	v.BindEnv("server.max_clients")

	v.BindEnv("ground_bridge.enabled")
	v.BindEnv("ground_bridge.host")
	v.BindEnv("ground_bridge.port")
	v.BindEnv("ground_bridge.timeout")

	v.BindEnv("recorder.enabled")
	v.BindEnv("recorder.host")
	v.BindEnv("recorder.port")
	v.BindEnv("recorder.username")
	v.BindEnv("recorder.password")
	v.BindEnv("recorder.database")
	v.BindEnv("recorder.ssl_mode")
	v.BindEnv("recorder.max_idle_connections")
	v.BindEnv("recorder.max_open_connections")

	v.BindEnv("telemetry_store.enabled")
	v.BindEnv("telemetry_store.url")
	v.BindEnv("telemetry_store.token")
	v.BindEnv("telemetry_store.organization")
	v.BindEnv("telemetry_store.bucket")
	v.BindEnv("telemetry_store.batch_size")
	v.BindEnv("telemetry_store.flush_interval")

	v.BindEnv("api.host")
	v.BindEnv("api.port")

	v.BindEnv("logger.level")
	v.BindEnv("logger.encoding")
	v.BindEnv("logger.time_encoder")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.tick_interval_ms", 1000)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7700)
	v.SetDefault("server.telemetry_hz", 1.0)
	v.SetDefault("server.max_clients", 16)

	v.SetDefault("ground_bridge.enabled", false)
	v.SetDefault("ground_bridge.host", "0.0.0.0")
	v.SetDefault("ground_bridge.port", 1502)
	v.SetDefault("ground_bridge.timeout", 5*time.Second)

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.port", 5432)
	v.SetDefault("recorder.ssl_mode", "disable")
	v.SetDefault("recorder.max_idle_connections", 5)
	v.SetDefault("recorder.max_open_connections", 10)

	v.SetDefault("telemetry_store.enabled", false)
	v.SetDefault("telemetry_store.batch_size", 50)
	v.SetDefault("telemetry_store.flush_interval", 1*time.Second)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.time_encoder", "iso8601")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})
}

// Validate validates the configuration, §9.
func (c *Config) Validate() error {
	return NewValidator().Struct(c)
}
