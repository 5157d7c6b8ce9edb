// Package recorder is the write-only Postgres flight recorder: every
// terminal TrackedCommand and resolved SafetyEvent gets appended here for
// forensic/ground-analyst use. It is never read back into live core state
// (§1 non-goal: no persistence across restarts applies to the simulation,
// not to this audit trail).
package recorder

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"satbus/internal/config"
	"satbus/internal/core/model"
)

// CommandRecord is the flight-recorder row for one terminal command.
type CommandRecord struct {
	ID            uint   `gorm:"primaryKey"`
	CommandID     uint32 `gorm:"index"`
	Status        string `gorm:"index;size:20"`
	SubmittedAtMS int64
	DeadlineMS    int64
	RecordedAt    time.Time `gorm:"index"`
}

// TableName names the command-lifecycle table.
func (CommandRecord) TableName() string { return "command_history" }

// SafetyEventRecord is the flight-recorder row for one resolved safety event.
type SafetyEventRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Kind        string `gorm:"index;size:40"`
	Level       string `gorm:"index;size:20"`
	TimestampMS int64
	Resolved    bool
	RecordedAt  time.Time `gorm:"index"`
}

// TableName names the safety-event table.
func (SafetyEventRecord) TableName() string { return "safety_event_history" }

// Recorder is the write-only audit sink. A disabled recorder is a valid
// zero-value-backed no-op so the rest of the system never branches on it.
type Recorder struct {
	db  *gorm.DB
	cfg config.RecorderConfig
	log *zap.Logger
}

// New opens (and migrates) the Postgres connection when enabled; when
// disabled it returns a Recorder whose Record* calls are no-ops.
func New(cfg config.RecorderConfig, logger *zap.Logger) (*Recorder, error) {
	log := logger.With(zap.String("component", "recorder"))
	if !cfg.Enabled {
		return &Recorder{cfg: cfg, log: log}, nil
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect recorder postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("recorder sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&CommandRecord{}, &SafetyEventRecord{}); err != nil {
		return nil, fmt.Errorf("recorder migrate: %w", err)
	}

	log.Info("recorder connected", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return &Recorder{db: db, cfg: cfg, log: log}, nil
}

// RecordCommand appends a terminal command's lifecycle record, §4.5.
func (r *Recorder) RecordCommand(tc model.TrackedCommand) {
	if !r.cfg.Enabled {
		return
	}
	row := CommandRecord{
		CommandID:     tc.ID,
		Status:        string(tc.Status),
		SubmittedAtMS: tc.SubmittedAtMS,
		DeadlineMS:    tc.DeadlineMS,
		RecordedAt:    time.Now(),
	}
	if err := r.db.Create(&row).Error; err != nil {
		r.log.Error("failed to record command", zap.Error(err), zap.Uint32("command_id", tc.ID))
	}
}

// RecordSafetyEvent appends a resolved safety event, §4.4.
func (r *Recorder) RecordSafetyEvent(e model.SafetyEvent) {
	if !r.cfg.Enabled {
		return
	}
	row := SafetyEventRecord{
		Kind:        string(e.Kind),
		Level:       string(e.Level),
		TimestampMS: e.TimestampMS,
		Resolved:    e.Resolved,
		RecordedAt:  time.Now(),
	}
	if err := r.db.Create(&row).Error; err != nil {
		r.log.Error("failed to record safety event", zap.Error(err), zap.String("kind", string(e.Kind)))
	}
}

// Close releases the underlying connection pool.
func (r *Recorder) Close() error {
	if !r.cfg.Enabled || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck reports whether the recorder's database connection is alive,
// satisfying the health package's DatabaseChecker interface.
func (r *Recorder) HealthCheck() error {
	if !r.cfg.Enabled {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
