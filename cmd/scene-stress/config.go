package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Scene   SceneConfig   `toml:"scene"`
	Run     RunConfig     `toml:"run"`
	Logging LoggingConfig `toml:"logging"`
	Profile ProfileConfig `toml:"profile"`
}

type SceneConfig struct {
	// Roots is the number of independent trees.
	Roots int `toml:"roots"`
	// Levels is the depth of each tree below its root.
	Levels int `toml:"levels"`
	// Fanout is the number of children per inner node.
	Fanout int `toml:"fanout"`
	// StaticFraction of leaves is spawned with the Static hint and freezes
	// after the first updates.
	StaticFraction float64 `toml:"static_fraction"`
	// ReparentsPerFrame is the number of random attach requests the churn
	// system queues every frame.
	ReparentsPerFrame int `toml:"reparents_per_frame"`
}

type RunConfig struct {
	Duration time.Duration `toml:"duration"`
	Tick     time.Duration `toml:"tick"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ProfileConfig struct {
	Mode string `toml:"mode"` // "cpu", "mem" or empty
	Dir  string `toml:"dir"`
}

// LoadConfig reads a TOML config over the defaults. An empty path keeps the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Scene: SceneConfig{
			Roots:             100,
			Levels:            3,
			Fanout:            4,
			StaticFraction:    0.25,
			ReparentsPerFrame: 10,
		},
		Run: RunConfig{
			Duration: 10 * time.Second,
			Tick:     0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Profile: ProfileConfig{
			Dir: ".",
		},
	}
}

func newLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
