package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/spendworth/sift/internal/common"
)

// Settings is the resolved application configuration. Values come from the
// config file, SIFT_* environment variables, and flag bindings, in viper's
// usual precedence order.
type Settings struct {
	DataDir         string
	DatabasePath    string
	RetrainSchedule string
	LogLevel        string
	LogFormat       string
	MinConfidence   float64
}

// SetDefaults registers default values on the global viper instance.
func SetDefaults() {
	viper.SetDefault("data.dir", "$HOME/.local/share/sift")
	viper.SetDefault("database.path", "")
	viper.SetDefault("retrain.schedule", "")
	viper.SetDefault("training.min_confidence", 0.0)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// Load resolves settings from viper and validates them.
func Load() (*Settings, error) {
	dataDir := ExpandPath(viper.GetString("data.dir"))
	if dataDir == "" {
		return nil, fmt.Errorf("%w: data.dir", common.ErrMissingConfig)
	}

	dbPath := ExpandPath(viper.GetString("database.path"))
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "sift.db")
	}

	minConfidence := viper.GetFloat64("training.min_confidence")
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("%w: training.min_confidence must be in [0,1], got %.2f",
			common.ErrInvalidConfig, minConfidence)
	}

	return &Settings{
		DataDir:         dataDir,
		DatabasePath:    dbPath,
		RetrainSchedule: viper.GetString("retrain.schedule"),
		LogLevel:        viper.GetString("logging.level"),
		LogFormat:       viper.GetString("logging.format"),
		MinConfidence:   minConfidence,
	}, nil
}

// FeedbackDir is where per-user feedback ledgers live.
func (s *Settings) FeedbackDir() string {
	return filepath.Join(s.DataDir, "feedback")
}

// MetricsDir is where per-user outcome logs live.
func (s *Settings) MetricsDir() string {
	return filepath.Join(s.DataDir, "metrics")
}
