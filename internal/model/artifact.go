package model

import (
	"fmt"
	"time"
)

// Stage identifies where a model version sits in its rollout lifecycle.
type Stage string

const (
	// StageStaging holds candidate models not yet serving traffic.
	StageStaging Stage = "Staging"
	// StageProduction serves inference; at most one per user.
	StageProduction Stage = "Production"
)

// Validate ensures the stage is a known value.
func (s Stage) Validate() error {
	switch s {
	case StageStaging, StageProduction:
		return nil
	default:
		return fmt.Errorf("unknown model stage %q", string(s))
	}
}

// ArtifactID addresses one model artifact in the store.
type ArtifactID struct {
	UserID  string
	Stage   Stage
	Version int // 0 means "resolve by stage"
}

// ModelInfo is registry metadata for one stored artifact version.
type ModelInfo struct {
	CreatedAt       time.Time          `json:"created_at"`
	UserID          string             `json:"user_id"`
	Stage           Stage              `json:"stage"`
	Classes         []string           `json:"classes"`
	FeatureNames    []string           `json:"feature_names"`
	Metrics         map[string]float64 `json:"metrics"`
	Hyperparameters map[string]float64 `json:"hyperparameters"`
	Version         int                `json:"version"`
}
