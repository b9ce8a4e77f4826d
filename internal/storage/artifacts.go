package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

var _ service.ModelStore = (*SQLiteStore)(nil)

// SaveArtifact stores a trained model together with its fitted feature state
// and returns the assigned version. Versions are monotonically increasing per
// user. Saving into Production demotes any previous Production version to
// Staging so that at most one version serves traffic.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, info model.ModelInfo, artifact []byte, featureState []byte) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(info.UserID, "info.UserID"); err != nil {
		return 0, err
	}
	if err := info.Stage.Validate(); err != nil {
		return 0, err
	}
	if len(artifact) == 0 {
		return 0, fmt.Errorf("%w: artifact", ErrEmptySlice)
	}
	if len(featureState) == 0 {
		return 0, fmt.Errorf("%w: featureState", ErrEmptySlice)
	}

	classes, err := json.Marshal(info.Classes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal classes: %w", err)
	}
	featureNames, err := json.Marshal(info.FeatureNames)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feature names: %w", err)
	}
	metrics, err := json.Marshal(info.Metrics)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	hyperparameters, err := json.Marshal(info.Hyperparameters)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal hyperparameters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_artifacts WHERE user_id = ?`,
		info.UserID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate version: %w", err)
	}

	if info.Stage == model.StageProduction {
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_artifacts SET stage = ? WHERE user_id = ? AND stage = ?`,
			model.StageStaging, info.UserID, model.StageProduction); err != nil {
			return 0, fmt.Errorf("failed to demote previous production model: %w", err)
		}
	}

	createdAt := info.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO model_artifacts (user_id, version, stage, classes, feature_names, metrics, hyperparameters, artifact, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.UserID, version, info.Stage, classes, featureNames, metrics, hyperparameters, artifact, createdAt); err != nil {
		return 0, fmt.Errorf("failed to insert model artifact: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feature_states (user_id, version, state) VALUES (?, ?, ?)`,
		info.UserID, version, featureState); err != nil {
		return 0, fmt.Errorf("failed to insert feature state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit artifact: %w", err)
	}

	slog.Info("Saved model artifact",
		"user_id", info.UserID,
		"version", version,
		"stage", info.Stage)
	return version, nil
}

// LoadArtifact retrieves one model with its feature state. A Version of 0
// resolves to the newest version at the requested stage. A missing model
// returns an error wrapping common.ErrNotFound.
func (s *SQLiteStore) LoadArtifact(ctx context.Context, id model.ArtifactID) (*model.ModelInfo, []byte, []byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, nil, nil, err
	}
	if err := validateString(id.UserID, "id.UserID"); err != nil {
		return nil, nil, nil, err
	}

	var row *sql.Row
	if id.Version > 0 {
		row = s.db.QueryRowContext(ctx,
			`SELECT a.version, a.stage, a.classes, a.feature_names, a.metrics, a.hyperparameters, a.artifact, a.created_at, f.state
			 FROM model_artifacts a
			 JOIN feature_states f ON f.user_id = a.user_id AND f.version = a.version
			 WHERE a.user_id = ? AND a.version = ?`,
			id.UserID, id.Version)
	} else {
		if err := id.Stage.Validate(); err != nil {
			return nil, nil, nil, err
		}
		row = s.db.QueryRowContext(ctx,
			`SELECT a.version, a.stage, a.classes, a.feature_names, a.metrics, a.hyperparameters, a.artifact, a.created_at, f.state
			 FROM model_artifacts a
			 JOIN feature_states f ON f.user_id = a.user_id AND f.version = a.version
			 WHERE a.user_id = ? AND a.stage = ?
			 ORDER BY a.version DESC LIMIT 1`,
			id.UserID, id.Stage)
	}

	info, artifact, state, err := scanArtifact(row, id.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, fmt.Errorf("model for user %q: %w", id.UserID, common.ErrNotFound)
		}
		return nil, nil, nil, err
	}
	return info, artifact, state, nil
}

func scanArtifact(row *sql.Row, userID string) (*model.ModelInfo, []byte, []byte, error) {
	var (
		info            model.ModelInfo
		classes         []byte
		featureNames    []byte
		metrics         []byte
		hyperparameters []byte
		artifact        []byte
		state           []byte
	)
	err := row.Scan(&info.Version, &info.Stage, &classes, &featureNames,
		&metrics, &hyperparameters, &artifact, &info.CreatedAt, &state)
	if err != nil {
		return nil, nil, nil, err
	}
	info.UserID = userID

	if err := json.Unmarshal(classes, &info.Classes); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to unmarshal classes: %w", err)
	}
	if err := json.Unmarshal(featureNames, &info.FeatureNames); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to unmarshal feature names: %w", err)
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &info.Metrics); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}
	if len(hyperparameters) > 0 {
		if err := json.Unmarshal(hyperparameters, &info.Hyperparameters); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to unmarshal hyperparameters: %w", err)
		}
	}
	return &info, artifact, state, nil
}

// ListVersions returns all stored versions for a user, newest first.
func (s *SQLiteStore) ListVersions(ctx context.Context, userID string) ([]model.ModelInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version, stage, classes, feature_names, metrics, hyperparameters, created_at
		 FROM model_artifacts WHERE user_id = ? ORDER BY version DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []model.ModelInfo
	for rows.Next() {
		var (
			info            model.ModelInfo
			classes         []byte
			featureNames    []byte
			metrics         []byte
			hyperparameters []byte
		)
		if err := rows.Scan(&info.Version, &info.Stage, &classes, &featureNames,
			&metrics, &hyperparameters, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		info.UserID = userID
		if err := json.Unmarshal(classes, &info.Classes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal classes: %w", err)
		}
		if err := json.Unmarshal(featureNames, &info.FeatureNames); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feature names: %w", err)
		}
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &info.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
		}
		if len(hyperparameters) > 0 {
			if err := json.Unmarshal(hyperparameters, &info.Hyperparameters); err != nil {
				return nil, fmt.Errorf("failed to unmarshal hyperparameters: %w", err)
			}
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}
	return infos, nil
}

// Promote moves the given version to Production, demoting any version
// currently serving.
func (s *SQLiteStore) Promote(ctx context.Context, userID string, version int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if version <= 0 {
		return fmt.Errorf("version must be positive, got %d", version)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM model_artifacts WHERE user_id = ? AND version = ?`,
		userID, version).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("model version %d for user %q: %w", version, userID, common.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE model_artifacts SET stage = ? WHERE user_id = ? AND stage = ?`,
		model.StageStaging, userID, model.StageProduction); err != nil {
		return fmt.Errorf("failed to demote production model: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE model_artifacts SET stage = ? WHERE user_id = ? AND version = ?`,
		model.StageProduction, userID, version); err != nil {
		return fmt.Errorf("failed to promote model: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}

	slog.Info("Promoted model version",
		"user_id", userID,
		"version", version)
	return nil
}
