package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/models"
)

type progressFileRepository struct {
	path string
	log  logger.Logger
}

// NewProgressFileRepository stores the progress state as an indented JSON document
// at path. Writes go to a sibling temp file that is renamed over the target, so a
// concurrent reader sees either the previous or the new document.
func NewProgressFileRepository(path string) ProgressRepository {
	return &progressFileRepository{
		path: path,
		log:  logger.New("progressFileRepository"),
	}
}

func (r *progressFileRepository) Location() string {
	return r.path
}

func (r *progressFileRepository) Load(ctx context.Context) (*models.ProgressState, error) {
	log := r.log.Function("Load")

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, log.Err("failed to read progress file", err, "path", r.path)
	}

	var state models.ProgressState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProgressCorrupt, r.path, err)
	}
	if state.SessionID == "" {
		return nil, fmt.Errorf("%w: %s: missing session_id", ErrProgressCorrupt, r.path)
	}

	log.Debug("Loaded progress file", "path", r.path, "files", len(state.Files))
	return &state, nil
}

func (r *progressFileRepository) Save(ctx context.Context, state *models.ProgressState) error {
	log := r.log.Function("Save")

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return log.Err("failed to encode progress state", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return log.Err("failed to create progress directory", err, "directory", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return log.Err("failed to create temp progress file", err, "directory", dir)
	}
	tmpPath := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpPath); statErr == nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return log.Err("failed to write temp progress file", err, "path", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return log.Err("failed to sync temp progress file", err, "path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return log.Err("failed to close temp progress file", err, "path", tmpPath)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		return log.Err("failed to replace progress file", err, "path", r.path)
	}

	return nil
}

func (r *progressFileRepository) Reset(ctx context.Context) error {
	log := r.log.Function("Reset")

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return log.Err("failed to remove progress file", err, "path", r.path)
	}

	log.Info("Removed progress file", "path", r.path)
	return nil
}
