package repositories

import (
	"context"
	"errors"

	"raisloader/internal/models"
)

// ErrProgressNotFound is returned by Load when no state has been persisted yet.
var ErrProgressNotFound = errors.New("progress state not found")

// ErrProgressCorrupt is returned by Load when the persisted state cannot be decoded.
var ErrProgressCorrupt = errors.New("progress state corrupt")

// ProgressRepository persists the whole progress state. Save replaces the stored
// state wholesale.
type ProgressRepository interface {
	Load(ctx context.Context) (*models.ProgressState, error)
	Save(ctx context.Context, state *models.ProgressState) error
	Reset(ctx context.Context) error
	Location() string
}
