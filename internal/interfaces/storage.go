package interfaces

import (
	"context"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// RunStorage persists the history of pipeline runs
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)

	// ListRuns returns the most recent runs first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)

	// ListRunsByStatus returns runs in the given status, most recent first
	ListRunsByStatus(ctx context.Context, status string, limit int) ([]*models.RunRecord, error)

	DeleteRun(ctx context.Context, id string) error
	Close() error
}
