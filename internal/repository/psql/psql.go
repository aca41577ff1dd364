package psql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

// GormRunRepo is the run ledger.
type GormRunRepo struct {
	DB *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{DB: db}
}

func (r *GormRunRepo) Migrate(ctx context.Context) error {
	if err := r.DB.WithContext(ctx).AutoMigrate(&entity.Run{}); err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	return nil
}

func (r *GormRunRepo) StartRun(ctx context.Context, run *entity.Run) error {
	return r.DB.WithContext(ctx).Create(run).Error
}

func (r *GormRunRepo) FinishRun(ctx context.Context, run *entity.Run) error {
	return r.DB.WithContext(ctx).Model(&entity.Run{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":       run.Status,
			"objects":      run.Objects,
			"skipped":      run.Skipped,
			"published_id": run.PublishedID,
			"error":        run.Error,
		}).Error
}

// ListRuns returns the latest runs for a destination prefix, newest first.
func (r *GormRunRepo) ListRuns(ctx context.Context, path string, limit int) ([]entity.Run, error) {
	var runs []entity.Run
	err := r.DB.WithContext(ctx).
		Where("dest_path = ?", path).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
