package repository

import (
	"context"

	"scansync/internal/model"

	"gorm.io/gorm"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	Update(ctx context.Context, run *model.SyncRun) error
	GetByRunID(ctx context.Context, runId string) (*model.SyncRun, error)
	ListRecent(ctx context.Context, limit int) ([]*model.SyncRun, error)
}

func NewSyncRunRepository(
	repository *Repository,
) SyncRunRepository {
	return &syncRunRepository{
		Repository: repository,
	}
}

type syncRunRepository struct {
	*Repository
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	return r.DB(ctx).Create(run).Error
}

func (r *syncRunRepository) Update(ctx context.Context, run *model.SyncRun) error {
	return r.DB(ctx).Save(run).Error
}

func (r *syncRunRepository) GetByRunID(ctx context.Context, runId string) (*model.SyncRun, error) {
	var run model.SyncRun
	err := r.DB(ctx).Where("run_id = ?", runId).First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *syncRunRepository) ListRecent(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []*model.SyncRun
	err := r.DB(ctx).Order("gmt_create DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
