package automation

import (
	"context"

	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/repo"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
)

// RunsRepository persists automation run records.
type RunsRepository interface {
	Create(ctx context.Context, run *models.AutomationRun) error
	Update(ctx context.Context, run *models.AutomationRun) error
	ListRecent(ctx context.Context, jobName string, limit int) ([]models.AutomationRun, error)
	// LatestPerJob returns the most recently started run for every job that
	// has run at least once.
	LatestPerJob(ctx context.Context) ([]models.AutomationRun, error)
}

type runsRepository struct {
	repo.Base
}

// NewRunsRepository builds a runs repository on the shared base.
func NewRunsRepository(db *gorm.DB) RunsRepository {
	return &runsRepository{Base: repo.NewBase(db)}
}

func (r *runsRepository) Create(ctx context.Context, run *models.AutomationRun) error {
	return r.DB(ctx).Create(run).Error
}

func (r *runsRepository) Update(ctx context.Context, run *models.AutomationRun) error {
	return r.DB(ctx).Save(run).Error
}

func (r *runsRepository) ListRecent(ctx context.Context, jobName string, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.DB(ctx).Order("started_at DESC").Limit(limit)
	if jobName != "" {
		query = query.Where("job_name = ?", jobName)
	}
	var runs []models.AutomationRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *runsRepository) LatestPerJob(ctx context.Context) ([]models.AutomationRun, error) {
	var runs []models.AutomationRun
	err := r.DB(ctx).
		Where("started_at = (SELECT MAX(ar.started_at) FROM automation_runs AS ar WHERE ar.job_name = automation_runs.job_name)").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
