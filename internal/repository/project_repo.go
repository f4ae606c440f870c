package repository

import (
	"context"
	"errors"

	"carbonledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, tx *gorm.DB, project *model.Project) error {
	return conn(r.db, tx).WithContext(ctx).Create(project).Error
}

// GetByID loads an active project. Deactivated projects read as missing.
func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *ProjectRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Project, error) {
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *ProjectRepository) first(q *gorm.DB, id uuid.UUID) (*model.Project, error) {
	var project model.Project
	err := q.Where("id = ? AND is_active = ?", id, true).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (r *ProjectRepository) List(ctx context.Context, page, pageSize int) ([]*model.Project, int64, error) {
	var projects []*model.Project
	var total int64

	page, pageSize = normalizePage(page, pageSize)
	query := r.db.WithContext(ctx).Model(&model.Project{}).Where("is_active = ?", true)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&projects).Error

	return projects, total, err
}

// Save writes back the mutable columns: supply and the soft-delete flag.
func (r *ProjectRepository) Save(ctx context.Context, tx *gorm.DB, project *model.Project) error {
	result := conn(r.db, tx).WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ?", project.ID).
		Updates(map[string]interface{}{
			"available_credits": project.AvailableCredits,
			"is_active":         project.IsActive,
			"updated_at":        project.UpdatedAt,
			"updated_by":        project.UpdatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}
