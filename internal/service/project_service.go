package service

import (
	"context"
	"strings"

	"carbonledger/internal/model"
	"carbonledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProjectService struct {
	db          *gorm.DB
	projectRepo *repository.ProjectRepository
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{
		db:          db,
		projectRepo: repository.NewProjectRepository(db),
	}
}

type CreateProjectInput struct {
	Name             string
	Description      string
	TotalCredits     decimal.Decimal
	AvailableCredits decimal.Decimal
	PricePerCredit   decimal.Decimal
}

func (in *CreateProjectInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if n := len(in.Name); n < 3 || n > 50 {
		return &ValidationError{Field: "name", Message: "must be between 3 and 50 characters"}
	}
	if n := len(in.Description); n < 3 || n > 500 {
		return &ValidationError{Field: "description", Message: "must be between 3 and 500 characters"}
	}
	if !model.ValidInput(in.TotalCredits) {
		return &ValidationError{Field: "total_credits", Message: "must be positive with at most two decimal places"}
	}
	if in.AvailableCredits.IsNegative() || !in.AvailableCredits.Equal(in.AvailableCredits.Truncate(2)) {
		return &ValidationError{Field: "available_credits", Message: "must be non-negative with at most two decimal places"}
	}
	if in.AvailableCredits.GreaterThan(in.TotalCredits) {
		return &ValidationError{Field: "available_credits", Message: "cannot exceed total_credits"}
	}
	if !model.ValidInput(in.PricePerCredit) {
		return &ValidationError{Field: "price_per_credit", Message: "must be positive with at most two decimal places"}
	}
	return nil
}

func (s *ProjectService) Create(ctx context.Context, ownerID uuid.UUID, in CreateProjectInput) (*model.Project, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	project := &model.Project{
		Name:             in.Name,
		Description:      in.Description,
		TotalCredits:     in.TotalCredits,
		AvailableCredits: in.AvailableCredits,
		PricePerCredit:   in.PricePerCredit,
	}
	project.Stamp(ownerID)

	if err := s.projectRepo.Create(ctx, nil, project); err != nil {
		return nil, translateIntegrityError(err)
	}
	return project, nil
}

func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	return s.projectRepo.GetByID(ctx, id)
}

func (s *ProjectService) List(ctx context.Context, page, pageSize int) ([]*model.Project, int64, error) {
	return s.projectRepo.List(ctx, page, pageSize)
}

// Deactivate withdraws a project from sale. Only its creator may do so.
func (s *ProjectService) Deactivate(ctx context.Context, actorID, projectID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.projectRepo.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !project.OwnedBy(actorID) {
			return ErrForbidden
		}
		project.Deactivate(actorID)
		return s.projectRepo.Save(ctx, tx, project)
	})
}
