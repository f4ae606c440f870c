package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Project offers a finite supply of credits at a fixed price.
// AvailableCredits only decreases, through Reserve.
type Project struct {
	Base
	Name             string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description      string          `gorm:"type:varchar(500);not null" json:"description"`
	TotalCredits     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_credits"`
	AvailableCredits decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"available_credits"`
	PricePerCredit   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_per_credit"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) HasSufficientCredits(amount decimal.Decimal) bool {
	return p.AvailableCredits.GreaterThanOrEqual(amount)
}

func (p *Project) Reserve(amount decimal.Decimal, actor uuid.UUID) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !p.HasSufficientCredits(amount) {
		return ErrInsufficientCredits
	}
	p.AvailableCredits = p.AvailableCredits.Sub(amount)
	p.Touch(actor)
	return nil
}

// OwnedBy reports whether userID created the project.
func (p *Project) OwnedBy(userID uuid.UUID) bool {
	return p.CreatedBy != nil && *p.CreatedBy == userID
}
