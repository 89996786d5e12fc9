package repository

import (
	"context"

	"github.com/aisentinel/session-service/internal/domain"
)

type CompanyRepository interface {
	Create(ctx context.Context, company *domain.Company) error
	GetByID(ctx context.Context, id int64) (*domain.Company, error)
	GetByDomain(ctx context.Context, domain string) (*domain.Company, error)
}
