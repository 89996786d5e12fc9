package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/repository"
	"github.com/jmoiron/sqlx"
)

type companyRepository struct {
	db *sqlx.DB
}

// NewCompanyRepository creates a new PostgreSQL company repository
func NewCompanyRepository(db *sqlx.DB) repository.CompanyRepository {
	return &companyRepository{db: db}
}

// Create inserts a company and fills in the generated ID
func (r *companyRepository) Create(ctx context.Context, company *domain.Company) error {
	query := `
		INSERT INTO companies (name, domain, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	if err := r.db.QueryRowxContext(ctx, query, company.Name, company.Domain, company.CreatedAt).Scan(&company.ID); err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}

func (r *companyRepository) GetByID(ctx context.Context, id int64) (*domain.Company, error) {
	var company domain.Company
	if err := r.db.GetContext(ctx, &company, `SELECT id, name, domain, created_at FROM companies WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("company not found: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get company by id: %w", err)
	}

	return &company, nil
}

func (r *companyRepository) GetByDomain(ctx context.Context, emailDomain string) (*domain.Company, error) {
	var company domain.Company
	if err := r.db.GetContext(ctx, &company, `SELECT id, name, domain, created_at FROM companies WHERE lower(domain) = lower($1)`, emailDomain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("company not found: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get company by domain: %w", err)
	}

	return &company, nil
}
