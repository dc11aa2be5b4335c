package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lead is an inbound sales inquiry. It is created by the intake flow and
// read-only to the autosales core.
type Lead struct {
	ID           uuid.UUID
	Name         string
	Phone        string
	Email        *string
	Message      string
	DesiredSex   *string
	DesiredColor *string
	City         *string
	Referrer     *string
	Source       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateLeadParams struct {
	Name         string
	Phone        string
	Email        *string
	Message      string
	DesiredSex   *string
	DesiredColor *string
	City         *string
	Referrer     *string
	Source       *string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (name, phone, email, message, desired_sex, desired_color, city, referrer, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, name, phone, email, message, desired_sex, desired_color, city, referrer, source, created_at, updated_at
	`,
		params.Name, params.Phone, params.Email, params.Message,
		params.DesiredSex, params.DesiredColor, params.City, params.Referrer, params.Source,
	).Scan(
		&lead.ID, &lead.Name, &lead.Phone, &lead.Email, &lead.Message,
		&lead.DesiredSex, &lead.DesiredColor, &lead.City, &lead.Referrer, &lead.Source,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}

	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, message, desired_sex, desired_color, city, referrer, source, created_at, updated_at
		FROM leads WHERE id = $1
	`, id).Scan(
		&lead.ID, &lead.Name, &lead.Phone, &lead.Email, &lead.Message,
		&lead.DesiredSex, &lead.DesiredColor, &lead.City, &lead.Referrer, &lead.Source,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}

	return lead, nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, phone, email, message, desired_sex, desired_color, city, referrer, source, created_at, updated_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID, &lead.Name, &lead.Phone, &lead.Email, &lead.Message,
			&lead.DesiredSex, &lead.DesiredColor, &lead.City, &lead.Referrer, &lead.Source,
			&lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}
