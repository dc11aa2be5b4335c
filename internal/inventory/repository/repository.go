// Package repository provides read access to the puppy inventory.
// Inventory is owned by the store-management collaborator; the autosales
// core only reads available animals.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("puppy not found")

// StatusAvailable marks a puppy that can still be offered to leads.
const StatusAvailable = "available"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Puppy is one sellable unit. Price is stored in centavos.
type Puppy struct {
	ID         uuid.UUID
	Name       string
	Breed      string
	Color      string
	Sex        string
	PriceCents int64
	Status     string
	City       *string
	PhotoURL   *string
	CreatedAt  time.Time
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Puppy, error) {
	var p Puppy
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, breed, color, sex, price_cents, status, city, photo_url, created_at
		FROM puppies WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Name, &p.Breed, &p.Color, &p.Sex, &p.PriceCents,
		&p.Status, &p.City, &p.PhotoURL, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Puppy{}, ErrNotFound
	}
	if err != nil {
		return Puppy{}, err
	}

	return p, nil
}

// ListAvailable returns available puppies, newest first.
func (r *Repository) ListAvailable(ctx context.Context, limit int) ([]Puppy, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, breed, color, sex, price_cents, status, city, photo_url, created_at
		FROM puppies
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, StatusAvailable, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	puppies := make([]Puppy, 0)
	for rows.Next() {
		var p Puppy
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Breed, &p.Color, &p.Sex, &p.PriceCents,
			&p.Status, &p.City, &p.PhotoURL, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		puppies = append(puppies, p)
	}

	return puppies, rows.Err()
}
