package transport

import (
	"time"

	"github.com/google/uuid"

	"petshop_backend/internal/leads/repository"
)

// CreateLeadRequest is the public intake payload. Everything beyond name,
// phone and message is optional context used by scoring and matching.
type CreateLeadRequest struct {
	Name         string  `json:"name" validate:"required,min=2,max=120"`
	Phone        string  `json:"phone" validate:"required,min=8,max=20"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Message      string  `json:"message" validate:"required,min=1,max=4000"`
	DesiredSex   *string `json:"desiredSex,omitempty" validate:"omitempty,oneof=macho femea"`
	DesiredColor *string `json:"desiredColor,omitempty" validate:"omitempty,max=40"`
	City         *string `json:"city,omitempty" validate:"omitempty,max=80"`
	Referrer     *string `json:"referrer,omitempty" validate:"omitempty,max=120"`
	Source       *string `json:"source,omitempty" validate:"omitempty,max=40"`
}

// LeadResponse represents a lead in API responses.
type LeadResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        *string   `json:"email,omitempty"`
	Message      string    `json:"message"`
	DesiredSex   *string   `json:"desiredSex,omitempty"`
	DesiredColor *string   `json:"desiredColor,omitempty"`
	City         *string   `json:"city,omitempty"`
	Referrer     *string   `json:"referrer,omitempty"`
	Source       *string   `json:"source,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FromLead maps the domain lead onto its response shape.
func FromLead(lead repository.Lead) LeadResponse {
	return LeadResponse{
		ID:           lead.ID,
		Name:         lead.Name,
		Phone:        lead.Phone,
		Email:        lead.Email,
		Message:      lead.Message,
		DesiredSex:   lead.DesiredSex,
		DesiredColor: lead.DesiredColor,
		City:         lead.City,
		Referrer:     lead.Referrer,
		Source:       lead.Source,
		CreatedAt:    lead.CreatedAt,
		UpdatedAt:    lead.UpdatedAt,
	}
}
