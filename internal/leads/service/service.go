// Package service implements lead intake on top of the repository: input
// sanitization, phone normalization and the LeadCreated event.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"petshop_backend/internal/events"
	"petshop_backend/internal/leads/repository"
	"petshop_backend/internal/leads/transport"
	"petshop_backend/platform/apperr"
	"petshop_backend/platform/logger"
	"petshop_backend/platform/phone"
	"petshop_backend/platform/sanitize"
)

type leadStore interface {
	Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	List(ctx context.Context, limit int) ([]repository.Lead, error)
}

type Service struct {
	repo leadStore
	bus  events.Bus
	log  *logger.Logger
}

func New(repo leadStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Create stores a new inbound lead and announces it on the event bus. The
// phone number is normalized to E.164; a number that cannot be normalized is
// rejected, since every outreach channel depends on it.
func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest) (repository.Lead, error) {
	normalized := phone.NormalizeE164(req.Phone)
	if !strings.HasPrefix(normalized, "+") {
		return repository.Lead{}, apperr.Validation("invalid phone number")
	}

	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		Name:         sanitize.Text(req.Name),
		Phone:        normalized,
		Email:        sanitize.TextPtr(req.Email),
		Message:      sanitize.Text(req.Message),
		DesiredSex:   req.DesiredSex,
		DesiredColor: sanitize.TextPtr(req.DesiredColor),
		City:         sanitize.TextPtr(req.City),
		Referrer:     sanitize.TextPtr(req.Referrer),
		Source:       sanitize.TextPtr(req.Source),
	})
	if err != nil {
		return repository.Lead{}, apperr.Wrap(apperr.KindInternal, "failed to store lead", err)
	}

	s.log.Info("lead created", "leadId", lead.ID, "source", derefOr(lead.Source, "direct"))

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
	})

	return lead, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Lead{}, apperr.Wrap(apperr.KindNotFound, "lead not found", err)
		}
		return repository.Lead{}, apperr.Wrap(apperr.KindInternal, "failed to load lead", err)
	}
	return lead, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]repository.Lead, error) {
	leads, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list leads", err)
	}
	return leads, nil
}

func derefOr(value *string, fallback string) string {
	if value == nil || *value == "" {
		return fallback
	}
	return *value
}
