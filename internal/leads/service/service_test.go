package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"petshop_backend/internal/events"
	"petshop_backend/internal/leads/repository"
	"petshop_backend/internal/leads/transport"
	"petshop_backend/platform/apperr"
	"petshop_backend/platform/logger"
)

type fakeRepo struct {
	created []repository.CreateLeadParams
	byID    map[uuid.UUID]repository.Lead
	err     error
}

func (f *fakeRepo) Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error) {
	if f.err != nil {
		return repository.Lead{}, f.err
	}
	f.created = append(f.created, params)
	lead := repository.Lead{
		ID:      uuid.New(),
		Name:    params.Name,
		Phone:   params.Phone,
		Email:   params.Email,
		Message: params.Message,
		Source:  params.Source,
	}
	return lead, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, ok := f.byID[id]
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (f *fakeRepo) List(ctx context.Context, limit int) ([]repository.Lead, error) {
	return nil, nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *captureBus) Subscribe(eventName string, handler events.Handler) {}

func TestCreateNormalizesAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	bus := &captureBus{}
	svc := New(repo, bus, logger.New("test"))

	lead, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		Name:    "Maria <b>Souza</b>",
		Phone:   "(11) 99999-0000",
		Message: "quero comprar hoje <script>x</script>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.Phone != "+5511999990000" {
		t.Errorf("expected E.164 phone, got %q", lead.Phone)
	}
	if repo.created[0].Name != "Maria Souza" {
		t.Errorf("expected HTML stripped from name, got %q", repo.created[0].Name)
	}
	if repo.created[0].Message != "quero comprar hoje x" {
		t.Errorf("expected HTML stripped from message, got %q", repo.created[0].Message)
	}

	if len(bus.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.events))
	}
	created, ok := bus.events[0].(events.LeadCreated)
	if !ok {
		t.Fatalf("expected LeadCreated, got %T", bus.events[0])
	}
	if created.LeadID != lead.ID {
		t.Error("event lead id mismatch")
	}
}

func TestCreateRejectsInvalidPhone(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, &captureBus{}, logger.New("test"))

	_, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		Name:    "Maria",
		Phone:   "12345",
		Message: "oi",
	})
	if err == nil {
		t.Fatal("expected an error for an invalid phone number")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("expected validation kind, got %v", apperr.GetKind(err))
	}
	if len(repo.created) != 0 {
		t.Error("invalid lead must not be stored")
	}
}

func TestCreateRepositoryFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	bus := &captureBus{}
	svc := New(repo, bus, logger.New("test"))

	_, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		Name:    "Maria",
		Phone:   "+5511999990000",
		Message: "oi",
	})
	if apperr.GetKind(err) != apperr.KindInternal {
		t.Errorf("expected internal kind, got %v", apperr.GetKind(err))
	}
	if len(bus.events) != 0 {
		t.Error("no event must be published when the lead is not stored")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	svc := New(&fakeRepo{byID: map[uuid.UUID]repository.Lead{}}, &captureBus{}, logger.New("test"))

	_, err := svc.GetByID(context.Background(), uuid.New())
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("expected not-found kind, got %v", apperr.GetKind(err))
	}
}
