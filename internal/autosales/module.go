// Package autosales wires lead scoring, matching, strategy and the outreach
// state machine into one bounded context module.
package autosales

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"petshop_backend/internal/autosales/handler"
	"petshop_backend/internal/autosales/matcher"
	"petshop_backend/internal/autosales/reasoning"
	"petshop_backend/internal/autosales/scorer"
	"petshop_backend/internal/autosales/sequence"
	"petshop_backend/internal/events"
	apphttp "petshop_backend/internal/http"
	invrepo "petshop_backend/internal/inventory/repository"
	leadsrepo "petshop_backend/internal/leads/repository"
	"petshop_backend/internal/outreach"
	"petshop_backend/internal/scheduler"
	"petshop_backend/platform/config"
	"petshop_backend/platform/logger"
	"petshop_backend/platform/validator"
)

// Config combines the config interfaces the module needs.
type Config interface {
	config.ReasoningConfig
	config.OutreachConfig
}

// Module is the autosales bounded context module implementing http.Module.
type Module struct {
	handler   *handler.Handler
	sequences *sequence.Service
	profiles  *scorer.Service
	steps     scheduler.StepScheduler
	log       *logger.Logger
}

// NewModule creates and initializes the autosales module with all its
// dependencies. The reasoning client and the SMTP sender are optional:
// without them the module degrades to heuristics and logged-only delivery.
func NewModule(pool *pgxpool.Pool, bus events.Bus, cfg Config, val *validator.Validator, log *logger.Logger) (*Module, error) {
	leadsRepo := leadsrepo.New(pool)
	inventoryRepo := invrepo.New(pool)
	insightRepo := scorer.NewRepository(pool)
	sequenceRepo := sequence.NewRepository(pool)

	var profiles *scorer.Service
	if cfg.IsReasoningEnabled() {
		reasoner := reasoning.New(reasoning.Config{
			BaseURL: cfg.GetReasoningAPIURL(),
			APIKey:  cfg.GetReasoningAPIKey(),
			Model:   cfg.GetReasoningModel(),
			Timeout: cfg.GetReasoningTimeout(),
		}, log)
		profiles = scorer.NewService(reasoner, insightRepo, log)
	} else {
		log.Warn("reasoning service not configured, scoring runs on heuristics only")
		profiles = scorer.NewService(nil, insightRepo, log)
	}

	matches := matcher.NewService(inventoryRepo)

	var sender outreach.Sender
	if cfg.IsOutreachSMTPEnabled() {
		smtpSender, err := outreach.NewSMTPSender(cfg, log)
		if err != nil {
			return nil, err
		}
		sender = smtpSender
	} else {
		log.Warn("outreach SMTP not configured, messages are logged only")
		sender = outreach.NewNoopSender(log)
	}

	sequences := sequence.NewService(
		leadsRepo,
		inventoryRepo,
		profiles,
		matches,
		sequenceRepo,
		sender,
		bus,
		log,
		cfg.GetStoreBaseURL(),
	)

	h := handler.New(sequences, profiles, leadsRepo, val)

	return &Module{
		handler:   h,
		sequences: sequences,
		profiles:  profiles,
		log:       log,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "autosales"
}

// Service returns the sequence service for external use (scheduler workers).
func (m *Module) Service() *sequence.Service {
	return m.sequences
}

// SetStepScheduler attaches the asynq client used to enqueue step tasks at
// their exact due time. Without it, steps run on the dispatcher sweep alone.
func (m *Module) SetStepScheduler(steps scheduler.StepScheduler) {
	m.steps = steps
}

// RegisterRoutes mounts the autosales routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/autosales")
	group.POST("/sequences", m.handler.CreateSequence)
	group.GET("/sequences/:id", m.handler.GetByID)
	group.POST("/sequences/:id/execute", m.handler.ExecuteStep)
	group.POST("/sequences/:id/handoff", m.handler.MarkHuman)
	group.GET("/sequences/:id/logs", m.handler.ListLogs)
	group.POST("/queue/process", m.handler.ProcessQueue)
	group.POST("/conversions", m.handler.RecordConversion)
	group.GET("/leads/:leadId/sequence", m.handler.GetByLead)
	group.GET("/leads/:leadId/profile", m.handler.GetProfile)
	group.POST("/leads/:leadId/reanalyze", m.handler.Reanalyze)
}

// RegisterHandlers subscribes to domain events so new leads enter the funnel
// automatically and scheduled steps get an exactly-timed task.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.SequenceCreated{}.EventName(), m)
	bus.Subscribe(events.SequenceStepExecuted{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		_, _, err := m.sequences.CreateSequence(ctx, e.LeadID, false)
		return err
	case events.SequenceCreated:
		return m.scheduleNextStep(ctx, e.SequenceID)
	case events.SequenceStepExecuted:
		return m.scheduleNextStep(ctx, e.SequenceID)
	default:
		return nil
	}
}

func (m *Module) scheduleNextStep(ctx context.Context, sequenceID uuid.UUID) error {
	if m.steps == nil {
		return nil
	}

	seq, err := m.sequences.GetByID(ctx, sequenceID)
	if err != nil {
		return err
	}
	if seq.Status != sequence.StatusScheduled || seq.NextRunAt == nil || seq.NextStep == nil {
		return nil
	}

	return m.steps.ScheduleSequenceStep(ctx, scheduler.SequenceStepPayload{
		SequenceID: seq.ID.String(),
		LeadID:     seq.LeadID.String(),
		StepType:   *seq.NextStep,
	}, *seq.NextRunAt)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
