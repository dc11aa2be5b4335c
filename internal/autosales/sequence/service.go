// Package sequence owns the persisted outreach state machine: one sequence
// per lead, advanced step by step until it completes or a human takes over.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"petshop_backend/internal/autosales/matcher"
	"petshop_backend/internal/autosales/scorer"
	"petshop_backend/internal/autosales/strategy"
	"petshop_backend/internal/autosales/templates"
	"petshop_backend/internal/events"
	invrepo "petshop_backend/internal/inventory/repository"
	leadsrepo "petshop_backend/internal/leads/repository"
	"petshop_backend/internal/outreach"
	"petshop_backend/platform/apperr"
	"petshop_backend/platform/logger"
	"petshop_backend/platform/phone"
)

const (
	// claimTTL bounds how long a claimed row stays invisible to other
	// pollers. A worker that dies mid-step loses its claim after this.
	claimTTL = 2 * time.Minute

	// executeConcurrency caps parallel step executions per poll batch.
	// Different sequences only; the claim keeps the same id exclusive.
	executeConcurrency = 4
)

type leadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error)
}

type puppyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (invrepo.Puppy, error)
}

type profiler interface {
	ProfileFor(ctx context.Context, lead leadsrepo.Lead) (scorer.Profile, error)
	Reanalyze(ctx context.Context, lead leadsrepo.Lead) (scorer.Profile, error)
}

type itemMatcher interface {
	MatchFor(ctx context.Context, profile scorer.Profile) (matcher.Result, error)
}

type store interface {
	UpsertByLeadID(ctx context.Context, params UpsertParams) (Sequence, error)
	GetByID(ctx context.Context, id uuid.UUID) (Sequence, error)
	GetByLeadID(ctx context.Context, leadID uuid.UUID) (Sequence, error)
	ClaimDue(ctx context.Context, limit int, claimTTL time.Duration) ([]Sequence, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	AppendLogAndAdvance(ctx context.Context, log Log, advance AdvanceParams) (uuid.UUID, error)
	UpdateLogDelivery(ctx context.Context, logID uuid.UUID, status string) error
	MarkManual(ctx context.Context, id uuid.UUID) error
	MarkNeedsHuman(ctx context.Context, id uuid.UUID, reason string) error
	RecordConversion(ctx context.Context, leadID uuid.UUID, stepType string) (Sequence, error)
	ListLogs(ctx context.Context, sequenceID uuid.UUID) ([]Log, error)
}

// Service drives the sequence lifecycle.
type Service struct {
	leads        leadStore
	puppies      puppyStore
	profiles     profiler
	matches      itemMatcher
	store        store
	sender       outreach.Sender
	bus          events.Bus
	log          *logger.Logger
	storeBaseURL string
	now          func() time.Time
}

func NewService(
	leads leadStore,
	puppies puppyStore,
	profiles profiler,
	matches itemMatcher,
	st store,
	sender outreach.Sender,
	bus events.Bus,
	log *logger.Logger,
	storeBaseURL string,
) *Service {
	return &Service{
		leads:        leads,
		puppies:      puppies,
		profiles:     profiles,
		matches:      matches,
		store:        st,
		sender:       sender,
		bus:          bus,
		log:          log,
		storeBaseURL: storeBaseURL,
		now:          time.Now,
	}
}

// CreateSequence analyzes the lead, builds its strategy and upserts the
// sequence keyed by lead id. Re-running for the same lead replaces the
// previous sequence.
func (s *Service) CreateSequence(ctx context.Context, leadID uuid.UUID, bypassHuman bool) (Sequence, strategy.Strategy, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			return Sequence{}, strategy.Strategy{}, apperr.Wrap(apperr.KindNotFound, "lead not found", err)
		}
		return Sequence{}, strategy.Strategy{}, apperr.Wrap(apperr.KindInternal, "load lead", err)
	}

	profile, err := s.profiles.ProfileFor(ctx, lead)
	if err != nil {
		return Sequence{}, strategy.Strategy{}, apperr.Wrap(apperr.KindInternal, "analyze lead", err)
	}

	match, err := s.matches.MatchFor(ctx, profile)
	if err != nil {
		return Sequence{}, strategy.Strategy{}, apperr.Wrap(apperr.KindInternal, "match inventory", err)
	}

	now := s.now()
	plan := strategy.BuildFor(profile, match.BestID(), lead.Message, now)

	// A human follow-up window is kept open for leads automation is
	// unlikely to close alone.
	fallbackRequired := profile.Risk != scorer.RiskLow || len(plan.Objections) > 0

	params := UpsertParams{
		LeadID:           leadID,
		PuppyID:          match.BestID(),
		Tone:             plan.Tone,
		Urgency:          plan.Urgency,
		TotalSteps:       plan.TotalSteps(),
		FallbackRequired: fallbackRequired,
		BypassHuman:      bypassHuman,
		Strategy:         plan,
	}
	if fallbackRequired {
		reason := plan.FallbackReason
		params.FallbackReason = &reason
	}

	switch {
	case bypassHuman:
		params.Status = StatusManual
	case plan.TotalSteps() > 0:
		params.Status = StatusScheduled
		firstStep := plan.Steps[0].Type
		firstRun := now.Add(time.Duration(plan.Steps[0].DelayMinutes) * time.Minute)
		params.NextStep = &firstStep
		params.NextRunAt = &firstRun
	default:
		params.Status = StatusCompleted
	}

	seq, err := s.store.UpsertByLeadID(ctx, params)
	if err != nil {
		return Sequence{}, strategy.Strategy{}, apperr.Wrap(apperr.KindInternal, "persist sequence", err)
	}

	s.bus.Publish(ctx, events.SequenceCreated{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: seq.ID,
		LeadID:     leadID,
		Status:     seq.Status,
	})

	return seq, plan, nil
}

// StepResult reports what ExecuteStep did.
type StepResult struct {
	SequenceID uuid.UUID
	StepType   string
	StepIndex  int
	Status     string
	Skipped    bool
}

// ExecuteStep runs the current step of a sequence: it advances the state
// machine with a guarded update, dispatches the rendered message, then
// records the delivery outcome on the log row. The guarded advance decides
// a single winner when the poller sweep and the timed worker race on the
// same row, so the step is sent at most once. Calling it on a
// non-scheduled sequence is a no-op.
func (s *Service) ExecuteStep(ctx context.Context, sequenceID uuid.UUID) (StepResult, error) {
	seq, err := s.store.GetByID(ctx, sequenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StepResult{}, apperr.Wrap(apperr.KindNotFound, "sequence not found", err)
		}
		return StepResult{}, apperr.Wrap(apperr.KindInternal, "load sequence", err)
	}

	if seq.Status != StatusScheduled {
		return StepResult{SequenceID: seq.ID, Status: seq.Status, Skipped: true}, nil
	}

	if len(seq.Strategy.Steps) == 0 || seq.StepIndex >= len(seq.Strategy.Steps) {
		// Left untouched for manual inspection rather than silently advanced.
		return StepResult{}, apperr.Wrap(apperr.KindInternal, "malformed strategy",
			fmt.Errorf("sequence %s has step_index %d with %d strategy steps", seq.ID, seq.StepIndex, len(seq.Strategy.Steps)))
	}

	now := s.now()
	if seq.FallbackRequired && seq.Strategy.FallbackMinutes > 0 {
		deadline := seq.CreatedAt.Add(time.Duration(seq.Strategy.FallbackMinutes) * time.Minute)
		if now.After(deadline) {
			return s.handOff(ctx, seq, seq.Strategy.FallbackReason)
		}
	}

	lead, err := s.leads.GetByID(ctx, seq.LeadID)
	if err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			return StepResult{}, apperr.Wrap(apperr.KindNotFound, "lead not found", err)
		}
		return StepResult{}, apperr.Wrap(apperr.KindInternal, "load lead", err)
	}

	puppy := s.loadPuppy(ctx, seq.PuppyID)
	step := seq.Strategy.Steps[seq.StepIndex]

	rendered := templates.Render(lead, puppy, step.Tone, s.storeBaseURL)
	content := templates.MessageForStep(rendered, step.Type, seq.Strategy.Objections)

	metadata := LogMetadata{
		StrategyName: rendered.StrategyName,
		Tone:         step.Tone,
		StepIndex:    seq.StepIndex,
		TriggerTags:  seq.Strategy.TriggerTags,
	}
	if len(seq.Strategy.Objections) > 0 {
		metadata.ObjectionRebuted = seq.Strategy.Objections[0]
	}
	if digits := phone.WhatsAppDigits(lead.Phone); digits != "" {
		metadata.WhatsAppLink = "https://wa.me/" + digits
	}

	metrics := seq.Metrics
	metrics.recordSent(step.Type)

	advance := s.nextState(seq, now)
	advance.Metrics = metrics
	advance.FromStepIndex = seq.StepIndex

	logRow := Log{
		SequenceID:     seq.ID,
		LeadID:         seq.LeadID,
		PuppyID:        seq.PuppyID,
		MessageType:    step.Type,
		Content:        content,
		CTALink:        rendered.CTALink,
		Metadata:       metadata,
		Objections:     seq.Strategy.Objections,
		SentAt:         now,
		DeliveryStatus: DeliveryQueued,
	}

	// Advance before sending: losing the compare-and-swap means another
	// execution owns this step and nothing must leave.
	logID, err := s.store.AppendLogAndAdvance(ctx, logRow, advance)
	if err != nil {
		if errors.Is(err, ErrStaleStep) {
			s.log.WithContext(ctx).Debug("step taken by a concurrent execution",
				"sequence_id", seq.ID.String(),
				"step_type", step.Type,
			)
			return StepResult{SequenceID: seq.ID, Status: seq.Status, Skipped: true}, nil
		}
		return StepResult{}, apperr.Wrap(apperr.KindInternal, "advance sequence", err)
	}

	deliveryStatus, sendErr := s.sender.Send(ctx, outreach.Message{
		LeadName: lead.Name,
		Phone:    lead.Phone,
		Email:    lead.Email,
		Subject:  step.Label,
		Body:     content,
		CTALink:  rendered.CTALink,
		StepType: step.Type,
	})
	if sendErr != nil {
		s.log.WithContext(ctx).Warn("outreach delivery failed, step already advanced",
			"sequence_id", seq.ID.String(),
			"step_type", step.Type,
			"error", sendErr,
		)
		deliveryStatus = DeliveryFailed
	}
	if deliveryStatus != DeliveryQueued {
		if err := s.store.UpdateLogDelivery(ctx, logID, deliveryStatus); err != nil {
			s.log.DatabaseError("update log delivery", err)
		}
	}

	s.log.StepExecuted(seq.ID.String(), step.Type, seq.StepIndex, advance.Status)
	s.bus.Publish(ctx, events.SequenceStepExecuted{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: seq.ID,
		LeadID:     seq.LeadID,
		StepType:   step.Type,
		StepIndex:  seq.StepIndex,
		Status:     advance.Status,
	})
	if advance.Status == StatusNeedsHuman {
		reason := ""
		if seq.FallbackReason != nil {
			reason = *seq.FallbackReason
		}
		s.bus.Publish(ctx, events.SequenceNeedsHuman{
			BaseEvent:  events.NewBaseEvent(),
			SequenceID: seq.ID,
			LeadID:     seq.LeadID,
			Reason:     reason,
		})
	}

	return StepResult{
		SequenceID: seq.ID,
		StepType:   step.Type,
		StepIndex:  seq.StepIndex,
		Status:     advance.Status,
	}, nil
}

// nextState computes the transition after executing the current step.
func (s *Service) nextState(seq Sequence, now time.Time) AdvanceParams {
	newIndex := seq.StepIndex + 1

	if newIndex < seq.TotalSteps && newIndex < len(seq.Strategy.Steps) {
		nextStep := seq.Strategy.Steps[newIndex].Type
		nextRun := now.Add(time.Duration(seq.Strategy.Steps[newIndex].DelayMinutes) * time.Minute)
		return AdvanceParams{
			SequenceID: seq.ID,
			Status:     StatusScheduled,
			NextStep:   &nextStep,
			NextRunAt:  &nextRun,
			StepIndex:  newIndex,
		}
	}

	status := StatusCompleted
	if seq.FallbackRequired {
		status = StatusNeedsHuman
	}
	return AdvanceParams{
		SequenceID: seq.ID,
		Status:     status,
		StepIndex:  newIndex,
	}
}

func (s *Service) handOff(ctx context.Context, seq Sequence, reason string) (StepResult, error) {
	if err := s.store.MarkNeedsHuman(ctx, seq.ID, reason); err != nil {
		return StepResult{}, apperr.Wrap(apperr.KindInternal, "mark needs_human", err)
	}

	s.bus.Publish(ctx, events.SequenceNeedsHuman{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: seq.ID,
		LeadID:     seq.LeadID,
		Reason:     reason,
	})

	return StepResult{SequenceID: seq.ID, Status: StatusNeedsHuman, StepIndex: seq.StepIndex}, nil
}

func (s *Service) loadPuppy(ctx context.Context, id *uuid.UUID) *invrepo.Puppy {
	if id == nil {
		return nil
	}
	puppy, err := s.puppies.GetByID(ctx, *id)
	if err != nil {
		if !errors.Is(err, invrepo.ErrNotFound) {
			s.log.DatabaseError("load puppy", err)
		}
		return nil
	}
	if puppy.Status != invrepo.StatusAvailable {
		// Sold since matching; the message falls back to the generic pitch.
		return nil
	}
	return &puppy
}

// ProcessDueQueue claims due sequences and executes their current step,
// concurrently across different sequences. Per-item failures are logged and
// released for the next poll; they never abort the batch.
func (s *Service) ProcessDueQueue(ctx context.Context, limit int) (int, error) {
	due, err := s.store.ClaimDue(ctx, limit, claimTTL)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "claim due sequences", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(executeConcurrency)

	for _, seq := range due {
		seq := seq
		g.Go(func() error {
			if _, err := s.ExecuteStep(gctx, seq.ID); err != nil {
				s.log.Error("step execution failed",
					"sequence_id", seq.ID.String(),
					"lead_id", seq.LeadID.String(),
					"error", err,
				)
				if releaseErr := s.store.ReleaseClaim(gctx, seq.ID); releaseErr != nil {
					s.log.DatabaseError("release claim", releaseErr)
				}
				return nil
			}
			processed.Add(1)
			return nil
		})
	}

	_ = g.Wait()
	return int(processed.Load()), nil
}

// MarkHuman forces manual takeover, clearing the scheduling fields.
func (s *Service) MarkHuman(ctx context.Context, sequenceID uuid.UUID) error {
	if err := s.store.MarkManual(ctx, sequenceID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, "sequence not found", err)
		}
		return apperr.Wrap(apperr.KindInternal, "mark manual", err)
	}
	return nil
}

// RecordConversion retires the lead's sequence after a sale, crediting the
// step that was live when the lead converted.
func (s *Service) RecordConversion(ctx context.Context, leadID uuid.UUID, stepType string) (Sequence, error) {
	seq, err := s.store.RecordConversion(ctx, leadID, stepType)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sequence{}, apperr.Wrap(apperr.KindNotFound, "sequence not found", err)
		}
		return Sequence{}, apperr.Wrap(apperr.KindInternal, "record conversion", err)
	}
	return seq, nil
}

// GetByID loads one sequence.
func (s *Service) GetByID(ctx context.Context, sequenceID uuid.UUID) (Sequence, error) {
	seq, err := s.store.GetByID(ctx, sequenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sequence{}, apperr.Wrap(apperr.KindNotFound, "sequence not found", err)
		}
		return Sequence{}, apperr.Wrap(apperr.KindInternal, "load sequence", err)
	}
	return seq, nil
}

// GetByLeadID loads the sequence for a lead.
func (s *Service) GetByLeadID(ctx context.Context, leadID uuid.UUID) (Sequence, error) {
	seq, err := s.store.GetByLeadID(ctx, leadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sequence{}, apperr.Wrap(apperr.KindNotFound, "sequence not found", err)
		}
		return Sequence{}, apperr.Wrap(apperr.KindInternal, "load sequence", err)
	}
	return seq, nil
}

// Logs returns the execution history for a sequence.
func (s *Service) Logs(ctx context.Context, sequenceID uuid.UUID) ([]Log, error) {
	logs, err := s.store.ListLogs(ctx, sequenceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list logs", err)
	}
	return logs, nil
}
