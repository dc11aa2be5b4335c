package transport

import (
	"time"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/scorer"
	"petshop_backend/internal/autosales/sequence"
	"petshop_backend/internal/autosales/strategy"
)

// CreateSequenceRequest starts an outreach sequence for an existing lead.
type CreateSequenceRequest struct {
	LeadID      uuid.UUID `json:"leadId" validate:"required"`
	BypassHuman bool      `json:"bypassHuman"`
}

// RecordConversionRequest credits a sale to an outreach step.
type RecordConversionRequest struct {
	LeadID   uuid.UUID `json:"leadId" validate:"required"`
	StepType string    `json:"stepType" validate:"required,oneof=intro followup_light followup_strong followup_final"`
}

// SequenceResponse represents an outreach sequence in API responses.
type SequenceResponse struct {
	ID               uuid.UUID         `json:"id"`
	LeadID           uuid.UUID         `json:"leadId"`
	PuppyID          *uuid.UUID        `json:"puppyId,omitempty"`
	Tone             string            `json:"tone"`
	Urgency          string            `json:"urgency"`
	Status           string            `json:"status"`
	NextStep         *string           `json:"nextStep,omitempty"`
	NextRunAt        *time.Time        `json:"nextRunAt,omitempty"`
	StepIndex        int               `json:"stepIndex"`
	TotalSteps       int               `json:"totalSteps"`
	FallbackRequired bool              `json:"fallbackRequired"`
	FallbackReason   *string           `json:"fallbackReason,omitempty"`
	BypassHuman      bool              `json:"bypassHuman"`
	Strategy         strategy.Strategy `json:"strategy"`
	Metrics          sequence.Metrics  `json:"metrics"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// StepResultResponse reports the outcome of one execution attempt.
type StepResultResponse struct {
	SequenceID uuid.UUID `json:"sequenceId"`
	StepType   string    `json:"stepType,omitempty"`
	StepIndex  int       `json:"stepIndex"`
	Status     string    `json:"status"`
	Skipped    bool      `json:"skipped"`
}

// ProcessQueueResponse reports how many due sequences a sweep advanced.
type ProcessQueueResponse struct {
	Processed int `json:"processed"`
}

// LogResponse represents one sent outreach message.
type LogResponse struct {
	ID             uuid.UUID            `json:"id"`
	SequenceID     uuid.UUID            `json:"sequenceId"`
	LeadID         uuid.UUID            `json:"leadId"`
	PuppyID        *uuid.UUID           `json:"puppyId,omitempty"`
	MessageType    string               `json:"messageType"`
	Content        string               `json:"content"`
	CTALink        string               `json:"ctaLink"`
	Metadata       sequence.LogMetadata `json:"metadata"`
	Objections     []string             `json:"objections,omitempty"`
	SentAt         time.Time            `json:"sentAt"`
	DeliveryStatus string               `json:"deliveryStatus"`
}

// ProfileResponse represents a scored lead profile.
type ProfileResponse struct {
	LeadID        uuid.UUID `json:"leadId"`
	Score         int       `json:"score"`
	Risk          string    `json:"risk"`
	Intent        string    `json:"intent"`
	Urgency       string    `json:"urgency"`
	EmotionalTone string    `json:"emotionalTone"`
	Color         *string   `json:"color,omitempty"`
	Sex           *string   `json:"sex,omitempty"`
	City          *string   `json:"city,omitempty"`
	Timeframe     *string   `json:"timeframe,omitempty"`
	BudgetCents   *int64    `json:"budgetCents,omitempty"`
	Provider      string    `json:"provider"`
	Summary       string    `json:"summary,omitempty"`
	Alerts        []string  `json:"alerts,omitempty"`
	NextAction    string    `json:"nextAction"`
	AnalyzedAt    time.Time `json:"analyzedAt"`
}

// FromSequence maps the domain sequence onto its response shape.
func FromSequence(seq sequence.Sequence) SequenceResponse {
	return SequenceResponse{
		ID:               seq.ID,
		LeadID:           seq.LeadID,
		PuppyID:          seq.PuppyID,
		Tone:             seq.Tone,
		Urgency:          seq.Urgency,
		Status:           seq.Status,
		NextStep:         seq.NextStep,
		NextRunAt:        seq.NextRunAt,
		StepIndex:        seq.StepIndex,
		TotalSteps:       seq.TotalSteps,
		FallbackRequired: seq.FallbackRequired,
		FallbackReason:   seq.FallbackReason,
		BypassHuman:      seq.BypassHuman,
		Strategy:         seq.Strategy,
		Metrics:          seq.Metrics,
		CreatedAt:        seq.CreatedAt,
		UpdatedAt:        seq.UpdatedAt,
	}
}

// FromStepResult maps a step execution result onto its response shape.
func FromStepResult(result sequence.StepResult) StepResultResponse {
	return StepResultResponse{
		SequenceID: result.SequenceID,
		StepType:   result.StepType,
		StepIndex:  result.StepIndex,
		Status:     result.Status,
		Skipped:    result.Skipped,
	}
}

// FromLog maps a message log row onto its response shape.
func FromLog(log sequence.Log) LogResponse {
	return LogResponse{
		ID:             log.ID,
		SequenceID:     log.SequenceID,
		LeadID:         log.LeadID,
		PuppyID:        log.PuppyID,
		MessageType:    log.MessageType,
		Content:        log.Content,
		CTALink:        log.CTALink,
		Metadata:       log.Metadata,
		Objections:     log.Objections,
		SentAt:         log.SentAt,
		DeliveryStatus: log.DeliveryStatus,
	}
}

// FromProfile maps a scored profile onto its response shape.
func FromProfile(profile scorer.Profile) ProfileResponse {
	return ProfileResponse{
		LeadID:        profile.LeadID,
		Score:         profile.Score,
		Risk:          string(profile.Risk),
		Intent:        string(profile.Intent),
		Urgency:       string(profile.Urgency),
		EmotionalTone: profile.EmotionalTone,
		Color:         profile.Color,
		Sex:           profile.Sex,
		City:          profile.City,
		Timeframe:     profile.Timeframe,
		BudgetCents:   profile.BudgetCents,
		Provider:      profile.Provider,
		Summary:       profile.Summary,
		Alerts:        profile.Alerts,
		NextAction:    profile.NextAction,
		AnalyzedAt:    profile.AnalyzedAt,
	}
}
