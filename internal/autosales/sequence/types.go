package sequence

import (
	"time"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/strategy"
)

// Sequence statuses.
const (
	StatusScheduled  = "scheduled"
	StatusManual     = "manual"
	StatusNeedsHuman = "needs_human"
	StatusCompleted  = "completed"
)

// Log delivery statuses.
const (
	DeliveryQueued = "queued"
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Sequence is the persisted outreach state for one lead. One row per lead,
// unique on lead id. Invariants: NextRunAt is non-nil iff Status is
// scheduled; StepIndex never exceeds TotalSteps.
type Sequence struct {
	ID               uuid.UUID
	LeadID           uuid.UUID
	PuppyID          *uuid.UUID
	Tone             string
	Urgency          string
	Status           string
	NextStep         *string
	NextRunAt        *time.Time
	StepIndex        int
	TotalSteps       int
	FallbackRequired bool
	FallbackReason   *string
	BypassHuman      bool
	Metrics          Metrics
	Strategy         strategy.Strategy
	ClaimedUntil     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Metrics accumulates per-step counters inside the sequence row.
type Metrics struct {
	Steps map[string]*StepMetrics `json:"steps"`
}

type StepMetrics struct {
	Sent      int `json:"sent"`
	Converted int `json:"converted"`
}

func newMetrics() Metrics {
	return Metrics{Steps: make(map[string]*StepMetrics)}
}

func (m *Metrics) recordSent(stepType string) {
	if m.Steps == nil {
		m.Steps = make(map[string]*StepMetrics)
	}
	if m.Steps[stepType] == nil {
		m.Steps[stepType] = &StepMetrics{}
	}
	m.Steps[stepType].Sent++
}

func (m *Metrics) recordConverted(stepType string) {
	if m.Steps == nil {
		m.Steps = make(map[string]*StepMetrics)
	}
	if m.Steps[stepType] == nil {
		m.Steps[stepType] = &StepMetrics{}
	}
	m.Steps[stepType].Converted++
}

// TotalSent sums the sent counter across steps.
func (m Metrics) TotalSent() int {
	total := 0
	for _, s := range m.Steps {
		total += s.Sent
	}
	return total
}

// Log is one append-only record of an executed step.
type Log struct {
	ID             uuid.UUID
	SequenceID     uuid.UUID
	LeadID         uuid.UUID
	PuppyID        *uuid.UUID
	MessageType    string
	Content        string
	CTALink        string
	Metadata       LogMetadata
	Objections     []string
	SentAt         time.Time
	DeliveryStatus string
}

// LogMetadata is the free-form context stored with each log row.
type LogMetadata struct {
	StrategyName     string   `json:"strategy_name,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	StepIndex        int      `json:"step_index"`
	TriggerTags      []string `json:"trigger_tags,omitempty"`
	ObjectionRebuted string   `json:"objection_rebutted,omitempty"`
	WhatsAppLink     string   `json:"whatsapp_link,omitempty"`
	Provider         string   `json:"provider,omitempty"`
}
