// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"petshop_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCreated is published when a new inbound lead is stored.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// =============================================================================
// AutoSales Domain Events
// =============================================================================

// SequenceCreated is published when an outreach sequence is created for a lead.
type SequenceCreated struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	Status     string    `json:"status"`
}

func (e SequenceCreated) EventName() string { return "autosales.sequence.created" }

// SequenceStepExecuted is published after one outreach step has been executed.
type SequenceStepExecuted struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	StepType   string    `json:"stepType"`
	StepIndex  int       `json:"stepIndex"`
	Status     string    `json:"status"`
}

func (e SequenceStepExecuted) EventName() string { return "autosales.sequence.step_executed" }

// SequenceNeedsHuman is published when automation hands a lead off to a person.
type SequenceNeedsHuman struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	Reason     string    `json:"reason"`
}

func (e SequenceNeedsHuman) EventName() string { return "autosales.sequence.needs_human" }
