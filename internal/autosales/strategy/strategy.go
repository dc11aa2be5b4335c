// Package strategy turns a lead profile into a concrete outreach plan: four
// timed steps, a tone, a fallback deadline and the objections to rebut.
package strategy

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/heuristics"
	"petshop_backend/internal/autosales/scorer"
)

// Step types, in execution order.
const (
	StepIntro          = "intro"
	StepFollowupLight  = "followup_light"
	StepFollowupStrong = "followup_strong"
	StepFollowupFinal  = "followup_final"
)

// Message tones.
const (
	TonePremium      = "premium"
	ToneConsultative = "consultivo"
	ToneObjective    = "objetivo"
	ToneFriendly     = "amigavel"
)

// Objection keys detected from the lead's message.
const (
	ObjectionPrice     = "price"
	ObjectionTrust     = "trust"
	ObjectionTime      = "time"
	ObjectionLogistics = "logistics"
	ObjectionHealth    = "health"
)

// Fallback deadlines: how long automation may run before a human must step
// in, measured from sequence creation.
const (
	fallbackHighUrgency = 540 * time.Minute
	fallbackDefault     = 1440 * time.Minute
)

// Step is one planned outreach touch. DelayMinutes is measured from the
// previous step, not from creation.
type Step struct {
	Type         string `json:"type"`
	DelayMinutes int    `json:"delay_minutes"`
	Label        string `json:"label"`
	Tone         string `json:"tone"`
	Reminder     string `json:"reminder,omitempty"`
}

// Strategy is the immutable plan embedded in the sequence row at creation.
type Strategy struct {
	Tone            string     `json:"tone"`
	Urgency         string     `json:"urgency"`
	Score           int        `json:"score"`
	Steps           []Step     `json:"steps"`
	FallbackMinutes int        `json:"fallback_minutes"`
	FallbackReason  string     `json:"fallback_reason"`
	Objections      []string   `json:"objections"`
	TriggerTags     []string   `json:"trigger_tags"`
	MatchedPuppyID  *uuid.UUID `json:"matched_puppy_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

var delayTables = map[heuristics.Level][4]int{
	heuristics.LevelHigh:   {0, 45, 180, 420},
	heuristics.LevelMedium: {0, 120, 360, 720},
	heuristics.LevelLow:    {0, 240, 720, 1440},
}

var stepLabels = map[string]string{
	StepIntro:          "primeiro contato",
	StepFollowupLight:  "acompanhamento leve",
	StepFollowupStrong: "acompanhamento direto",
	StepFollowupFinal:  "última tentativa",
}

var objectionPatterns = map[string][]string{
	ObjectionPrice:     {"caro", "desconto", "parcel", "mais barato", "nao tenho dinheiro"},
	ObjectionTrust:     {"golpe", "medo", "confianca", "confiavel", "desconfiad", "seguro mesmo", "e verdade"},
	ObjectionTime:      {"sem tempo", "ocupad", "depois eu vejo", "mais pra frente", "semana que vem"},
	ObjectionLogistics: {"entrega", "longe", "frete", "transporte", "como recebo", "envia"},
	ObjectionHealth:    {"saude", "vacina", "pedigree", "veterinario", "vermifug", "doenca"},
}

// objectionOrder keeps detection deterministic; map iteration is not.
var objectionOrder = []string{ObjectionPrice, ObjectionTrust, ObjectionTime, ObjectionLogistics, ObjectionHealth}

// BuildFor derives the outreach plan for a profile. Always exactly four
// steps; the strong and final steps shift to an objective tone so the close
// never sounds passive.
func BuildFor(profile scorer.Profile, matchedPuppyID *uuid.UUID, message string, now time.Time) Strategy {
	baseTone := toneFor(profile.EmotionalTone)
	delays := delayTables[profile.Urgency]
	if _, ok := delayTables[profile.Urgency]; !ok {
		delays = delayTables[heuristics.LevelLow]
	}

	stepTypes := []string{StepIntro, StepFollowupLight, StepFollowupStrong, StepFollowupFinal}
	steps := make([]Step, 0, len(stepTypes))
	for i, stepType := range stepTypes {
		tone := baseTone
		if stepType == StepFollowupStrong || stepType == StepFollowupFinal {
			tone = ToneObjective
		}
		step := Step{
			Type:         stepType,
			DelayMinutes: delays[i],
			Label:        stepLabels[stepType],
			Tone:         tone,
		}
		if stepType == StepFollowupFinal {
			step.Reminder = "avisar que a reserva pode ser feita por sinal"
		}
		steps = append(steps, step)
	}

	fallback := fallbackDefault
	reason := "sem conversão após a janela padrão de acompanhamento"
	if profile.Urgency == heuristics.LevelHigh {
		fallback = fallbackHighUrgency
		reason = "lead urgente sem conversão dentro da janela curta"
	}

	objections := DetectObjections(message)

	return Strategy{
		Tone:            baseTone,
		Urgency:         string(profile.Urgency),
		Score:           profile.Score,
		Steps:           steps,
		FallbackMinutes: int(fallback / time.Minute),
		FallbackReason:  reason,
		Objections:      objections,
		TriggerTags:     triggerTags(profile, objections),
		MatchedPuppyID:  matchedPuppyID,
		CreatedAt:       now,
	}
}

// DetectObjections scans the message for known objection families. The
// result is deduplicated and ordered by the fixed key order.
func DetectObjections(message string) []string {
	text := heuristics.Normalize(message)
	var detected []string
	for _, key := range objectionOrder {
		for _, pattern := range objectionPatterns[key] {
			if strings.Contains(text, pattern) {
				detected = append(detected, key)
				break
			}
		}
	}
	return detected
}

func toneFor(emotionalTone string) string {
	switch emotionalTone {
	case heuristics.ToneEnthusiastic:
		return TonePremium
	case heuristics.ToneUndecided:
		return ToneConsultative
	case heuristics.ToneSkeptical:
		return ToneObjective
	default:
		return ToneFriendly
	}
}

func triggerTags(profile scorer.Profile, objections []string) []string {
	tags := []string{"urgency:" + string(profile.Urgency)}

	if profile.Color != nil {
		tags = append(tags, "cor:"+*profile.Color)
	}

	if profile.Score >= 80 {
		tags = append(tags, "prioridade:vip")
	} else if profile.Risk == scorer.RiskHigh {
		tags = append(tags, "prioridade:nutrir")
	}

	for _, key := range objections {
		tags = append(tags, "objection:"+key)
	}

	return tags
}

// TotalSteps is fixed for every strategy this builder produces.
func (s Strategy) TotalSteps() int {
	return len(s.Steps)
}

// DueAt computes the absolute due time of the step at index, summing delays
// from the given start.
func (s Strategy) DueAt(start time.Time, index int) time.Time {
	due := start
	for i := 0; i <= index && i < len(s.Steps); i++ {
		due = due.Add(time.Duration(s.Steps[i].DelayMinutes) * time.Minute)
	}
	return due
}
