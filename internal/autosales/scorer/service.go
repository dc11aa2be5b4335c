// Package scorer builds a purchase profile for a lead. It prefers the
// external reasoning service and falls back to local heuristics when that
// service is unavailable, so a profile is always produced.
package scorer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/heuristics"
	"petshop_backend/internal/autosales/reasoning"
	"petshop_backend/internal/leads/repository"
	"petshop_backend/platform/logger"
)

const (
	ProviderReasoning = "reasoning"
	ProviderHeuristic = "heuristic"

	cacheTTL      = 5 * time.Minute
	cacheCapacity = 512
)

// Risk classifies how likely a lead is to slip away without attention.
// High scores mean engaged leads, so risk moves inversely to score.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// RiskFor derives risk purely from the score.
func RiskFor(score int) Risk {
	switch {
	case score >= 70:
		return RiskLow
	case score >= 50:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Profile is the complete analysis of a lead used by the matcher and the
// strategy builder.
type Profile struct {
	LeadID        uuid.UUID
	Score         int
	Risk          Risk
	Intent        heuristics.Level
	Urgency       heuristics.Level
	Color         *string
	Sex           *string
	City          *string
	Timeframe     *string
	BudgetCents   *int64
	EmotionalTone string
	Provider      string
	Summary       string
	Alerts        []string
	NextAction    string
	AnalyzedAt    time.Time
}

type reasoningClient interface {
	Analyze(ctx context.Context, in reasoning.Input) (*reasoning.Result, error)
}

type insightStore interface {
	Upsert(ctx context.Context, insight Insight) error
	GetByLeadID(ctx context.Context, leadID uuid.UUID) (Insight, error)
}

// Service produces and caches lead profiles.
type Service struct {
	reasoner reasoningClient
	insights insightStore
	cache    *profileCache
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the scoring service. Pass a nil reasoner to run on
// heuristics only.
func NewService(reasoner reasoningClient, insights insightStore, log *logger.Logger) *Service {
	return &Service{
		reasoner: reasoner,
		insights: insights,
		cache:    newProfileCache(cacheTTL, cacheCapacity, time.Now),
		log:      log,
		now:      time.Now,
	}
}

// ProfileFor returns the lead's profile, reusing the in-memory cache and the
// persisted insight row when they are still current for this lead version.
func (s *Service) ProfileFor(ctx context.Context, lead repository.Lead) (Profile, error) {
	key := keyFor(lead)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	if insight, err := s.insights.GetByLeadID(ctx, lead.ID); err == nil {
		// Reuse the durable row only when it post-dates the lead's last
		// change, otherwise it describes an older message.
		if !insight.AnalyzedAt.Before(lead.UpdatedAt) {
			profile := profileFromInsight(insight)
			s.cache.put(key, profile)
			return profile, nil
		}
	} else if !errors.Is(err, ErrInsightNotFound) {
		s.log.DatabaseError("get insight", err)
	}

	return s.analyze(ctx, lead, key)
}

// Reanalyze recomputes the profile ignoring both caches, used when a lead
// re-engages with a new message.
func (s *Service) Reanalyze(ctx context.Context, lead repository.Lead) (Profile, error) {
	s.cache.invalidate(lead.ID)
	return s.analyze(ctx, lead, keyFor(lead))
}

// Invalidate drops the cached profiles for a lead.
func (s *Service) Invalidate(leadID uuid.UUID) {
	s.cache.invalidate(leadID)
}

func keyFor(lead repository.Lead) cacheKey {
	return cacheKey{
		leadID: lead.ID,
		hash: contentHash(
			lead.Name, lead.Message,
			derefOr(lead.DesiredColor, ""), derefOr(lead.DesiredSex, ""),
			derefOr(lead.City, ""), derefOr(lead.Referrer, ""),
		),
	}
}

func (s *Service) analyze(ctx context.Context, lead repository.Lead, key cacheKey) (Profile, error) {
	local := heuristics.Analyze(heuristics.Input{
		Name:        lead.Name,
		Message:     lead.Message,
		Preferences: derefOr(lead.DesiredColor, "") + " " + derefOr(lead.DesiredSex, ""),
		Referrer:    derefOr(lead.Referrer, ""),
	})

	profile := s.buildProfile(ctx, lead, local)
	profile.Alerts = mergeAlerts(profile.Alerts, synthesizeAlerts(profile))
	profile.NextAction = nextActionFor(profile)
	profile.AnalyzedAt = s.now()

	if err := s.insights.Upsert(ctx, insightFromProfile(profile)); err != nil {
		// The profile is still usable; persisting the insight is best effort.
		s.log.DatabaseError("upsert insight", err)
	}

	s.cache.put(key, profile)
	return profile, nil
}

func (s *Service) buildProfile(ctx context.Context, lead repository.Lead, local heuristics.Signals) Profile {
	profile := Profile{
		LeadID:        lead.ID,
		Score:         local.Score,
		Intent:        local.Intent,
		Urgency:       local.Urgency,
		EmotionalTone: local.EmotionalTone,
		Provider:      ProviderHeuristic,
		Color:         firstNonNil(local.Color, lead.DesiredColor),
		Sex:           firstNonNil(local.Sex, lead.DesiredSex),
		City:          firstNonNil(local.City, lead.City),
		Timeframe:     local.Timeframe,
		BudgetCents:   local.BudgetCents,
	}

	if s.reasoner != nil {
		result, err := s.reasoner.Analyze(ctx, reasoning.Input{
			Name:        lead.Name,
			Message:     lead.Message,
			Preferences: derefOr(lead.DesiredColor, "") + " " + derefOr(lead.DesiredSex, ""),
			Referrer:    derefOr(lead.Referrer, ""),
		})
		if err != nil {
			s.log.ReasoningDegraded(lead.ID.String(), err.Error())
		} else {
			profile.Score = result.Score
			profile.Intent = result.Intent
			profile.Urgency = result.Urgency
			profile.EmotionalTone = result.EmotionalTone
			profile.Provider = ProviderReasoning
			profile.Summary = result.Summary
			profile.Alerts = result.Alerts
			profile.Color = firstNonNil(result.Color, local.Color, lead.DesiredColor)
			profile.Sex = firstNonNil(result.Sex, local.Sex, lead.DesiredSex)
			profile.City = firstNonNil(result.City, local.City, lead.City)
			profile.Timeframe = firstNonNil(result.Timeframe, local.Timeframe)
			profile.BudgetCents = firstNonNilInt64(result.BudgetCents, local.BudgetCents)
		}
	}

	profile.Risk = RiskFor(profile.Score)
	return profile
}

func synthesizeAlerts(profile Profile) []string {
	var alerts []string

	if profile.Risk == RiskHigh {
		alerts = append(alerts, "risco alto: contato imediato recomendado")
	}
	if profile.Urgency == heuristics.LevelHigh {
		alerts = append(alerts, "urgência alta: responder em minutos")
	}
	if profile.EmotionalTone == heuristics.ToneSkeptical {
		alerts = append(alerts, "tom cético: enviar provas sociais e garantias")
	}
	if profile.EmotionalTone == heuristics.ToneUndecided {
		alerts = append(alerts, "tom indeciso: conduzir com perguntas abertas")
	}
	if profile.BudgetCents != nil {
		alerts = append(alerts, "orçamento informado: priorizar opções dentro do valor")
	}

	return alerts
}

func nextActionFor(profile Profile) string {
	switch {
	case profile.Intent == heuristics.LevelHigh && profile.Urgency == heuristics.LevelHigh:
		return "enviar oferta direta com fotos e condições de pagamento"
	case profile.EmotionalTone == heuristics.ToneSkeptical:
		return "enviar depoimentos de clientes e garantias antes da oferta"
	case profile.Risk == RiskHigh:
		return "nutrir com conteúdo leve antes de falar de preço"
	default:
		return "apresentar os filhotes disponíveis e perguntar preferências"
	}
}

func mergeAlerts(primary, extra []string) []string {
	seen := make(map[string]struct{}, len(primary)+len(extra))
	merged := make([]string, 0, len(primary)+len(extra))
	for _, alert := range append(primary, extra...) {
		if _, ok := seen[alert]; ok {
			continue
		}
		seen[alert] = struct{}{}
		merged = append(merged, alert)
	}
	return merged
}

func insightFromProfile(profile Profile) Insight {
	return Insight{
		LeadID:        profile.LeadID,
		Score:         profile.Score,
		Risk:          string(profile.Risk),
		Intent:        string(profile.Intent),
		Urgency:       string(profile.Urgency),
		EmotionalTone: profile.EmotionalTone,
		Provider:      profile.Provider,
		Summary:       profile.Summary,
		Preferences: InsightPreferences{
			Color:       profile.Color,
			Sex:         profile.Sex,
			City:        profile.City,
			Timeframe:   profile.Timeframe,
			BudgetCents: profile.BudgetCents,
		},
		Alerts:     profile.Alerts,
		NextAction: profile.NextAction,
		AnalyzedAt: profile.AnalyzedAt,
	}
}

func profileFromInsight(insight Insight) Profile {
	return Profile{
		LeadID:        insight.LeadID,
		Score:         insight.Score,
		Risk:          Risk(insight.Risk),
		Intent:        heuristics.Level(insight.Intent),
		Urgency:       heuristics.Level(insight.Urgency),
		EmotionalTone: insight.EmotionalTone,
		Provider:      insight.Provider,
		Summary:       insight.Summary,
		Color:         insight.Preferences.Color,
		Sex:           insight.Preferences.Sex,
		City:          insight.Preferences.City,
		Timeframe:     insight.Preferences.Timeframe,
		BudgetCents:   insight.Preferences.BudgetCents,
		Alerts:        insight.Alerts,
		NextAction:    insight.NextAction,
		AnalyzedAt:    insight.AnalyzedAt,
	}
}

func firstNonNil(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func firstNonNilInt64(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
