package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInsightNotFound = errors.New("insight not found")

// Repository persists the latest analysis result per lead in
// autosales_insights. One row per lead, replaced on every re-analysis.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insight is the persisted form of a Profile.
type Insight struct {
	LeadID        uuid.UUID
	Score         int
	Risk          string
	Intent        string
	Urgency       string
	EmotionalTone string
	Provider      string
	Summary       string
	Preferences   InsightPreferences
	Alerts        []string
	NextAction    string
	AnalyzedAt    time.Time
}

type InsightPreferences struct {
	Color       *string `json:"color,omitempty"`
	Sex         *string `json:"sex,omitempty"`
	City        *string `json:"city,omitempty"`
	Timeframe   *string `json:"timeframe,omitempty"`
	BudgetCents *int64  `json:"budget_cents,omitempty"`
}

func (r *Repository) Upsert(ctx context.Context, insight Insight) error {
	prefsJSON, _ := json.Marshal(insight.Preferences)
	alertsJSON, _ := json.Marshal(insight.Alerts)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO autosales_insights (lead_id, score, risk, intent, urgency, emotional_tone, provider, summary, preferences, alerts, next_action, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (lead_id) DO UPDATE SET
			score = EXCLUDED.score,
			risk = EXCLUDED.risk,
			intent = EXCLUDED.intent,
			urgency = EXCLUDED.urgency,
			emotional_tone = EXCLUDED.emotional_tone,
			provider = EXCLUDED.provider,
			summary = EXCLUDED.summary,
			preferences = EXCLUDED.preferences,
			alerts = EXCLUDED.alerts,
			next_action = EXCLUDED.next_action,
			analyzed_at = EXCLUDED.analyzed_at
	`,
		insight.LeadID, insight.Score, insight.Risk, insight.Intent, insight.Urgency,
		insight.EmotionalTone, insight.Provider, insight.Summary, prefsJSON, alertsJSON,
		insight.NextAction, insight.AnalyzedAt,
	)
	return err
}

func (r *Repository) GetByLeadID(ctx context.Context, leadID uuid.UUID) (Insight, error) {
	var insight Insight
	var prefsJSON, alertsJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT lead_id, score, risk, intent, urgency, emotional_tone, provider, summary, preferences, alerts, next_action, analyzed_at
		FROM autosales_insights WHERE lead_id = $1
	`, leadID).Scan(
		&insight.LeadID, &insight.Score, &insight.Risk, &insight.Intent, &insight.Urgency,
		&insight.EmotionalTone, &insight.Provider, &insight.Summary, &prefsJSON, &alertsJSON,
		&insight.NextAction, &insight.AnalyzedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Insight{}, ErrInsightNotFound
		}
		return Insight{}, err
	}

	_ = json.Unmarshal(prefsJSON, &insight.Preferences)
	_ = json.Unmarshal(alertsJSON, &insight.Alerts)

	return insight, nil
}
