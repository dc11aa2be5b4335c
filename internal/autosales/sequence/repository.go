package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"petshop_backend/internal/autosales/strategy"
)

var ErrNotFound = errors.New("sequence not found")

// ErrStaleStep means the guarded advance lost to a concurrent execution of
// the same step.
var ErrStaleStep = errors.New("sequence step already executed")

const sequenceColumns = `id, lead_id, puppy_id, tone, urgency, status, next_step, next_run_at,
	step_index, total_steps, fallback_required, fallback_reason, bypass_human,
	metrics, strategy, claimed_until, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertParams creates or replaces the sequence for a lead. Re-running the
// analysis for a lead overwrites the previous sequence wholesale.
type UpsertParams struct {
	LeadID           uuid.UUID
	PuppyID          *uuid.UUID
	Tone             string
	Urgency          string
	Status           string
	NextStep         *string
	NextRunAt        *time.Time
	TotalSteps       int
	FallbackRequired bool
	FallbackReason   *string
	BypassHuman      bool
	Strategy         strategy.Strategy
}

func (r *Repository) UpsertByLeadID(ctx context.Context, params UpsertParams) (Sequence, error) {
	metricsJSON, _ := json.Marshal(newMetrics())
	strategyJSON, _ := json.Marshal(params.Strategy)

	row := r.pool.QueryRow(ctx, `
		INSERT INTO autosales_sequences
			(lead_id, puppy_id, tone, urgency, status, next_step, next_run_at,
			 step_index, total_steps, fallback_required, fallback_reason, bypass_human,
			 metrics, strategy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (lead_id) DO UPDATE SET
			puppy_id = EXCLUDED.puppy_id,
			tone = EXCLUDED.tone,
			urgency = EXCLUDED.urgency,
			status = EXCLUDED.status,
			next_step = EXCLUDED.next_step,
			next_run_at = EXCLUDED.next_run_at,
			step_index = 0,
			total_steps = EXCLUDED.total_steps,
			fallback_required = EXCLUDED.fallback_required,
			fallback_reason = EXCLUDED.fallback_reason,
			bypass_human = EXCLUDED.bypass_human,
			metrics = EXCLUDED.metrics,
			strategy = EXCLUDED.strategy,
			claimed_until = NULL,
			updated_at = now()
		RETURNING `+sequenceColumns,
		params.LeadID, params.PuppyID, params.Tone, params.Urgency, params.Status,
		params.NextStep, params.NextRunAt, params.TotalSteps,
		params.FallbackRequired, params.FallbackReason, params.BypassHuman,
		metricsJSON, strategyJSON,
	)

	return scanSequence(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Sequence, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM autosales_sequences WHERE id = $1`, id)
	return scanSequence(row)
}

func (r *Repository) GetByLeadID(ctx context.Context, leadID uuid.UUID) (Sequence, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM autosales_sequences WHERE lead_id = $1`, leadID)
	return scanSequence(row)
}

// ClaimDue atomically selects due sequences and stamps a claim window on
// them, so two pollers never pick up the same row. Expired claims are
// reclaimable, which covers a worker that died mid-step.
func (r *Repository) ClaimDue(ctx context.Context, limit int, claimTTL time.Duration) ([]Sequence, error) {
	if limit < 1 {
		limit = 10
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM autosales_sequences
		WHERE status = 'scheduled'
		  AND next_run_at <= now()
		  AND (claimed_until IS NULL OR claimed_until < now())
		ORDER BY next_run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE autosales_sequences s
	SET claimed_until = now() + make_interval(secs => $2), updated_at = now()
	FROM cte
	WHERE s.id = cte.id
	RETURNING `+prefixedColumns("s"), limit, claimTTL.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Sequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, seq)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// ReleaseClaim clears the claim window so the next poll can retry the row.
func (r *Repository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE autosales_sequences
		SET claimed_until = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// AdvanceParams is the new state written after a step executes.
type AdvanceParams struct {
	SequenceID uuid.UUID
	Status     string
	NextStep   *string
	NextRunAt  *time.Time
	StepIndex  int
	Metrics    Metrics

	// FromStepIndex is the step the caller observed. The advance applies
	// only while the row is still scheduled at that step.
	FromStepIndex int
}

// AppendLogAndAdvance advances the sequence and writes the log row in one
// transaction. The update is a compare-and-swap on (status, step_index):
// an overlapping execution of the same step loses with ErrStaleStep and
// writes nothing.
func (r *Repository) AppendLogAndAdvance(ctx context.Context, log Log, advance AdvanceParams) (uuid.UUID, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	metricsJSON, _ := json.Marshal(advance.Metrics)
	tag, err := tx.Exec(ctx, `
		UPDATE autosales_sequences
		SET status = $2, next_step = $3, next_run_at = $4, step_index = $5,
		    metrics = $6, claimed_until = NULL, updated_at = now()
		WHERE id = $1 AND status = 'scheduled' AND step_index = $7
	`,
		advance.SequenceID, advance.Status, advance.NextStep, advance.NextRunAt,
		advance.StepIndex, metricsJSON, advance.FromStepIndex,
	)
	if err != nil {
		return uuid.Nil, err
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, ErrStaleStep
	}

	metadataJSON, _ := json.Marshal(log.Metadata)
	objectionsJSON, _ := json.Marshal(log.Objections)

	var logID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO autosales_logs
			(sequence_id, lead_id, puppy_id, message_type, content, cta_link, metadata, objections, sent_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		log.SequenceID, log.LeadID, log.PuppyID, log.MessageType, log.Content,
		log.CTALink, metadataJSON, objectionsJSON, log.SentAt, log.DeliveryStatus,
	).Scan(&logID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return logID, nil
}

// UpdateLogDelivery records the delivery outcome on an already written log
// row.
func (r *Repository) UpdateLogDelivery(ctx context.Context, logID uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE autosales_logs SET status = $2 WHERE id = $1`, logID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkManual forces human takeover, clearing every scheduling field.
func (r *Repository) MarkManual(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE autosales_sequences
		SET status = 'manual', next_step = NULL, next_run_at = NULL,
		    claimed_until = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNeedsHuman retires automation for a sequence that hit its fallback
// deadline, handing it to an operator.
func (r *Repository) MarkNeedsHuman(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE autosales_sequences
		SET status = 'needs_human', next_step = NULL, next_run_at = NULL,
		    fallback_reason = $2, claimed_until = NULL, updated_at = now()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordConversion bumps the converted counter for the step that closed the
// sale and retires the sequence.
func (r *Repository) RecordConversion(ctx context.Context, leadID uuid.UUID, stepType string) (Sequence, error) {
	seq, err := r.GetByLeadID(ctx, leadID)
	if err != nil {
		return Sequence{}, err
	}

	seq.Metrics.recordConverted(stepType)
	metricsJSON, _ := json.Marshal(seq.Metrics)

	row := r.pool.QueryRow(ctx, `
		UPDATE autosales_sequences
		SET status = 'completed', next_step = NULL, next_run_at = NULL,
		    metrics = $2, claimed_until = NULL, updated_at = now()
		WHERE id = $1
		RETURNING `+sequenceColumns,
		seq.ID, metricsJSON,
	)
	return scanSequence(row)
}

// ListLogs returns the execution history for a sequence, oldest first.
func (r *Repository) ListLogs(ctx context.Context, sequenceID uuid.UUID) ([]Log, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sequence_id, lead_id, puppy_id, message_type, content, cta_link, metadata, objections, sent_at, status
		FROM autosales_logs
		WHERE sequence_id = $1
		ORDER BY sent_at ASC
	`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var log Log
		var metadataJSON, objectionsJSON []byte
		if err := rows.Scan(
			&log.ID, &log.SequenceID, &log.LeadID, &log.PuppyID, &log.MessageType,
			&log.Content, &log.CTALink, &metadataJSON, &objectionsJSON,
			&log.SentAt, &log.DeliveryStatus,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(metadataJSON, &log.Metadata)
		_ = json.Unmarshal(objectionsJSON, &log.Objections)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSequence(row rowScanner) (Sequence, error) {
	var seq Sequence
	var metricsJSON, strategyJSON []byte

	err := row.Scan(
		&seq.ID, &seq.LeadID, &seq.PuppyID, &seq.Tone, &seq.Urgency, &seq.Status,
		&seq.NextStep, &seq.NextRunAt, &seq.StepIndex, &seq.TotalSteps,
		&seq.FallbackRequired, &seq.FallbackReason, &seq.BypassHuman,
		&metricsJSON, &strategyJSON, &seq.ClaimedUntil, &seq.CreatedAt, &seq.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sequence{}, ErrNotFound
		}
		return Sequence{}, err
	}

	_ = json.Unmarshal(metricsJSON, &seq.Metrics)
	_ = json.Unmarshal(strategyJSON, &seq.Strategy)
	if seq.Metrics.Steps == nil {
		seq.Metrics = newMetrics()
	}

	return seq, nil
}

func prefixedColumns(alias string) string {
	return alias + `.id, ` + alias + `.lead_id, ` + alias + `.puppy_id, ` + alias + `.tone, ` +
		alias + `.urgency, ` + alias + `.status, ` + alias + `.next_step, ` + alias + `.next_run_at, ` +
		alias + `.step_index, ` + alias + `.total_steps, ` + alias + `.fallback_required, ` +
		alias + `.fallback_reason, ` + alias + `.bypass_human, ` + alias + `.metrics, ` +
		alias + `.strategy, ` + alias + `.claimed_until, ` + alias + `.created_at, ` + alias + `.updated_at`
}
