package sequence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/heuristics"
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
)

// memoryStore is an in-memory stand-in for the pgx repository, honoring the
// same claim and transition semantics.
type memoryStore struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*Sequence
	byLead     map[uuid.UUID]uuid.UUID
	logs       []Log
	advanceErr error

	// stale serves the next staleReads GetByID calls with an old snapshot,
	// simulating a second driver that read the row before an advance landed.
	stale      *Sequence
	staleReads int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		byID:   make(map[uuid.UUID]*Sequence),
		byLead: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *memoryStore) UpsertByLeadID(ctx context.Context, p UpsertParams) (Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byLead[p.LeadID]
	if !ok {
		id = uuid.New()
		m.byLead[p.LeadID] = id
	}
	now := time.Now()
	seq := Sequence{
		ID: id, LeadID: p.LeadID, PuppyID: p.PuppyID, Tone: p.Tone, Urgency: p.Urgency,
		Status: p.Status, NextStep: p.NextStep, NextRunAt: p.NextRunAt,
		TotalSteps: p.TotalSteps, FallbackRequired: p.FallbackRequired,
		FallbackReason: p.FallbackReason, BypassHuman: p.BypassHuman,
		Metrics: newMetrics(), Strategy: p.Strategy, CreatedAt: now, UpdatedAt: now,
	}
	m.byID[id] = &seq
	return seq, nil
}

func (m *memoryStore) GetByID(ctx context.Context, id uuid.UUID) (Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleReads > 0 && m.stale != nil && m.stale.ID == id {
		m.staleReads--
		return *m.stale, nil
	}
	seq, ok := m.byID[id]
	if !ok {
		return Sequence{}, ErrNotFound
	}
	return *seq, nil
}

func (m *memoryStore) GetByLeadID(ctx context.Context, leadID uuid.UUID) (Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byLead[leadID]
	if !ok {
		return Sequence{}, ErrNotFound
	}
	return *m.byID[id], nil
}

func (m *memoryStore) ClaimDue(ctx context.Context, limit int, ttl time.Duration) ([]Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var due []Sequence
	for _, seq := range m.byID {
		if len(due) >= limit {
			break
		}
		if seq.Status != StatusScheduled || seq.NextRunAt == nil || seq.NextRunAt.After(now) {
			continue
		}
		if seq.ClaimedUntil != nil && seq.ClaimedUntil.After(now) {
			continue
		}
		until := now.Add(ttl)
		seq.ClaimedUntil = &until
		due = append(due, *seq)
	}
	return due, nil
}

func (m *memoryStore) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq, ok := m.byID[id]; ok {
		seq.ClaimedUntil = nil
	}
	return nil
}

func (m *memoryStore) AppendLogAndAdvance(ctx context.Context, log Log, advance AdvanceParams) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advanceErr != nil {
		return uuid.Nil, m.advanceErr
	}
	seq, ok := m.byID[advance.SequenceID]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	if seq.Status != StatusScheduled || seq.StepIndex != advance.FromStepIndex {
		return uuid.Nil, ErrStaleStep
	}
	log.ID = uuid.New()
	m.logs = append(m.logs, log)
	seq.Status = advance.Status
	seq.NextStep = advance.NextStep
	seq.NextRunAt = advance.NextRunAt
	seq.StepIndex = advance.StepIndex
	seq.Metrics = advance.Metrics
	seq.ClaimedUntil = nil
	return log.ID, nil
}

func (m *memoryStore) UpdateLogDelivery(ctx context.Context, logID uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.logs {
		if m.logs[i].ID == logID {
			m.logs[i].DeliveryStatus = status
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) MarkManual(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	seq.Status = StatusManual
	seq.NextStep = nil
	seq.NextRunAt = nil
	seq.ClaimedUntil = nil
	return nil
}

func (m *memoryStore) MarkNeedsHuman(ctx context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	seq.Status = StatusNeedsHuman
	seq.NextStep = nil
	seq.NextRunAt = nil
	seq.FallbackReason = &reason
	seq.ClaimedUntil = nil
	return nil
}

func (m *memoryStore) RecordConversion(ctx context.Context, leadID uuid.UUID, stepType string) (Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byLead[leadID]
	if !ok {
		return Sequence{}, ErrNotFound
	}
	seq := m.byID[id]
	seq.Metrics.recordConverted(stepType)
	seq.Status = StatusCompleted
	seq.NextStep = nil
	seq.NextRunAt = nil
	return *seq, nil
}

func (m *memoryStore) ListLogs(ctx context.Context, sequenceID uuid.UUID) ([]Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Log
	for _, log := range m.logs {
		if log.SequenceID == sequenceID {
			out = append(out, log)
		}
	}
	return out, nil
}

type fakeLeads struct {
	leads map[uuid.UUID]leadsrepo.Lead
}

func (f *fakeLeads) GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	return lead, nil
}

type fakePuppies struct {
	puppies map[uuid.UUID]invrepo.Puppy
}

func (f *fakePuppies) GetByID(ctx context.Context, id uuid.UUID) (invrepo.Puppy, error) {
	puppy, ok := f.puppies[id]
	if !ok {
		return invrepo.Puppy{}, invrepo.ErrNotFound
	}
	return puppy, nil
}

type fakeProfiler struct {
	profile scorer.Profile
}

func (f *fakeProfiler) ProfileFor(ctx context.Context, lead leadsrepo.Lead) (scorer.Profile, error) {
	p := f.profile
	p.LeadID = lead.ID
	return p, nil
}

func (f *fakeProfiler) Reanalyze(ctx context.Context, lead leadsrepo.Lead) (scorer.Profile, error) {
	return f.ProfileFor(ctx, lead)
}

type fakeMatcher struct {
	result matcher.Result
}

func (f *fakeMatcher) MatchFor(ctx context.Context, profile scorer.Profile) (matcher.Result, error) {
	return f.result, nil
}

type recordingSender struct {
	mu       sync.Mutex
	messages []outreach.Message
	status   string
	err      error
}

func (r *recordingSender) Send(ctx context.Context, msg outreach.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	status := r.status
	if status == "" {
		status = DeliveryQueued
	}
	return status, r.err
}

type fixture struct {
	svc    *Service
	store  *memoryStore
	sender *recordingSender
	lead   leadsrepo.Lead
	puppy  invrepo.Puppy
}

func newFixture(t *testing.T, message string, urgency heuristics.Level, risk scorer.Risk) *fixture {
	t.Helper()

	lead := leadsrepo.Lead{
		ID:      uuid.New(),
		Name:    "Maria Souza",
		Phone:   "+5511999990000",
		Message: message,
	}
	puppy := invrepo.Puppy{
		ID: uuid.New(), Name: "Thor", Breed: "spitz alemão", Color: "branco",
		Sex: "macho", PriceCents: 350000, Status: invrepo.StatusAvailable,
	}

	store := newMemoryStore()
	sender := &recordingSender{}

	svc := NewService(
		&fakeLeads{leads: map[uuid.UUID]leadsrepo.Lead{lead.ID: lead}},
		&fakePuppies{puppies: map[uuid.UUID]invrepo.Puppy{puppy.ID: puppy}},
		&fakeProfiler{profile: scorer.Profile{
			Score:         70,
			Risk:          risk,
			Intent:        heuristics.LevelHigh,
			Urgency:       urgency,
			EmotionalTone: heuristics.ToneNeutral,
		}},
		&fakeMatcher{result: matcher.Result{
			Best:      &matcher.Match{Puppy: puppy, Score: 30, Reason: "cor desejada"},
			Shortlist: []matcher.Match{{Puppy: puppy, Score: 30, Reason: "cor desejada"}},
		}},
		store,
		sender,
		events.NewInMemoryBus(logger.New("test")),
		logger.New("test"),
		"https://canilexemplo.com.br",
	)

	return &fixture{svc: svc, store: store, sender: sender, lead: lead, puppy: puppy}
}

func assertInvariant(t *testing.T, seq Sequence) {
	t.Helper()
	if (seq.Status == StatusScheduled) != (seq.NextRunAt != nil) {
		t.Fatalf("invariant violated: status=%s next_run_at=%v", seq.Status, seq.NextRunAt)
	}
	if seq.StepIndex > seq.TotalSteps {
		t.Fatalf("step_index %d exceeds total_steps %d", seq.StepIndex, seq.TotalSteps)
	}
}

func TestCreateSequenceScheduled(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, plan, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seq.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", seq.Status)
	}
	if seq.NextStep == nil || *seq.NextStep != strategy.StepIntro {
		t.Errorf("expected first step intro, got %v", seq.NextStep)
	}
	if seq.TotalSteps != 4 || len(plan.Steps) != 4 {
		t.Errorf("expected 4 steps, got %d", seq.TotalSteps)
	}
	if seq.PuppyID == nil || *seq.PuppyID != f.puppy.ID {
		t.Error("expected the matched puppy id on the sequence")
	}
	assertInvariant(t, seq)
}

func TestCreateSequenceBypassHuman(t *testing.T) {
	f := newFixture(t, "quero comprar", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, err := f.svc.CreateSequence(context.Background(), f.lead.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seq.Status != StatusManual {
		t.Errorf("expected manual, got %s", seq.Status)
	}
	if seq.NextRunAt != nil || seq.NextStep != nil {
		t.Error("bypassed sequence must have no scheduling fields")
	}
	assertInvariant(t, seq)

	count, err := f.svc.ProcessDueQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("poller must never select a manual sequence, processed %d", count)
	}
}

func TestCreateSequenceUnknownLead(t *testing.T) {
	f := newFixture(t, "oi", heuristics.LevelLow, scorer.RiskHigh)

	_, _, err := f.svc.CreateSequence(context.Background(), uuid.New(), false)
	if err == nil {
		t.Fatal("expected an error for an unknown lead")
	}
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("expected not-found kind, got %v", apperr.GetKind(err))
	}
}

func TestCreateSequenceRerunOverwrites(t *testing.T) {
	f := newFixture(t, "quero comprar", heuristics.LevelHigh, scorer.RiskLow)

	first, _, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Error("re-running must overwrite the sequence for the lead, not create a second row")
	}
	if second.StepIndex != 0 {
		t.Error("overwritten sequence must restart at step 0")
	}
}

func TestExecuteStepTerminatesInTotalStepsCalls(t *testing.T) {
	// Low risk and no objections: the sequence completes without handoff.
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < seq.TotalSteps; i++ {
		result, err := f.svc.ExecuteStep(context.Background(), seq.ID)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if result.Skipped {
			t.Fatalf("step %d: unexpected no-op", i)
		}
		current, _ := f.store.GetByID(context.Background(), seq.ID)
		assertInvariant(t, current)
	}

	final, _ := f.store.GetByID(context.Background(), seq.ID)
	if final.Status != StatusCompleted {
		t.Errorf("expected completed after %d steps, got %s", seq.TotalSteps, final.Status)
	}
	if final.StepIndex != final.TotalSteps {
		t.Errorf("expected step_index %d, got %d", final.TotalSteps, final.StepIndex)
	}

	// Further calls are no-ops.
	result, err := f.svc.ExecuteStep(context.Background(), seq.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Skipped {
		t.Error("executing a terminal sequence must be a no-op")
	}
	if len(f.store.logs) != seq.TotalSteps {
		t.Errorf("expected %d log rows, got %d", seq.TotalSteps, len(f.store.logs))
	}
}

func TestExecuteStepFallbackHandoffAtExhaustion(t *testing.T) {
	// High risk keeps the fallback window open, so exhaustion hands off.
	f := newFixture(t, "talvez, nao sei ainda", heuristics.LevelLow, scorer.RiskHigh)

	seq, _, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seq.FallbackRequired {
		t.Fatal("high risk lead should require a fallback window")
	}

	for i := 0; i < seq.TotalSteps; i++ {
		if _, err := f.svc.ExecuteStep(context.Background(), seq.ID); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	final, _ := f.store.GetByID(context.Background(), seq.ID)
	if final.Status != StatusNeedsHuman {
		t.Errorf("expected needs_human at exhaustion, got %s", final.Status)
	}
	assertInvariant(t, final)
}

func TestExecuteStepTrustObjectionRebuttal(t *testing.T) {
	f := newFixture(t, "é golpe? tenho medo", heuristics.LevelMedium, scorer.RiskMedium)

	seq, plan, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, key := range plan.Objections {
		if key == strategy.ObjectionTrust {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected trust objection, got %v", plan.Objections)
	}

	if _, err := f.svc.ExecuteStep(context.Background(), seq.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.store.logs) != 1 {
		t.Fatalf("expected one log row, got %d", len(f.store.logs))
	}
	content := f.store.logs[0].Content
	if !strings.Contains(content, templates.RebuttalFor(strategy.ObjectionTrust)) {
		t.Errorf("first-step message must contain the trust rebuttal, got %q", content)
	}
	if f.store.logs[0].Metadata.ObjectionRebuted != strategy.ObjectionTrust {
		t.Errorf("metadata should record the rebutted objection")
	}
}

func TestExecuteStepRecordsMetricsAndDelivery(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)
	f.sender.status = DeliverySent

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if _, err := f.svc.ExecuteStep(context.Background(), seq.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.Metrics.Steps[strategy.StepIntro] == nil || current.Metrics.Steps[strategy.StepIntro].Sent != 1 {
		t.Error("expected intro sent counter incremented")
	}
	if f.store.logs[0].DeliveryStatus != DeliverySent {
		t.Errorf("expected delivery status sent, got %s", f.store.logs[0].DeliveryStatus)
	}
	if len(f.sender.messages) != 1 || f.sender.messages[0].Phone != f.lead.Phone {
		t.Error("expected the message dispatched to the lead")
	}
	if f.store.logs[0].Metadata.WhatsAppLink != "https://wa.me/5511999990000" {
		t.Errorf("unexpected whatsapp link %q", f.store.logs[0].Metadata.WhatsAppLink)
	}
}

func TestExecuteStepDeliveryFailureStillAdvances(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)
	f.sender.err = errors.New("smtp down")

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if _, err := f.svc.ExecuteStep(context.Background(), seq.ID); err != nil {
		t.Fatalf("delivery failure must not fail the step, got %v", err)
	}

	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.StepIndex != 1 {
		t.Errorf("expected step advanced, step_index=%d", current.StepIndex)
	}
	if f.store.logs[0].DeliveryStatus != DeliveryFailed {
		t.Errorf("expected failed delivery status, got %s", f.store.logs[0].DeliveryStatus)
	}
}

func TestExecuteStepMalformedStrategy(t *testing.T) {
	f := newFixture(t, "quero comprar", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	f.store.mu.Lock()
	f.store.byID[seq.ID].Strategy.Steps = nil
	f.store.mu.Unlock()

	_, err := f.svc.ExecuteStep(context.Background(), seq.ID)
	if err == nil {
		t.Fatal("expected an error for a strategy without steps")
	}

	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.StepIndex != 0 || current.Status != StatusScheduled {
		t.Error("malformed sequence must be left unchanged")
	}
}

func TestExecuteStepMissingPuppyFallsBackToGeneric(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	f.store.mu.Lock()
	soldID := uuid.New()
	f.store.byID[seq.ID].PuppyID = &soldID
	f.store.mu.Unlock()

	if _, err := f.svc.ExecuteStep(context.Background(), seq.ID); err != nil {
		t.Fatalf("missing puppy must not fail the step, got %v", err)
	}
	if strings.Contains(f.store.logs[0].Content, "Thor") {
		t.Error("generic message must not mention the unavailable puppy")
	}
}

func TestExecuteStepFallbackDeadlinePassed(t *testing.T) {
	f := newFixture(t, "talvez", heuristics.LevelLow, scorer.RiskHigh)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	// Age the sequence past its fallback deadline.
	f.store.mu.Lock()
	f.store.byID[seq.ID].CreatedAt = time.Now().Add(-48 * time.Hour)
	f.store.mu.Unlock()

	result, err := f.svc.ExecuteStep(context.Background(), seq.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusNeedsHuman {
		t.Errorf("expected needs_human after deadline, got %s", result.Status)
	}
	if len(f.store.logs) != 0 {
		t.Error("deadline handoff must not send a message")
	}
	current, _ := f.store.GetByID(context.Background(), seq.ID)
	assertInvariant(t, current)
}

func TestProcessDueQueue(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	// The intro step has delay 0, so it is due immediately.
	count, err := f.svc.ProcessDueQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 processed, got %d", count)
	}

	// The follow-up is 45 minutes out; nothing is due now.
	count, err = f.svc.ProcessDueQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 processed, got %d", count)
	}

	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.StepIndex != 1 {
		t.Errorf("expected step_index 1, got %d", current.StepIndex)
	}
}

func TestProcessDueQueueContinuesPastFailures(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	// Corrupt the strategy so execution fails for this row.
	f.store.mu.Lock()
	f.store.byID[seq.ID].Strategy.Steps = nil
	f.store.mu.Unlock()

	count, err := f.svc.ProcessDueQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("batch must not fail on one bad row: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 processed, got %d", count)
	}

	// The failed row's claim is released for the next poll.
	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.ClaimedUntil != nil {
		t.Error("failed row should have its claim released")
	}
}

func TestMarkHuman(t *testing.T) {
	f := newFixture(t, "quero comprar", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	if err := f.svc.MarkHuman(context.Background(), seq.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.Status != StatusManual {
		t.Errorf("expected manual, got %s", current.Status)
	}
	if current.NextRunAt != nil || current.NextStep != nil {
		t.Error("manual takeover must clear scheduling fields")
	}
	assertInvariant(t, current)

	if err := f.svc.MarkHuman(context.Background(), uuid.New()); apperr.GetKind(err) != apperr.KindNotFound {
		t.Error("expected not-found for an unknown sequence")
	}
}

func TestRecordConversion(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	_, _, _ = f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	seq, err := f.svc.RecordConversion(context.Background(), f.lead.ID, strategy.StepIntro)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq.Status != StatusCompleted {
		t.Errorf("expected completed after conversion, got %s", seq.Status)
	}
	if seq.Metrics.Steps[strategy.StepIntro].Converted != 1 {
		t.Error("expected converted counter incremented")
	}
	assertInvariant(t, seq)
}

func TestAdvanceFailureLeavesSequenceUntouched(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, _ := f.svc.CreateSequence(context.Background(), f.lead.ID, false)

	f.store.mu.Lock()
	f.store.advanceErr = errors.New("db down")
	f.store.mu.Unlock()

	if _, err := f.svc.ExecuteStep(context.Background(), seq.ID); err == nil {
		t.Fatal("expected persistence error to surface")
	}

	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.StepIndex != 0 || len(f.store.logs) != 0 {
		t.Error("failed advance must leave both log and sequence untouched")
	}
	if len(f.sender.messages) != 0 {
		t.Error("nothing may be sent when the advance fails")
	}
}

func TestExecuteStepOverlappingExecutionSendsOnce(t *testing.T) {
	f := newFixture(t, "quero comprar hoje", heuristics.LevelHigh, scorer.RiskLow)

	seq, _, err := f.svc.CreateSequence(context.Background(), f.lead.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two drivers read the same scheduled row before either advances it.
	f.store.mu.Lock()
	snapshot := *f.store.byID[seq.ID]
	f.store.mu.Unlock()

	first, err := f.svc.ExecuteStep(context.Background(), seq.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Skipped {
		t.Fatal("first execution must win the step")
	}

	// The second driver still acts on its pre-advance read.
	f.store.mu.Lock()
	f.store.stale = &snapshot
	f.store.staleReads = 1
	f.store.mu.Unlock()

	second, err := f.svc.ExecuteStep(context.Background(), seq.ID)
	if err != nil {
		t.Fatalf("losing the step race must not error: %v", err)
	}
	if !second.Skipped {
		t.Error("second execution of the same step must be skipped")
	}

	if len(f.sender.messages) != 1 {
		t.Errorf("expected exactly one message sent, got %d", len(f.sender.messages))
	}
	if len(f.store.logs) != 1 {
		t.Errorf("expected exactly one log row, got %d", len(f.store.logs))
	}
	current, _ := f.store.GetByID(context.Background(), seq.ID)
	if current.StepIndex != 1 {
		t.Errorf("expected step_index 1 after one win, got %d", current.StepIndex)
	}
}
