package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"petshop_backend/internal/autosales/heuristics"
	"petshop_backend/platform/logger"
)

func chatReply(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}
	return New(cfg, logger.New("test")), srv
}

func TestAnalyzeParsesValidResponse(t *testing.T) {
	content := `{"intent":"high","urgency":"medium","color":"Branco","sex":"fêmea","city":"São Paulo","timeframe":"essa semana","budget_reais":3000,"emotional_tone":"entusiasmado","score":85,"summary":"Cliente quente"}`
	client, _ := newTestClient(t, chatReply(t, content))

	got, err := client.Analyze(context.Background(), Input{Name: "Maria", Message: "quero comprar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Intent != heuristics.LevelHigh {
		t.Errorf("expected high intent, got %s", got.Intent)
	}
	if got.Urgency != heuristics.LevelMedium {
		t.Errorf("expected medium urgency, got %s", got.Urgency)
	}
	if got.Color == nil || *got.Color != "branco" {
		t.Errorf("expected normalized color branco, got %v", got.Color)
	}
	if got.Sex == nil || *got.Sex != "femea" {
		t.Errorf("expected normalized sex femea, got %v", got.Sex)
	}
	if got.City == nil || *got.City != "sao paulo" {
		t.Errorf("expected normalized city, got %v", got.City)
	}
	if got.BudgetCents == nil || *got.BudgetCents != 300000 {
		t.Errorf("expected 300000 cents, got %v", got.BudgetCents)
	}
	if got.Score != 85 {
		t.Errorf("expected score 85, got %d", got.Score)
	}
	if got.Summary != "Cliente quente" {
		t.Errorf("unexpected summary %q", got.Summary)
	}
}

func TestAnalyzeStripsCodeFence(t *testing.T) {
	content := "```json\n{\"intent\":\"low\",\"urgency\":\"low\",\"emotional_tone\":\"neutro\",\"score\":25,\"summary\":\"frio\"}\n```"
	client, _ := newTestClient(t, chatReply(t, content))

	got, err := client.Analyze(context.Background(), Input{Message: "oi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != heuristics.LevelLow {
		t.Errorf("expected low intent, got %s", got.Intent)
	}
}

func TestAnalyzeRejectsUnknownIntent(t *testing.T) {
	content := `{"intent":"lukewarm","urgency":"low","emotional_tone":"neutro","score":40,"summary":""}`
	client, _ := newTestClient(t, chatReply(t, content))

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected an error for unknown intent level")
	}
}

func TestAnalyzeRejectsUnknownTone(t *testing.T) {
	content := `{"intent":"low","urgency":"low","emotional_tone":"furioso","score":40,"summary":""}`
	client, _ := newTestClient(t, chatReply(t, content))

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected an error for unknown tone")
	}
}

func TestAnalyzeClampsScore(t *testing.T) {
	content := `{"intent":"high","urgency":"high","emotional_tone":"neutro","score":140,"summary":""}`
	client, _ := newTestClient(t, chatReply(t, content))

	got, err := client.Analyze(context.Background(), Input{Message: "quero comprar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 100 {
		t.Errorf("expected score clamped to 100, got %d", got.Score)
	}
}

func TestAnalyzeCapsAlertsAndSummary(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	payload := map[string]any{
		"intent": "low", "urgency": "low", "emotional_tone": "neutro", "score": 30,
		"summary": string(long),
		"alerts":  []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11", ""},
	}
	raw, _ := json.Marshal(payload)
	client, _ := newTestClient(t, chatReply(t, string(raw)))

	got, err := client.Analyze(context.Background(), Input{Message: "oi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Summary) != 500 {
		t.Errorf("expected summary capped at 500 chars, got %d", len(got.Summary))
	}
	if len(got.Alerts) != 10 {
		t.Errorf("expected at most 10 alerts, got %d", len(got.Alerts))
	}
}

func TestAnalyzeTruncatesSummaryOnRuneBoundary(t *testing.T) {
	// One ASCII byte shifts every two-byte rune off the cap boundary, so a
	// byte-indexed cut would split a rune in half.
	payload := map[string]any{
		"intent": "low", "urgency": "low", "emotional_tone": "neutro", "score": 30,
		"summary": "x" + strings.Repeat("ã", 300),
	}
	raw, _ := json.Marshal(payload)
	client, _ := newTestClient(t, chatReply(t, string(raw)))

	got, err := client.Analyze(context.Background(), Input{Message: "oi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.ValidString(got.Summary) {
		t.Error("truncated summary must stay valid UTF-8")
	}
	if len(got.Summary) != 499 {
		t.Errorf("expected the cut on the rune boundary at 499 bytes, got %d", len(got.Summary))
	}
}

func TestAnalyzeErrorOnBadStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected an error on 500 response")
	}
}

func TestAnalyzeErrorOnEmptyChoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected an error on empty choices")
	}
}

func TestAnalyzeErrorOnMalformedJSON(t *testing.T) {
	client, _ := newTestClient(t, chatReply(t, "desculpe, não consegui analisar"))

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected an error on non-JSON content")
	}
}

func TestAnalyzeSingleAttempt(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: 20 * time.Millisecond}
	client := New(cfg, logger.New("test"))

	if _, err := client.Analyze(context.Background(), Input{Message: "oi"}); err == nil {
		t.Fatal("expected a timeout error")
	}
}
