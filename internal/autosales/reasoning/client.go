// Package reasoning calls an OpenAI-compatible chat completion service to
// extract purchase signals from a lead's raw text. The client makes a single
// attempt per call and returns an error on any failure; the caller decides
// whether to fall back to local heuristics.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"petshop_backend/internal/autosales/heuristics"
	"petshop_backend/platform/logger"
)

const defaultTimeout = 10 * time.Second

// Config holds the connection settings for the reasoning service.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Result is the structured analysis returned by the reasoning service,
// validated against the local vocabulary before it reaches the caller.
type Result struct {
	Intent        heuristics.Level
	Urgency       heuristics.Level
	Color         *string
	Sex           *string
	City          *string
	Timeframe     *string
	BudgetCents   *int64
	EmotionalTone string
	Score         int
	Summary       string
	Alerts        []string
	Matches       []RecommendedMatch
}

// RecommendedMatch is a free-form item suggestion from the model. Advisory
// only; the deterministic matcher remains the source of truth for ranking.
type RecommendedMatch struct {
	Name   string
	Reason string
}

// Input carries the lead fields sent to the reasoning service.
type Input struct {
	Name        string
	Message     string
	Preferences string
	Referrer    string
}

// Client talks to the chat completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a reasoning client. Model and timeout fall back to service
// defaults when unset.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "kimi-k2-turbo-preview"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

const systemPrompt = `Você analisa mensagens de interessados em filhotes de cachorro e devolve APENAS um JSON com os campos:
{"intent":"high|medium|low","urgency":"high|medium|low","color":string|null,"sex":"macho|femea"|null,"city":string|null,"timeframe":string|null,"budget_reais":number|null,"emotional_tone":"entusiasmado|indeciso|cetico|neutro","score":0-100,"summary":string,"alerts":[string],"matches":[{"name":string,"reason":string}]}
Não escreva nada além do JSON.`

// Caps applied to free-text fields from the model.
const (
	maxSummaryLen = 500
	maxAlertLen   = 200
	maxAlerts     = 10
	maxMatches    = 5
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error any `json:"error"`
}

type analysisPayload struct {
	Intent        string   `json:"intent"`
	Urgency       string   `json:"urgency"`
	Color         *string  `json:"color"`
	Sex           *string  `json:"sex"`
	City          *string  `json:"city"`
	Timeframe     *string  `json:"timeframe"`
	BudgetReais   *float64 `json:"budget_reais"`
	EmotionalTone string   `json:"emotional_tone"`
	Score         int      `json:"score"`
	Summary       string   `json:"summary"`
	Alerts        []string `json:"alerts"`
	Matches       []struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	} `json:"matches"`
}

// Analyze sends the lead text for analysis. One attempt, no retries; any
// transport, status, decoding or vocabulary error is returned to the caller.
func (c *Client) Analyze(ctx context.Context, in Input) (*Result, error) {
	userContent := fmt.Sprintf("Nome: %s\nPreferências: %s\nMensagem: %s\nOrigem: %s",
		in.Name, in.Preferences, in.Message, in.Referrer)

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.1,
	}

	jsonBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("reasoning request failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("reasoning request error", "status", resp.StatusCode)
		return nil, fmt.Errorf("reasoning status %d", resp.StatusCode)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Error("reasoning decode failed", "error", err)
		return nil, fmt.Errorf("decode reasoning response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("reasoning api error: %v", payload.Error)
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("reasoning api error: empty choices")
	}

	return parseAnalysis(payload.Choices[0].Message.Content)
}

// parseAnalysis validates the model output against the local vocabulary.
// Anything outside it is an error, never silently coerced.
func parseAnalysis(content string) (*Result, error) {
	content = stripCodeFence(content)

	var raw analysisPayload
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}

	intent, err := parseLevel(raw.Intent)
	if err != nil {
		return nil, fmt.Errorf("intent: %w", err)
	}
	urgency, err := parseLevel(raw.Urgency)
	if err != nil {
		return nil, fmt.Errorf("urgency: %w", err)
	}

	tone := raw.EmotionalTone
	switch tone {
	case heuristics.ToneEnthusiastic, heuristics.ToneUndecided, heuristics.ToneSkeptical, heuristics.ToneNeutral:
	case "":
		tone = heuristics.ToneNeutral
	default:
		return nil, fmt.Errorf("unknown emotional tone %q", tone)
	}

	if raw.Sex != nil {
		normalized := heuristics.Normalize(*raw.Sex)
		if normalized != "macho" && normalized != "femea" {
			return nil, fmt.Errorf("unknown sex %q", *raw.Sex)
		}
		raw.Sex = &normalized
	}

	result := &Result{
		Intent:        intent,
		Urgency:       urgency,
		Color:         normalizePtr(raw.Color),
		Sex:           raw.Sex,
		City:          normalizePtr(raw.City),
		Timeframe:     normalizePtr(raw.Timeframe),
		EmotionalTone: tone,
		Score:         heuristics.ClampScore(raw.Score),
		Summary:       truncate(strings.TrimSpace(raw.Summary), maxSummaryLen),
	}

	if raw.BudgetReais != nil && *raw.BudgetReais > 0 {
		cents := int64(*raw.BudgetReais * 100)
		result.BudgetCents = &cents
	}

	for _, alert := range raw.Alerts {
		alert = strings.TrimSpace(alert)
		if alert == "" {
			continue
		}
		result.Alerts = append(result.Alerts, truncate(alert, maxAlertLen))
		if len(result.Alerts) == maxAlerts {
			break
		}
	}

	for _, m := range raw.Matches {
		if strings.TrimSpace(m.Name) == "" {
			continue
		}
		result.Matches = append(result.Matches, RecommendedMatch{
			Name:   truncate(strings.TrimSpace(m.Name), maxAlertLen),
			Reason: truncate(strings.TrimSpace(m.Reason), maxAlertLen),
		})
		if len(result.Matches) == maxMatches {
			break
		}
	}

	return result, nil
}

// truncate caps s at max bytes without splitting a rune, so accented
// Portuguese text stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func parseLevel(raw string) (heuristics.Level, error) {
	switch heuristics.Level(strings.ToLower(strings.TrimSpace(raw))) {
	case heuristics.LevelHigh:
		return heuristics.LevelHigh, nil
	case heuristics.LevelMedium:
		return heuristics.LevelMedium, nil
	case heuristics.LevelLow:
		return heuristics.LevelLow, nil
	default:
		return "", fmt.Errorf("unknown level %q", raw)
	}
}

func normalizePtr(p *string) *string {
	if p == nil {
		return nil
	}
	normalized := heuristics.Normalize(*p)
	if normalized == "" {
		return nil
	}
	return &normalized
}

// stripCodeFence removes a surrounding markdown fence when the model wraps
// its JSON in one despite instructions.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
