// Package heuristics derives intent, urgency and preference signals from a
// lead's raw text. The analysis is pure: no I/O, no clock, same input always
// produces the same output. It is the always-available fallback behind the
// external reasoning service.
package heuristics

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Level classifies intent, urgency and risk on a three-point scale.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Emotional tone vocabulary. The strategy builder maps these to message tones.
const (
	ToneEnthusiastic = "entusiasmado"
	ToneUndecided    = "indeciso"
	ToneSkeptical    = "cetico"
	ToneNeutral      = "neutro"
)

// Input carries the lead fields the heuristics inspect.
type Input struct {
	Name        string
	Message     string
	Preferences string
	Referrer    string
}

// Signals is the deterministic analysis result.
type Signals struct {
	Intent        Level
	Urgency       Level
	Color         *string
	Sex           *string
	City          *string
	Timeframe     *string
	BudgetCents   *int64
	EmotionalTone string
	Score         int
}

var (
	intentHighKeywords = []string{
		"comprar", "quero fechar", "fechar negocio", "preco", "quanto custa",
		"disponivel", "quero hoje", "quero levar", "posso buscar", "formas de pagamento",
	}
	intentMediumKeywords = []string{
		"interessad", "gostei", "informac", "saber mais", "me conta", "detalhes",
	}

	urgencyHighKeywords = []string{
		"hoje", "agora", "urgente", "imediat", "ainda hoje", "o quanto antes",
	}
	urgencyMediumKeywords = []string{
		"amanha", "essa semana", "esta semana", "logo", "em breve",
	}

	enthusiasticKeywords = []string{"adorei", "amei", "lindo", "linda", "perfeito", "apaixonad", "sonho"}
	undecidedKeywords    = []string{"talvez", "nao sei", "pensando", "duvida", "ainda estou vendo", "depende"}
	skepticalKeywords    = []string{"golpe", "medo", "desconfiad", "verdade mesmo", "confiavel", "seguro mesmo"}

	colorKeywords = map[string]string{
		"branco":    "branco",
		"branca":    "branco",
		"preto":     "preto",
		"preta":     "preto",
		"caramelo":  "caramelo",
		"dourado":   "dourado",
		"dourada":   "dourado",
		"marrom":    "marrom",
		"chocolate": "chocolate",
		"cinza":     "cinza",
		"bege":      "bege",
	}

	sexKeywords = map[string]string{
		"macho":      "macho",
		"machinho":   "macho",
		"femea":      "femea",
		"femeazinha": "femea",
		"menina":     "femea",
		"menino":     "macho",
	}

	timeframeKeywords = []string{
		"hoje", "amanha", "essa semana", "esta semana", "esse mes", "este mes", "proximo mes",
	}

	cityRegex = regexp.MustCompile(`(?:moro em|sou de|aqui de|aqui em|cidade de)\s+([a-z][a-z ]{2,30})`)

	// Budget forms: "r$ 3.000", "r$3000,00", "ate 3000", "3 mil", "3000 reais".
	budgetCurrencyRegex = regexp.MustCompile(`r\$\s*([0-9][0-9.]*)(?:,[0-9]{2})?`)
	budgetReaisRegex    = regexp.MustCompile(`([0-9][0-9.]*)\s*reais`)
	budgetMilRegex      = regexp.MustCompile(`([0-9]{1,3})\s*mil`)
	budgetAteRegex      = regexp.MustCompile(`ate\s+([0-9][0-9.]*)`)
)

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases the text and strips diacritics so keyword tables can
// stay accent-free.
func Normalize(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	stripped, _, err := transform.String(deaccent, lowered)
	if err != nil {
		return lowered
	}
	return stripped
}

// Analyze derives signals from the lead's combined text. It is total: any
// input, including empty, yields a valid low-intent result.
func Analyze(in Input) Signals {
	text := Normalize(strings.Join([]string{in.Name, in.Preferences, in.Message, in.Referrer}, " "))

	intent := classifyIntent(text)
	urgency := classifyUrgency(text)

	signals := Signals{
		Intent:        intent,
		Urgency:       urgency,
		Color:         matchKeywordMap(text, colorKeywords),
		Sex:           matchKeywordMap(text, sexKeywords),
		City:          matchCity(text),
		Timeframe:     matchFirst(text, timeframeKeywords),
		BudgetCents:   matchBudget(text),
		EmotionalTone: classifyTone(text),
		Score:         scoreFor(intent, urgency),
	}

	return signals
}

func classifyIntent(text string) Level {
	if containsAny(text, intentHighKeywords) {
		return LevelHigh
	}
	if containsAny(text, intentMediumKeywords) {
		return LevelMedium
	}
	return LevelLow
}

func classifyUrgency(text string) Level {
	if containsAny(text, urgencyHighKeywords) {
		return LevelHigh
	}
	if containsAny(text, urgencyMediumKeywords) {
		return LevelMedium
	}
	return LevelLow
}

func classifyTone(text string) string {
	switch {
	case containsAny(text, skepticalKeywords):
		return ToneSkeptical
	case containsAny(text, enthusiasticKeywords):
		return ToneEnthusiastic
	case containsAny(text, undecidedKeywords):
		return ToneUndecided
	default:
		return ToneNeutral
	}
}

// scoreFor computes the heuristic score: a base by intent tier plus an
// urgency bonus, clamped to [0,100].
func scoreFor(intent, urgency Level) int {
	score := 30
	switch intent {
	case LevelMedium:
		score = 50
	case LevelHigh:
		score = 70
	}

	switch urgency {
	case LevelMedium:
		score += 10
	case LevelHigh:
		score += 20
	}

	return ClampScore(score)
}

// ClampScore bounds a score to the [0,100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func matchFirst(text string, keywords []string) *string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			match := kw
			return &match
		}
	}
	return nil
}

func matchKeywordMap(text string, table map[string]string) *string {
	// Deterministic order: check the longest keywords first so "machinho"
	// wins over "macho" regardless of map iteration order.
	var best *string
	bestLen := 0
	for kw, canonical := range table {
		if len(kw) > bestLen && strings.Contains(text, kw) {
			value := canonical
			best = &value
			bestLen = len(kw)
		}
	}
	return best
}

func matchCity(text string) *string {
	groups := cityRegex.FindStringSubmatch(text)
	if len(groups) < 2 {
		return nil
	}

	city := strings.TrimSpace(groups[1])
	// Keep at most three words; the open capture otherwise swallows the
	// rest of the sentence.
	words := strings.Fields(city)
	if len(words) > 3 {
		words = words[:3]
	}
	city = strings.Join(words, " ")
	if city == "" {
		return nil
	}
	return &city
}

func matchBudget(text string) *int64 {
	for _, re := range []*regexp.Regexp{budgetCurrencyRegex, budgetReaisRegex, budgetAteRegex} {
		if groups := re.FindStringSubmatch(text); len(groups) >= 2 {
			if cents := parseReais(groups[1]); cents != nil {
				return cents
			}
		}
	}

	if groups := budgetMilRegex.FindStringSubmatch(text); len(groups) >= 2 {
		if n, err := strconv.ParseInt(groups[1], 10, 64); err == nil && n > 0 {
			cents := n * 1000 * 100
			return &cents
		}
	}

	return nil
}

// parseReais converts "3.000" or "3000" to centavos. Values below 100 reais
// are ignored as noise (ages, counts, house numbers).
func parseReais(raw string) *int64 {
	digits := strings.ReplaceAll(raw, ".", "")
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 100 {
		return nil
	}
	cents := n * 100
	return &cents
}
