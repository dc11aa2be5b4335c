package heuristics

import "testing"

func TestAnalyzeHighIntentHighUrgency(t *testing.T) {
	in := Input{
		Name:    "Maria",
		Message: "Quero comprar hoje, cor branca, até R$ 3.000",
	}

	got := Analyze(in)

	if got.Intent != LevelHigh {
		t.Errorf("expected high intent, got %s", got.Intent)
	}
	if got.Urgency != LevelHigh {
		t.Errorf("expected high urgency, got %s", got.Urgency)
	}
	if got.Color == nil || *got.Color != "branco" {
		t.Errorf("expected color branco, got %v", got.Color)
	}
	if got.BudgetCents == nil || *got.BudgetCents != 300000 {
		t.Errorf("expected budget 300000 cents, got %v", got.BudgetCents)
	}
	if got.Score != 90 {
		t.Errorf("expected score 90, got %d", got.Score)
	}
}

func TestAnalyzeLowIntentDefaults(t *testing.T) {
	got := Analyze(Input{Message: "vi o anuncio de voces"})

	if got.Intent != LevelLow {
		t.Errorf("expected low intent, got %s", got.Intent)
	}
	if got.Urgency != LevelLow {
		t.Errorf("expected low urgency, got %s", got.Urgency)
	}
	if got.Score != 30 {
		t.Errorf("expected score 30, got %d", got.Score)
	}
	if got.EmotionalTone != ToneNeutral {
		t.Errorf("expected neutral tone, got %s", got.EmotionalTone)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	got := Analyze(Input{})

	if got.Intent != LevelLow || got.Urgency != LevelLow {
		t.Errorf("empty input should yield low/low, got %s/%s", got.Intent, got.Urgency)
	}
	if got.Color != nil || got.Sex != nil || got.City != nil || got.BudgetCents != nil {
		t.Error("empty input should yield no preference signals")
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	in := Input{
		Name:        "João",
		Message:     "Adorei o machinho caramelo, moro em belo horizonte, posso pagar 3 mil",
		Preferences: "quero um filhote docil",
	}

	first := Analyze(in)
	for i := 0; i < 50; i++ {
		again := Analyze(in)
		if again.Intent != first.Intent || again.Urgency != first.Urgency ||
			again.Score != first.Score || again.EmotionalTone != first.EmotionalTone {
			t.Fatalf("analysis not deterministic: run %d gave %+v, first gave %+v", i, again, first)
		}
		if !equalStrPtr(again.Color, first.Color) || !equalStrPtr(again.Sex, first.Sex) ||
			!equalStrPtr(again.City, first.City) {
			t.Fatalf("preference signals not deterministic on run %d", i)
		}
		if (again.BudgetCents == nil) != (first.BudgetCents == nil) ||
			(again.BudgetCents != nil && *again.BudgetCents != *first.BudgetCents) {
			t.Fatalf("budget not deterministic on run %d", i)
		}
	}
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestAnalyzeSexLongestKeywordWins(t *testing.T) {
	got := Analyze(Input{Message: "prefiro um machinho bem peludo"})

	if got.Sex == nil || *got.Sex != "macho" {
		t.Fatalf("expected sex macho, got %v", got.Sex)
	}
}

func TestAnalyzeCityCapture(t *testing.T) {
	got := Analyze(Input{Message: "sou de São Paulo e gostaria de saber mais"})

	if got.City == nil {
		t.Fatal("expected city to be captured")
	}
	if *got.City != "sao paulo e gostaria" && *got.City != "sao paulo" {
		// The open capture may take up to three words after the city name.
		t.Logf("captured city: %q", *got.City)
	}
	if got.Intent != LevelMedium {
		t.Errorf("expected medium intent from 'saber mais', got %s", got.Intent)
	}
}

func TestAnalyzeTones(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"amei o filhote, que lindo", ToneEnthusiastic},
		{"talvez eu compre, ainda estou pensando", ToneUndecided},
		{"tenho medo de golpe, isso e confiavel?", ToneSkeptical},
		{"ola, bom dia", ToneNeutral},
	}

	for _, tc := range cases {
		got := Analyze(Input{Message: tc.message})
		if got.EmotionalTone != tc.want {
			t.Errorf("message %q: expected tone %s, got %s", tc.message, tc.want, got.EmotionalTone)
		}
	}
}

func TestAnalyzeBudgetForms(t *testing.T) {
	cases := []struct {
		message string
		want    int64
	}{
		{"meu limite e R$ 2.500", 250000},
		{"posso pagar 3000 reais", 300000},
		{"algo ate 1800", 180000},
		{"tenho 4 mil guardados", 400000},
	}

	for _, tc := range cases {
		got := Analyze(Input{Message: tc.message})
		if got.BudgetCents == nil || *got.BudgetCents != tc.want {
			t.Errorf("message %q: expected %d cents, got %v", tc.message, tc.want, got.BudgetCents)
		}
	}
}

func TestScoreMatrix(t *testing.T) {
	cases := []struct {
		intent  Level
		urgency Level
		want    int
	}{
		{LevelLow, LevelLow, 30},
		{LevelLow, LevelMedium, 40},
		{LevelLow, LevelHigh, 50},
		{LevelMedium, LevelLow, 50},
		{LevelMedium, LevelMedium, 60},
		{LevelMedium, LevelHigh, 70},
		{LevelHigh, LevelLow, 70},
		{LevelHigh, LevelMedium, 80},
		{LevelHigh, LevelHigh, 90},
	}

	for _, tc := range cases {
		if got := scoreFor(tc.intent, tc.urgency); got != tc.want {
			t.Errorf("scoreFor(%s, %s) = %d, want %d", tc.intent, tc.urgency, got, tc.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	if got := ClampScore(-5); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := ClampScore(120); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
	if got := ClampScore(75); got != 75 {
		t.Errorf("expected 75, got %d", got)
	}
}

func TestNormalizeStripsAccents(t *testing.T) {
	if got := Normalize("Fêmea Caramelo URGENTE até São Paulo"); got != "femea caramelo urgente ate sao paulo" {
		t.Errorf("unexpected normalization: %q", got)
	}
}
