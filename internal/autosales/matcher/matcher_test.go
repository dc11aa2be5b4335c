package matcher

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/scorer"
	"petshop_backend/internal/inventory/repository"
)

func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func puppy(color, sex string, price int64) repository.Puppy {
	return repository.Puppy{
		ID:         uuid.New(),
		Name:       "Thor",
		Breed:      "spitz alemão",
		Color:      color,
		Sex:        sex,
		PriceCents: price,
		Status:     repository.StatusAvailable,
	}
}

type fakeInventory struct {
	puppies []repository.Puppy
	err     error
}

func (f *fakeInventory) ListAvailable(ctx context.Context, limit int) ([]repository.Puppy, error) {
	return f.puppies, f.err
}

func TestRankWeights(t *testing.T) {
	profile := scorer.Profile{
		Color:       strPtr("branco"),
		Sex:         strPtr("femea"),
		City:        strPtr("sao paulo"),
		BudgetCents: int64Ptr(300000),
	}

	full := puppy("branco", "femea", 290000)
	full.City = strPtr("São Paulo")

	matches := Rank(profile, []repository.Puppy{full})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Score != 30+20+15+15 {
		t.Errorf("expected full score 80, got %d", matches[0].Score)
	}
}

func TestRankBudgetTolerance(t *testing.T) {
	profile := scorer.Profile{BudgetCents: int64Ptr(300000)}

	within := puppy("preto", "macho", 330000)  // exactly 10% over
	over := puppy("caramelo", "macho", 331000) // beyond tolerance

	matches := Rank(profile, []repository.Puppy{within, over})
	if matches[0].Score != 15 {
		t.Errorf("price at 10%% over budget should count as within, got score %d", matches[0].Score)
	}
	if matches[1].Score != 5 || !matches[1].Upsell {
		t.Errorf("price beyond tolerance should score 5 as upsell, got %d upsell=%v", matches[1].Score, matches[1].Upsell)
	}
}

func TestRankBaselineWhenNothingMatches(t *testing.T) {
	profile := scorer.Profile{Color: strPtr("branco")}
	candidate := puppy("preto", "macho", 250000)

	matches := Rank(profile, []repository.Puppy{candidate})
	if matches[0].Score != 10 {
		t.Errorf("expected baseline score 10, got %d", matches[0].Score)
	}
	if matches[0].Reason == "" {
		t.Error("baseline match must still carry a reason")
	}
}

func TestRankSkipsUnavailable(t *testing.T) {
	reserved := puppy("branco", "femea", 200000)
	reserved.Status = "reserved"

	matches := Rank(scorer.Profile{}, []repository.Puppy{reserved})
	if len(matches) != 0 {
		t.Fatalf("unavailable puppies must never be ranked, got %d", len(matches))
	}
}

func TestRankOrderingAndTieBreak(t *testing.T) {
	profile := scorer.Profile{Color: strPtr("branco")}

	cheapWhite := puppy("branco", "macho", 200000)
	pricierWhite := puppy("branco", "femea", 280000)
	black := puppy("preto", "macho", 150000)

	matches := Rank(profile, []repository.Puppy{pricierWhite, black, cheapWhite})
	if matches[0].Puppy.ID != cheapWhite.ID {
		t.Error("tie on score should prefer the cheaper puppy")
	}
	if matches[2].Puppy.ID != black.ID {
		t.Error("non-matching puppy should rank last")
	}
}

func TestMatchForShortlist(t *testing.T) {
	inv := &fakeInventory{puppies: []repository.Puppy{
		puppy("branco", "macho", 200000),
		puppy("branco", "femea", 220000),
		puppy("preto", "macho", 180000),
		puppy("caramelo", "femea", 260000),
		puppy("cinza", "macho", 240000),
	}}
	svc := NewService(inv)

	result, err := svc.MatchFor(context.Background(), scorer.Profile{Color: strPtr("branco")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Shortlist) != 3 {
		t.Fatalf("expected shortlist of 3, got %d", len(result.Shortlist))
	}
	if result.Best == nil || result.Best.Puppy.ID != result.Shortlist[0].Puppy.ID {
		t.Error("best must be the first shortlist entry")
	}
	for _, m := range result.Shortlist {
		if m.Reason == "" {
			t.Errorf("shortlist entry for %s has empty reason", m.Puppy.ID)
		}
		if m.Score == 0 {
			t.Errorf("shortlist entry for %s has zero score", m.Puppy.ID)
		}
	}
}

func TestMatchForEmptyInventory(t *testing.T) {
	svc := NewService(&fakeInventory{})

	result, err := svc.MatchFor(context.Background(), scorer.Profile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Best != nil || len(result.Shortlist) != 0 {
		t.Error("empty inventory must yield no matches")
	}
	if result.BestID() != nil {
		t.Error("BestID must be nil with no matches")
	}
}
