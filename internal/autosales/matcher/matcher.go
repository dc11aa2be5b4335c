// Package matcher ranks available puppies against a lead's inferred
// preferences. The ranking is deterministic and every entry carries a
// human-readable reason, because the outreach messages quote it.
package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"petshop_backend/internal/autosales/heuristics"
	"petshop_backend/internal/autosales/scorer"
	"petshop_backend/internal/inventory/repository"
)

const (
	weightColor    = 30
	weightSex      = 20
	weightCity     = 15
	weightBudget   = 15
	weightUpsell   = 5
	weightBaseline = 10

	shortlistSize = 3
	candidateCap  = 50
)

// Match is one ranked candidate with the criteria that matched it.
type Match struct {
	Puppy  repository.Puppy
	Score  int
	Reason string
	Upsell bool
}

// Result is the ranked shortlist. Best is nil when no puppy is available.
type Result struct {
	Shortlist []Match
	Best      *Match
}

type inventoryLister interface {
	ListAvailable(ctx context.Context, limit int) ([]repository.Puppy, error)
}

// Service ranks inventory for lead profiles.
type Service struct {
	inventory inventoryLister
}

func NewService(inventory inventoryLister) *Service {
	return &Service{inventory: inventory}
}

// MatchFor ranks the available puppies for the profile and returns the top
// candidates, best first.
func (s *Service) MatchFor(ctx context.Context, profile scorer.Profile) (Result, error) {
	puppies, err := s.inventory.ListAvailable(ctx, candidateCap)
	if err != nil {
		return Result{}, err
	}

	matches := Rank(profile, puppies)
	if len(matches) > shortlistSize {
		matches = matches[:shortlistSize]
	}

	result := Result{Shortlist: matches}
	if len(matches) > 0 {
		result.Best = &matches[0]
	}
	return result, nil
}

// Rank scores every candidate and sorts descending. Ties break by lower
// price so the ranking stays stable across runs.
func Rank(profile scorer.Profile, puppies []repository.Puppy) []Match {
	matches := make([]Match, 0, len(puppies))
	for _, puppy := range puppies {
		if puppy.Status != repository.StatusAvailable {
			continue
		}
		matches = append(matches, score(profile, puppy))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Puppy.PriceCents < matches[j].Puppy.PriceCents
	})

	return matches
}

func score(profile scorer.Profile, puppy repository.Puppy) Match {
	var total int
	var reasons []string
	var upsell bool

	if profile.Color != nil && heuristics.Normalize(puppy.Color) == heuristics.Normalize(*profile.Color) {
		total += weightColor
		reasons = append(reasons, "cor desejada")
	}
	if profile.Sex != nil && heuristics.Normalize(puppy.Sex) == heuristics.Normalize(*profile.Sex) {
		total += weightSex
		reasons = append(reasons, "sexo desejado")
	}
	if profile.City != nil && puppy.City != nil &&
		heuristics.Normalize(*puppy.City) == heuristics.Normalize(*profile.City) {
		total += weightCity
		reasons = append(reasons, "mesma cidade")
	}

	if profile.BudgetCents != nil {
		budget := *profile.BudgetCents
		switch {
		case withinBudget(puppy.PriceCents, budget):
			total += weightBudget
			reasons = append(reasons, "dentro do orçamento")
		case puppy.PriceCents > budget:
			total += weightUpsell
			upsell = true
			reasons = append(reasons, "oportunidade de upgrade")
		}
	}

	if total == 0 {
		total = weightBaseline
		reasons = append(reasons, "disponível para pronta entrega")
	}

	return Match{
		Puppy:  puppy,
		Score:  total,
		Reason: strings.Join(reasons, ", "),
		Upsell: upsell,
	}
}

// withinBudget accepts prices up to 10% above the stated budget.
func withinBudget(priceCents, budgetCents int64) bool {
	return priceCents <= budgetCents+budgetCents/10
}

// BestID is a convenience for callers that only persist the id.
func (r Result) BestID() *uuid.UUID {
	if r.Best == nil {
		return nil
	}
	id := r.Best.Puppy.ID
	return &id
}
