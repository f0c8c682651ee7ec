package query

import (
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

func TestRerankByTermOverlap_PromotesExactMention(t *testing.T) {
	results := []*models.QueryResult{
		{DocumentID: "b", ChunkText: "propulsion systems overview", Score: 0.80},
		{DocumentID: "a", ChunkText: "the rocket engine test stand", Score: 0.78},
	}
	rerankByTermOverlap("rocket engine", results)

	if results[0].DocumentID != "a" {
		t.Errorf("top result = %s, want a", results[0].DocumentID)
	}
	// Two overlapping terms, one boost each.
	if got := results[0].Score; got < 0.8799 || got > 0.8801 {
		t.Errorf("boosted score = %f, want 0.88", got)
	}
	if got := results[1].Score; got != 0.80 {
		t.Errorf("unboosted score changed: %f", got)
	}
}

func TestRerankByTermOverlap_CaseInsensitive(t *testing.T) {
	results := []*models.QueryResult{
		{DocumentID: "a", ChunkText: "Rocket launch schedule", Score: 0.5},
	}
	rerankByTermOverlap("ROCKET", results)
	if got := results[0].Score; got < 0.5499 || got > 0.5501 {
		t.Errorf("score = %f, want 0.55", got)
	}
}

func TestRerankByTermOverlap_DuplicateQueryTermsBoostOnce(t *testing.T) {
	results := []*models.QueryResult{
		{DocumentID: "a", ChunkText: "rocket rocket rocket", Score: 0.5},
	}
	rerankByTermOverlap("rocket rocket", results)
	if got := results[0].Score; got < 0.5499 || got > 0.5501 {
		t.Errorf("score = %f, want single boost to 0.55", got)
	}
}

func TestRerankByTermOverlap_StableOnTies(t *testing.T) {
	results := []*models.QueryResult{
		{DocumentID: "a", ChunkText: "nothing relevant", Score: 0.6},
		{DocumentID: "b", ChunkText: "also nothing", Score: 0.6},
	}
	rerankByTermOverlap("unrelated", results)
	if results[0].DocumentID != "a" || results[1].DocumentID != "b" {
		t.Error("tie order should be preserved")
	}
}
