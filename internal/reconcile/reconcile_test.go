package reconcile

import (
	"testing"

	"github.com/crewledger/crewledger/internal/model"
)

func activeProjects(names ...string) []*model.Project {
	out := make([]*model.Project, len(names))
	for i, n := range names {
		out[i] = &model.Project{ID: n + "-id", Name: n, Active: true}
	}
	return out
}

func activeCategories(names ...string) []*model.Category {
	out := make([]*model.Category, len(names))
	for i, n := range names {
		out[i] = &model.Category{ID: n + "-id", Name: n, Active: true}
	}
	return out
}

func TestMatchProjectTypoAboveThreshold(t *testing.T) {
	projects := activeProjects("Sparrow", "Lakeview", "Route 27")
	m := MatchProject("Sparow", projects, 70)
	if m.Project == nil || m.Project.Name != "Sparrow" {
		t.Fatalf("want Sparrow, got %+v", m)
	}
	if m.Score < 70 {
		t.Fatalf("score below threshold: %d", m.Score)
	}
	if m.Caption != "Sparow" {
		t.Fatalf("raw caption not retained: %q", m.Caption)
	}
}

func TestMatchProjectExactIsCaseInsensitive(t *testing.T) {
	m := MatchProject("sparrow", activeProjects("Sparrow"), 70)
	if m.Project == nil || m.Score != 100 {
		t.Fatalf("exact match failed: %+v", m)
	}
}

func TestMatchProjectNoCandidateAboveThreshold(t *testing.T) {
	m := MatchProject("Zzqx", activeProjects("Sparrow", "Lakeview"), 70)
	if m.Project != nil {
		t.Fatalf("low-confidence caption resolved to %+v", m.Project)
	}
}

func TestMatchProjectEmptyCaption(t *testing.T) {
	m := MatchProject("  ", activeProjects("Sparrow"), 70)
	if m.Project != nil || m.Caption != "" {
		t.Fatalf("empty caption should stay unresolved: %+v", m)
	}
}

func TestResolveCategorySuggestionWinsOverVendor(t *testing.T) {
	cats := activeCategories("Fuel", "Materials", "Other")
	// Vendor matches no keyword, suggestion still resolves.
	c := ResolveCategory("Fuel", "Bob's Odds and Ends", cats, 60)
	if c == nil || c.Name != "Fuel" {
		t.Fatalf("suggestion cascade: got %+v", c)
	}
}

func TestResolveCategoryFuzzySuggestion(t *testing.T) {
	cats := activeCategories("Materials", "Other")
	c := ResolveCategory("Matereals", "", cats, 60)
	if c == nil || c.Name != "Materials" {
		t.Fatalf("fuzzy suggestion: got %+v", c)
	}
}

func TestResolveCategoryVendorHeuristic(t *testing.T) {
	cats := activeCategories("Fuel", "Other")
	c := ResolveCategory("", "RaceTrac #2214", cats, 60)
	if c == nil || c.Name != "Fuel" {
		t.Fatalf("vendor heuristic: got %+v", c)
	}
}

func TestResolveCategoryFallback(t *testing.T) {
	cats := activeCategories("Fuel", "Other")
	c := ResolveCategory("", "Joe's Widgets", cats, 60)
	if c == nil || c.Name != "Other" {
		t.Fatalf("fallback: got %+v", c)
	}
}

func TestResolveCategoryNoFallbackConfigured(t *testing.T) {
	cats := activeCategories("Fuel")
	if c := ResolveCategory("", "Joe's Widgets", cats, 60); c != nil {
		t.Fatalf("expected nil without fallback category, got %+v", c)
	}
}

func TestSimilarityBounds(t *testing.T) {
	if s := Similarity("", ""); s != 100 {
		t.Fatalf("empty vs empty: %d", s)
	}
	if s := Similarity("abc", "abc"); s != 100 {
		t.Fatalf("identical: %d", s)
	}
	if s := Similarity("abc", "xyz"); s != 0 {
		t.Fatalf("disjoint: %d", s)
	}
}
