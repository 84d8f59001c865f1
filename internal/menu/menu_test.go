package menu

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testCatalog() *Catalog {
	return NewCatalog([]Item{
		{ID: "a", Name: "Garden Salad", Category: "appetizers", Description: "greens and citrus",
			Price: 9, Dietary: []string{"vegan", "gluten-free"}, Available: true},
		{ID: "b", Name: "Cheese Ravioli", Category: "mains", Description: "ricotta filled pasta",
			Price: 18, Dietary: []string{"vegetarian"}, Allergens: []string{"dairy", "gluten"}, Available: true},
		{ID: "c", Name: "Peanut Noodles", Category: "mains", Description: "sesame peanut sauce",
			Price: 15, Dietary: []string{"vegan"}, Allergens: []string{"peanuts", "gluten"}, Available: true},
		{ID: "d", Name: "Lobster Roll", Category: "mains", Description: "butter poached",
			Price: 28, Allergens: []string{"shellfish", "gluten", "dairy"}, Available: false},
	})
}

func names(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestSearchByQuery(t *testing.T) {
	got := testCatalog().Search(Filter{Query: "pasta"})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("Search(pasta) = %v, want [b]", names(got))
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	got := testCatalog().Search(Filter{Query: "RAVIOLI", Category: "MAINS"})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("Search = %v, want [b]", names(got))
	}
}

func TestSearchCombinesConstraints(t *testing.T) {
	got := testCatalog().Search(Filter{
		Category:         "mains",
		MaxPrice:         20,
		Dietary:          []string{"vegan"},
		ExcludeAllergens: []string{"peanuts"},
	})
	if len(got) != 0 {
		t.Fatalf("Search = %v, want none", names(got))
	}

	got = testCatalog().Search(Filter{Category: "mains", MaxPrice: 20, Dietary: []string{"vegan"}})
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("Search = %v, want [c]", names(got))
	}
}

func TestSearchAvailableOnlyHidesEightySixedDishes(t *testing.T) {
	got := testCatalog().Search(Filter{Category: "mains", AvailableOnly: true})
	for _, it := range got {
		if it.ID == "d" {
			t.Fatal("unavailable dish returned from available-only search")
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d mains, want 2", len(got))
	}
}

func TestRecommendExcludesAllergensAndUnavailable(t *testing.T) {
	got := testCatalog().Recommend(Preferences{Allergens: []string{"peanuts", "shellfish"}}, 10)
	for _, it := range got {
		if it.ID == "c" || it.ID == "d" {
			t.Fatalf("recommended excluded dish %s", it.ID)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(got))
	}
}

func TestRecommendPrefersMatchingCategoryThenPrice(t *testing.T) {
	got := testCatalog().Recommend(Preferences{Categories: []string{"mains"}}, 2)
	if len(got) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(got))
	}
	// Both mains beat the appetizer on category; the cheaper main first.
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("Recommend = %v, want [c b]", names(got))
	}
}

func TestRecommendLimitDefaultsToThree(t *testing.T) {
	got := testCatalog().Recommend(Preferences{}, 0)
	if len(got) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(got))
	}
}

func TestLoadFile(t *testing.T) {
	items := testCatalog().Items()
	raw, err := json.Marshal(items)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "menu.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := len(c.Items()); got != len(items) {
		t.Fatalf("loaded %d items, want %d", got, len(items))
	}
	if cats := c.Categories(); len(cats) != 2 {
		t.Fatalf("Categories = %v, want 2 entries", cats)
	}
}

func TestLoadFileRejectsEmptyMenu(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for empty menu file")
	}
}

func TestDefaultCatalogIsServable(t *testing.T) {
	c := DefaultCatalog()
	if len(c.Items()) == 0 {
		t.Fatal("default catalog is empty")
	}
	vegan := c.Search(Filter{Dietary: []string{"vegan"}, AvailableOnly: true})
	if len(vegan) == 0 {
		t.Fatal("default catalog has no vegan dishes")
	}
}
