// Package menu holds the dish catalog the voicebot answers menu
// questions from. The catalog is static per process: loaded once at
// startup from a JSON file or the built-in sample menu.
package menu

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Item is one dish on the menu.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Dietary     []string `json:"dietary,omitempty"`
	Allergens   []string `json:"allergens,omitempty"`
	Available   bool     `json:"available"`
	PrepMinutes int      `json:"prep_minutes,omitempty"`
}

// HasDietary reports whether the dish carries the dietary tag.
func (i Item) HasDietary(tag string) bool {
	return containsFold(i.Dietary, tag)
}

// HasAllergen reports whether the dish contains the allergen.
func (i Item) HasAllergen(a string) bool {
	return containsFold(i.Allergens, a)
}

// Catalog is an immutable set of menu items.
type Catalog struct {
	items []Item
}

func NewCatalog(items []Item) *Catalog {
	cp := make([]Item, len(items))
	copy(cp, items)
	return &Catalog{items: cp}
}

// LoadFile reads a JSON array of items.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("menu: read %s: %w", path, err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("menu: parse %s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("menu: %s contains no items", path)
	}
	return NewCatalog(items), nil
}

// Items returns every dish, available or not.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Categories lists the distinct categories in menu order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range c.items {
		if !seen[it.Category] {
			seen[it.Category] = true
			out = append(out, it.Category)
		}
	}
	return out
}

// Filter narrows a menu search. Zero values mean "no constraint".
type Filter struct {
	Query            string
	Category         string
	MaxPrice         float64
	Dietary          []string
	ExcludeAllergens []string
	AvailableOnly    bool
}

// Search returns the dishes matching every set constraint, in menu order.
func (c *Catalog) Search(f Filter) []Item {
	var out []Item
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, it := range c.items {
		if f.AvailableOnly && !it.Available {
			continue
		}
		if f.Category != "" && !strings.EqualFold(it.Category, f.Category) {
			continue
		}
		if f.MaxPrice > 0 && it.Price > f.MaxPrice {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Name), q) &&
			!strings.Contains(strings.ToLower(it.Description), q) {
			continue
		}
		if !hasAllDietary(it, f.Dietary) {
			continue
		}
		if hasAnyAllergen(it, f.ExcludeAllergens) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Preferences drive a recommendation: allergens are hard exclusions,
// everything else raises a dish's score.
type Preferences struct {
	Dietary    []string
	Allergens  []string
	MaxPrice   float64
	Categories []string
}

type scored struct {
	item  Item
	score int
}

// Recommend ranks available dishes against the preferences and returns
// at most limit of them, best first. Ties break toward the cheaper dish.
func (c *Catalog) Recommend(p Preferences, limit int) []Item {
	if limit <= 0 {
		limit = 3
	}
	var ranked []scored
	for _, it := range c.items {
		if !it.Available || hasAnyAllergen(it, p.Allergens) {
			continue
		}
		if len(p.Dietary) > 0 && !hasAllDietary(it, p.Dietary) {
			continue
		}
		score := 0
		if p.MaxPrice > 0 && it.Price <= p.MaxPrice {
			score += 2
		}
		if containsFold(p.Categories, it.Category) {
			score += 3
		}
		ranked = append(ranked, scored{item: it, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.Price < ranked[j].item.Price
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Item, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.item)
	}
	return out
}

func hasAllDietary(it Item, tags []string) bool {
	for _, tag := range tags {
		if !it.HasDietary(tag) {
			return false
		}
	}
	return true
}

func hasAnyAllergen(it Item, allergens []string) bool {
	for _, a := range allergens {
		if it.HasAllergen(a) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
