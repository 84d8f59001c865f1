package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voicebot-platform/internal/menu"
)

// NewMenuToolset registers the menu question-answering tools. Both only
// read the catalog, so retries are free.
func NewMenuToolset(reg *Registry, catalog *menu.Catalog) error {
	for _, t := range []Tool{
		&searchMenuTool{catalog: catalog},
		&recommendDishesTool{catalog: catalog},
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type searchMenuTool struct {
	catalog *menu.Catalog
}

func (t *searchMenuTool) Name() string { return "search_menu" }
func (t *searchMenuTool) Description() string {
	return "Search the menu by dish name, category, price, dietary needs or allergens to avoid."
}
func (t *searchMenuTool) Class() Class { return ClassSafe }
func (t *searchMenuTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"category": {"type": "string"},
			"max_price": {"type": "number", "minimum": 0},
			"dietary": {"type": "array", "items": {"type": "string"}},
			"exclude_allergens": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`)
}

func (t *searchMenuTool) Invoke(_ context.Context, _ CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		Query            string   `json:"query"`
		Category         string   `json:"category"`
		MaxPrice         float64  `json:"max_price"`
		Dietary          []string `json:"dietary"`
		ExcludeAllergens []string `json:"exclude_allergens"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	items := t.catalog.Search(menu.Filter{
		Query:            in.Query,
		Category:         in.Category,
		MaxPrice:         in.MaxPrice,
		Dietary:          in.Dietary,
		ExcludeAllergens: in.ExcludeAllergens,
		AvailableOnly:    true,
	})
	if len(items) == 0 {
		return Result{Message: "No dishes on the menu match that."}, nil
	}
	b, _ := json.Marshal(items)
	return Result{
		Message: fmt.Sprintf("%d dish(es) match: %s.", len(items), dishNames(items, 3)),
		Data:    b,
	}, nil
}

type recommendDishesTool struct {
	catalog *menu.Catalog
}

func (t *recommendDishesTool) Name() string { return "recommend_dishes" }
func (t *recommendDishesTool) Description() string {
	return "Suggest dishes for the caller given dietary needs, allergies, budget or favorite categories."
}
func (t *recommendDishesTool) Class() Class { return ClassSafe }
func (t *recommendDishesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"dietary": {"type": "array", "items": {"type": "string"}},
			"allergens": {"type": "array", "items": {"type": "string"}},
			"max_price": {"type": "number", "minimum": 0},
			"categories": {"type": "array", "items": {"type": "string"}},
			"limit": {"type": "integer", "minimum": 1, "maximum": 10}
		},
		"additionalProperties": false
	}`)
}

func (t *recommendDishesTool) Invoke(_ context.Context, _ CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		Dietary    []string `json:"dietary"`
		Allergens  []string `json:"allergens"`
		MaxPrice   float64  `json:"max_price"`
		Categories []string `json:"categories"`
		Limit      int      `json:"limit"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	items := t.catalog.Recommend(menu.Preferences{
		Dietary:    in.Dietary,
		Allergens:  in.Allergens,
		MaxPrice:   in.MaxPrice,
		Categories: in.Categories,
	}, in.Limit)
	if len(items) == 0 {
		return Result{Message: "Nothing on the menu fits those preferences."}, nil
	}
	b, _ := json.Marshal(items)
	return Result{
		Message: fmt.Sprintf("I'd suggest %s.", dishNames(items, len(items))),
		Data:    b,
	}, nil
}

func dishNames(items []menu.Item, max int) string {
	if max > len(items) {
		max = len(items)
	}
	names := make([]string, 0, max)
	for _, it := range items[:max] {
		names = append(names, it.Name)
	}
	return strings.Join(names, ", ")
}
