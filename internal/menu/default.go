package menu

// DefaultCatalog is the built-in sample menu, used when no menu file is
// configured.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Item{
		{
			ID: "app-1", Name: "Burrata with Heirloom Tomatoes", Category: "appetizers",
			Description: "Creamy burrata, basil oil, grilled sourdough.",
			Price:       14, Dietary: []string{"vegetarian"}, Allergens: []string{"dairy", "gluten"},
			Available: true, PrepMinutes: 10,
		},
		{
			ID: "app-2", Name: "Crispy Calamari", Category: "appetizers",
			Description: "Lightly fried, lemon aioli.",
			Price:       13, Allergens: []string{"shellfish", "gluten", "egg"},
			Available: true, PrepMinutes: 12,
		},
		{
			ID: "app-3", Name: "Roasted Beet Salad", Category: "appetizers",
			Description: "Beets, arugula, candied walnuts, citrus vinaigrette.",
			Price:       12, Dietary: []string{"vegan", "gluten-free"}, Allergens: []string{"tree-nuts"},
			Available: true, PrepMinutes: 8,
		},
		{
			ID: "main-1", Name: "Tagliatelle Bolognese", Category: "mains",
			Description: "Slow-braised beef ragu, fresh pasta, parmesan.",
			Price:       24, Allergens: []string{"gluten", "dairy", "egg"},
			Available: true, PrepMinutes: 18,
		},
		{
			ID: "main-2", Name: "Pan-Seared Salmon", Category: "mains",
			Description: "Herb butter, charred broccolini, fingerling potatoes.",
			Price:       29, Dietary: []string{"gluten-free"}, Allergens: []string{"fish", "dairy"},
			Available: true, PrepMinutes: 20,
		},
		{
			ID: "main-3", Name: "Wild Mushroom Risotto", Category: "mains",
			Description: "Arborio rice, porcini, truffle oil.",
			Price:       22, Dietary: []string{"vegetarian", "gluten-free"}, Allergens: []string{"dairy"},
			Available: true, PrepMinutes: 25,
		},
		{
			ID: "main-4", Name: "Grilled Vegetable Plate", Category: "mains",
			Description: "Seasonal vegetables, romesco, quinoa.",
			Price:       19, Dietary: []string{"vegan", "gluten-free"}, Allergens: []string{"tree-nuts"},
			Available: true, PrepMinutes: 15,
		},
		{
			ID: "main-5", Name: "Dry-Aged Ribeye", Category: "mains",
			Description: "12 oz, bone marrow butter, hand-cut fries.",
			Price:       42, Dietary: []string{"gluten-free"}, Allergens: []string{"dairy"},
			Available: true, PrepMinutes: 30,
		},
		{
			ID: "dessert-1", Name: "Tiramisu", Category: "desserts",
			Description: "Espresso-soaked ladyfingers, mascarpone.",
			Price:       10, Dietary: []string{"vegetarian"}, Allergens: []string{"dairy", "gluten", "egg"},
			Available: true, PrepMinutes: 5,
		},
		{
			ID: "dessert-2", Name: "Sorbet Trio", Category: "desserts",
			Description: "Three seasonal fruit sorbets.",
			Price:       8, Dietary: []string{"vegan", "gluten-free"},
			Available: true, PrepMinutes: 5,
		},
		{
			ID: "drink-1", Name: "House Lemonade", Category: "drinks",
			Description: "Fresh-squeezed, mint.",
			Price:       5, Dietary: []string{"vegan", "gluten-free"},
			Available: true, PrepMinutes: 3,
		},
		{
			ID: "drink-2", Name: "Espresso", Category: "drinks",
			Price:     4, Dietary: []string{"vegan", "gluten-free"},
			Available: true, PrepMinutes: 3,
		},
	})
}
