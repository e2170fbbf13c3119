package domain

import "strings"

// Categories is the fixed merchant category set accepted by the pipeline.
// grocery_net never appears on the entry form but is present in historical
// card exports.
var Categories = []string{
	"grocery_pos",
	"grocery_net",
	"shopping_pos",
	"food_dining",
	"health_fitness",
	"travel",
	"entertainment",
	"gas_transport",
	"misc_pos",
	"misc_net",
	"shopping_net",
	"home",
	"kids_pets",
	"personal_care",
}

var categorySet = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// NormalizeCategory lowercases and trims a category name and turns spaces
// into underscores, so "Grocery POS" and "grocery_pos" compare equal.
func NormalizeCategory(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(s, " ", "_")
}

// IsCategory reports whether name, once normalized, is a known category.
func IsCategory(name string) bool {
	return categorySet[NormalizeCategory(name)]
}
