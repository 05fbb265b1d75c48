// Package catalog holds the fixed product list sold in the shop.
package catalog

import (
	"github.com/vaidashi/chickiemart-api/internal/models"
)

var products = []models.Product{
	{ID: "1", Name: "Chicken Breast", Price: 2500, Weight: "500g", Image: "/fresh-chicken-breast.jpg", Description: "Lean and tender chicken breast, perfect for grilling and frying"},
	{ID: "2", Name: "Chicken Thighs", Price: 2000, Weight: "500g", Image: "/chicken-thighs.jpg", Description: "Juicy and flavorful chicken thighs ideal for stews and soups"},
	{ID: "3", Name: "Whole Chicken", Price: 4500, Weight: "1.5kg", Image: "/whole-fresh-chicken.jpg", Description: "Complete whole chicken perfect for family meals and roasting"},
	{ID: "4", Name: "Chicken Wings", Price: 1800, Weight: "500g", Image: "/crispy-chicken-wings.png", Description: "Crispy wings perfect for frying, baking, or grilling"},
	{ID: "5", Name: "Chicken Drumsticks", Price: 1600, Weight: "500g", Image: "/grilled-chicken-drumsticks.png", Description: "Tender drumsticks great for any recipe and cooking method"},
	{ID: "6", Name: "Mixed Cuts", Price: 3000, Weight: "1kg", Image: "/mixed-chicken-cuts.png", Description: "Assorted cuts for variety in your meals and recipes"},
	{ID: "7", Name: "Chicken Gizzard", Price: 1200, Weight: "500g", Image: "/chicken-gizzard.jpg", Description: "Fresh gizzard for traditional and special recipes"},
	{ID: "8", Name: "Chicken Liver", Price: 1400, Weight: "500g", Image: "/chicken-liver.png", Description: "Premium liver for nutritious and delicious meals"},
	{ID: "9", Name: "Boneless Chicken", Price: 3200, Weight: "1kg", Image: "/boneless-chicken.jpg", Description: "Convenient boneless cuts for quick meal preparation"},
}

// Catalog serves product lookups
type Catalog struct {
	products []models.Product
	byID     map[string]models.Product
}

// New builds a catalog from the given products, keeping their order
func New(items []models.Product) *Catalog {
	c := &Catalog{
		products: make([]models.Product, len(items)),
		byID:     make(map[string]models.Product, len(items)),
	}

	copy(c.products, items)

	for _, p := range items {
		c.byID[p.ID] = p
	}

	return c
}

// Default returns the shop's standard product list
func Default() *Catalog {
	return New(products)
}

// List returns all products in display order
func (c *Catalog) List() []models.Product {
	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Get looks a product up by id
func (c *Catalog) Get(id string) (models.Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}
