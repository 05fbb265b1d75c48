package models

// Product is a catalog entry
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Weight      string `json:"weight"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// LineItem converts the product into a cart line with the given quantity
func (p Product) LineItem(quantity int) LineItem {
	return LineItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Weight:   p.Weight,
		Image:    p.Image,
		Quantity: quantity,
	}
}
