package models

import (
	"math"
	"time"
)

// MaxLineQuantity caps the quantity held on a single cart line
const MaxLineQuantity = 999

// LineItem is one product/quantity pairing held in a cart
type LineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Weight   string `json:"weight"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
}

// Subtotal returns price times quantity for the line, saturating at math.MaxInt64
func (li LineItem) Subtotal() int64 {
	if li.Price <= 0 || li.Quantity <= 0 {
		return 0
	}

	if li.Price > math.MaxInt64/int64(li.Quantity) {
		return math.MaxInt64
	}

	return li.Price * int64(li.Quantity)
}

func clampQuantity(q int) int {
	if q > MaxLineQuantity {
		return MaxLineQuantity
	}
	return q
}

// Cart holds the line items of one shopping session in insertion order.
// All mutation goes through its methods; quantity is always >= 1 for present items.
type Cart struct {
	ID        string     `json:"id"`
	Items     []LineItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewCart creates an empty cart for the given session id
func NewCart(id string) *Cart {
	return &Cart{
		ID:        id,
		Items:     []LineItem{},
		UpdatedAt: GetCurrentTime(),
	}
}

func (c *Cart) indexOf(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// AddItem merges the item into the cart. A repeated id increases the existing
// quantity instead of adding a second row. Line quantities never exceed MaxLineQuantity.
func (c *Cart) AddItem(item LineItem) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	item.Quantity = clampQuantity(item.Quantity)

	if i := c.indexOf(item.ID); i >= 0 {
		c.Items[i].Quantity = clampQuantity(clampQuantity(c.Items[i].Quantity) + item.Quantity)
	} else {
		c.Items = append(c.Items, item)
	}

	c.touch()
}

// RemoveItem deletes the item with the given id; absent ids are ignored
func (c *Cart) RemoveItem(id string) {
	i := c.indexOf(id)

	if i < 0 {
		return
	}

	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.touch()
}

// UpdateQuantity sets the quantity of an item, removing it when quantity <= 0.
// Values above MaxLineQuantity are clamped.
func (c *Cart) UpdateQuantity(id string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(id)
		return
	}

	if i := c.indexOf(id); i >= 0 {
		c.Items[i].Quantity = clampQuantity(quantity)
		c.touch()
	}
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.Items = []LineItem{}
	c.touch()
}

// Total is the sum of price times quantity over all items, saturating at math.MaxInt64
func (c *Cart) Total() int64 {
	return SumSubtotals(c.Items)
}

// SumSubtotals adds the line subtotals without wrapping past math.MaxInt64
func SumSubtotals(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		sub := item.Subtotal()
		if total > math.MaxInt64-sub {
			return math.MaxInt64
		}
		total += sub
	}
	return total
}

// ItemCount is the sum of quantities, shown on the header badge
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no items
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Snapshot returns a copy of the items that shares no memory with the cart
func (c *Cart) Snapshot() []LineItem {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return items
}

// Clone returns a deep copy of the cart
func (c *Cart) Clone() *Cart {
	return &Cart{
		ID:        c.ID,
		Items:     c.Snapshot(),
		UpdatedAt: c.UpdatedAt,
	}
}

func (c *Cart) touch() {
	c.UpdatedAt = GetCurrentTime()
}

// CartView is the read model returned to clients
type CartView struct {
	ID        string     `json:"id"`
	Items     []LineItem `json:"items"`
	Total     int64      `json:"total"`
	ItemCount int        `json:"item_count"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// View builds the client-facing representation with derived totals
func (c *Cart) View() CartView {
	return CartView{
		ID:        c.ID,
		Items:     c.Snapshot(),
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
		UpdatedAt: c.UpdatedAt,
	}
}
