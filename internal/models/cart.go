package models

// CartLine is one product in a shopping cart
type CartLine struct {
	ProductID string   `json:"product_id"`
	Quantity  int64    `json:"quantity"`
	Points    int      `json:"points"`
	Category  Category `json:"category"`
}

// Cart is the in-progress selection of one shopper, addressed by its key
type Cart struct {
	Key   string     `json:"key"`
	Lines []CartLine `json:"lines"`
}

// Add merges line into the cart, summing quantities for the same product
func (c *Cart) Add(line CartLine) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			return
		}
	}
	c.Lines = append(c.Lines, line)
}

// Remove drops the line for productID, if any
func (c *Cart) Remove(productID string) {
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	c.Lines = kept
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// TotalPoints sums points times quantity over every line
func (c *Cart) TotalPoints() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Points * int(line.Quantity)
	}
	return total
}

// PointsByCategory is the MyPlate breakdown of the cart
func (c *Cart) PointsByCategory() map[Category]int {
	breakdown := make(map[Category]int, len(Categories))
	for _, category := range Categories {
		breakdown[category] = 0
	}
	for _, line := range c.Lines {
		breakdown[line.Category] += line.Points * int(line.Quantity)
	}
	return breakdown
}

// CartSummary is what the shop shows next to the cart
type CartSummary struct {
	Cart            Cart             `json:"cart"`
	PointsUsed      int              `json:"points_used"`
	PointsRemaining int              `json:"points_remaining"`
	PointsPerVisit  int              `json:"points_per_visit"`
	MyPlatePoints   map[Category]int `json:"myplate_points"`
}
