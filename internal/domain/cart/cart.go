// Package cart defines the shopping cart model: lines keyed by a
// deterministic line ID, derived totals, and the merge algorithm used
// when an anonymous cart meets a signed-in user's persisted cart.
package cart

import (
	"github.com/shopspring/decimal"
)

// lineIDSeparator joins the base product ID and the variant ID. The
// separator may not appear in product or variant IDs.
const lineIDSeparator = "::"

// Line is one purchasable entry in a cart. Quantity is always >= 1; a
// line that would drop below 1 is removed instead.
type Line struct {
	ID          string
	DisplayName string
	UnitPrice   decimal.Decimal
	Quantity    int
	ImageRef    string
}

// Subtotal returns Quantity x UnitPrice for this line.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineID derives the cart line identifier for a product and an optional
// variant. The same product with different variants occupies different
// lines; repeated adds of the same (product, variant) pair collapse into
// one line.
func LineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + lineIDSeparator + variantID
}

// Cart is an ordered collection of lines keyed by line ID. Insertion
// order is preserved for display only; it carries no merge semantics.
// The zero value is an empty cart ready for use.
type Cart struct {
	lines []Line
}

// New builds a cart from the given lines. Lines with duplicate IDs or a
// quantity below 1 are dropped, preserving the cart invariants.
func New(lines []Line) Cart {
	c := Cart{lines: make([]Line, 0, len(lines))}
	for _, l := range lines {
		if l.Quantity < 1 || c.index(l.ID) >= 0 {
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c
}

// Add inserts the line with quantity 1, or increments the existing
// line's quantity by 1 when the ID is already present. The incoming
// line's own Quantity field is ignored. Add never fails; there is no
// capacity limit for a small retail cart.
func (c *Cart) Add(l Line) {
	if i := c.index(l.ID); i >= 0 {
		c.lines[i].Quantity++
		return
	}
	l.Quantity = 1
	c.lines = append(c.lines, l)
}

// Remove deletes the line with the given ID. Removing an absent line is
// a no-op, not an error.
func (c *Cart) Remove(lineID string) {
	if i := c.index(lineID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

// SetQuantity replaces the line's quantity. A quantity below 1 removes
// the line. Setting quantity on an absent line is a no-op.
func (c *Cart) SetQuantity(lineID string, quantity int) {
	if quantity < 1 {
		c.Remove(lineID)
		return
	}
	if i := c.index(lineID); i >= 0 {
		c.lines[i].Quantity = quantity
	}
}

// Clear removes every line.
func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a copy of the cart lines in insertion order.
func (c Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Get returns the line with the given ID, if present.
func (c Cart) Get(lineID string) (Line, bool) {
	if i := c.index(lineID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Len returns the number of distinct lines.
func (c Cart) Len() int {
	return len(c.lines)
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.lines) == 0
}

// TotalItems returns the sum of all line quantities. It is always
// computed from the lines, never cached.
func (c Cart) TotalItems() int {
	total := 0
	for _, l := range c.lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice returns the sum of quantity x unit price over all lines.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c Cart) index(lineID string) int {
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			return i
		}
	}
	return -1
}
