// Package gifts derives promotional gift line items from a cart subtotal.
//
// Derivation is pure and deterministic so it is safe to call
// speculatively and discard: the same subtotal always yields the same
// gift set. Tiers are evaluated highest-first and are NOT cumulative;
// the highest threshold met determines the entire gift set.
package gifts

import (
	"sort"
	"strings"
)

// IDPrefix marks synthetic gift identifiers.
const IDPrefix = "gift-"

// IsGiftID reports whether an identifier denotes a system-derived gift.
func IsGiftID(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}

// Item is a system-derived promotional cart line. Synthetic IDs carry
// the "gift-" prefix and are never valid catalog identifiers.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Weight   float64 `json:"weight,omitempty"` // grams
}

// Tier maps a subtotal threshold (major units) to a gift bundle.
type Tier struct {
	Threshold float64
	Gifts     []Item
}

// Table is an ordered set of tiers for one promotion variant.
type Table struct {
	Name  string
	Tiers []Tier
}

// Two divergent tier tables exist for the same promotional concept.
// They are deliberately kept side by side; the authoritative one is
// designated by system settings, never merged or guessed here.
var (
	// TableClassic is the 2g/10g/20g composition with a free-shipping
	// narrative attached to the top tier.
	TableClassic = Table{
		Name: "classic",
		Tiers: []Tier{
			{Threshold: 50, Gifts: []Item{
				{ID: "gift-sample-2g", Name: "Échantillon découverte 2g", Quantity: 1, Weight: 2},
			}},
			{Threshold: 80, Gifts: []Item{
				{ID: "gift-sample-10g", Name: "Sélection premium 10g", Quantity: 1, Weight: 10},
			}},
			{Threshold: 160, Gifts: []Item{
				{ID: "gift-sample-20g", Name: "Coffret dégustation 20g", Quantity: 1, Weight: 20},
				{ID: "gift-free-shipping", Name: "Livraison offerte", Quantity: 1},
			}},
		},
	}

	// TableRevised is the 3g/10g/20g composition with a different gift
	// make-up at each tier.
	TableRevised = Table{
		Name: "revised",
		Tiers: []Tier{
			{Threshold: 50, Gifts: []Item{
				{ID: "gift-sample-3g", Name: "Échantillon découverte 3g", Quantity: 1, Weight: 3},
			}},
			{Threshold: 80, Gifts: []Item{
				{ID: "gift-sample-10g", Name: "Sélection premium 10g", Quantity: 1, Weight: 10},
				{ID: "gift-sticker-pack", Name: "Pack stickers", Quantity: 1},
			}},
			{Threshold: 160, Gifts: []Item{
				{ID: "gift-sample-20g", Name: "Coffret dégustation 20g", Quantity: 2, Weight: 20},
			}},
		},
	}
)

// TableByName resolves a configured table variant; unknown names fall
// back to the classic table.
func TableByName(name string) Table {
	if name == TableRevised.Name {
		return TableRevised
	}
	return TableClassic
}

// Derive returns the gift set for the given net subtotal (major units).
// A subtotal of exactly 0 (or less) yields no gifts. Only the highest
// tier met contributes; lower tiers are not additionally included.
func (t Table) Derive(subtotal float64) []Item {
	if subtotal <= 0 {
		return nil
	}

	tiers := make([]Tier, len(t.Tiers))
	copy(tiers, t.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold > tiers[j].Threshold })

	for _, tier := range tiers {
		if subtotal >= tier.Threshold {
			out := make([]Item, len(tier.Gifts))
			copy(out, tier.Gifts)
			return out
		}
	}
	return nil
}

// Catalog maps server-provided gift identifiers to full item
// definitions. Server gift sets are applied wholesale through this
// mapping; unknown identifiers are skipped by the caller.
type Catalog map[string]Item

// DefaultCatalog covers the gift identifiers used by both tier tables.
var DefaultCatalog = Catalog{
	"gift-sample-2g":     {ID: "gift-sample-2g", Name: "Échantillon découverte 2g", Quantity: 1, Weight: 2},
	"gift-sample-3g":     {ID: "gift-sample-3g", Name: "Échantillon découverte 3g", Quantity: 1, Weight: 3},
	"gift-sample-10g":    {ID: "gift-sample-10g", Name: "Sélection premium 10g", Quantity: 1, Weight: 10},
	"gift-sample-20g":    {ID: "gift-sample-20g", Name: "Coffret dégustation 20g", Quantity: 1, Weight: 20},
	"gift-sticker-pack":  {ID: "gift-sticker-pack", Name: "Pack stickers", Quantity: 1},
	"gift-free-shipping": {ID: "gift-free-shipping", Name: "Livraison offerte", Quantity: 1},
}

// Resolve maps a server gift reference (id + multiplier quantity) to an
// item definition. The boolean reports whether the id is known.
func (c Catalog) Resolve(id string, quantity int) (Item, bool) {
	def, ok := c[id]
	if !ok {
		return Item{}, false
	}
	if quantity > 0 {
		def.Quantity = quantity
	}
	return def, true
}
