package gifts

import (
	"reflect"
	"testing"
)

func TestDeriveZeroSubtotal(t *testing.T) {
	if got := TableClassic.Derive(0); got != nil {
		t.Errorf("Derive(0) = %v, want nil", got)
	}

	if got := TableClassic.Derive(-10); got != nil {
		t.Errorf("Derive(-10) = %v, want nil", got)
	}
}

func TestDeriveBelowFirstTier(t *testing.T) {
	if got := TableClassic.Derive(49.99); got != nil {
		t.Errorf("Derive(49.99) = %v, want nil", got)
	}
}

func TestDeriveHighestTierWins(t *testing.T) {
	// 200 meets all three thresholds; only the 160 tier applies.
	got := TableClassic.Derive(200)
	if len(got) != 2 {
		t.Fatalf("Derive(200) returned %d gifts, want 2", len(got))
	}
	if got[0].ID != "gift-sample-20g" {
		t.Errorf("Top tier gift = %s, want gift-sample-20g", got[0].ID)
	}
	for _, g := range got {
		if g.ID == "gift-sample-2g" || g.ID == "gift-sample-10g" {
			t.Errorf("Lower tier gift %s included; tiers must not be cumulative", g.ID)
		}
	}
}

func TestDeriveTierBoundaries(t *testing.T) {
	got := TableClassic.Derive(50)
	if len(got) != 1 || got[0].ID != "gift-sample-2g" {
		t.Errorf("Derive(50) = %v, want the 2g sample", got)
	}

	got = TableClassic.Derive(80)
	if len(got) != 1 || got[0].ID != "gift-sample-10g" {
		t.Errorf("Derive(80) = %v, want the 10g selection", got)
	}
}

func TestDeriveIsPure(t *testing.T) {
	a := TableRevised.Derive(95.50)
	b := TableRevised.Derive(95.50)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Derive not deterministic: %v vs %v", a, b)
	}

	// Mutating a returned slice must not affect later calls.
	a[0].Quantity = 99
	c := TableRevised.Derive(95.50)
	if c[0].Quantity == 99 {
		t.Error("Derive leaked internal state through returned slice")
	}
}

func TestTableByName(t *testing.T) {
	if got := TableByName("revised"); got.Name != "revised" {
		t.Errorf("TableByName(revised) = %s", got.Name)
	}
	if got := TableByName("unknown"); got.Name != "classic" {
		t.Errorf("TableByName(unknown) = %s, want classic fallback", got.Name)
	}
}

func TestCatalogResolve(t *testing.T) {
	item, ok := DefaultCatalog.Resolve("gift-sample-10g", 3)
	if !ok {
		t.Fatal("Resolve failed for known gift id")
	}
	if item.Quantity != 3 {
		t.Errorf("Resolve quantity = %d, want 3", item.Quantity)
	}

	if _, ok := DefaultCatalog.Resolve("gift-unknown", 1); ok {
		t.Error("Resolve succeeded for unknown gift id")
	}
}
