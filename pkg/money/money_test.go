package money

import "testing"

func TestParseAmountDecimalSeparators(t *testing.T) {
	if got := ParseAmount("12.90"); got != 12.90 {
		t.Errorf("ParseAmount(\"12.90\") = %v, want 12.90", got)
	}

	if got := ParseAmount("12,90"); got != 12.90 {
		t.Errorf("ParseAmount(\"12,90\") = %v, want 12.90", got)
	}
}

func TestParseAmountStripsNoise(t *testing.T) {
	if got := ParseAmount("1 299,00 €"); got != 1299.00 {
		t.Errorf("ParseAmount with currency noise = %v, want 1299.00", got)
	}

	if got := ParseAmount("EUR 45.50"); got != 45.50 {
		t.Errorf("ParseAmount with prefix = %v, want 45.50", got)
	}
}

func TestParseAmountGroupingSeparator(t *testing.T) {
	// Last separator is the decimal point, earlier ones are grouping.
	if got := ParseAmount("1.299,50"); got != 1299.50 {
		t.Errorf("ParseAmount(\"1.299,50\") = %v, want 1299.50", got)
	}
}

func TestParseAmountGarbage(t *testing.T) {
	if got := ParseAmount("not a price"); got != 0 {
		t.Errorf("ParseAmount garbage = %v, want 0", got)
	}

	if got := ParseAmount(""); got != 0 {
		t.Errorf("ParseAmount empty = %v, want 0", got)
	}
}

func TestMinorMajorConversion(t *testing.T) {
	if got := MinorFromMajor(12.90); got != 1290 {
		t.Errorf("MinorFromMajor(12.90) = %d, want 1290", got)
	}

	if got := MajorFromMinor(1290); got != 12.90 {
		t.Errorf("MajorFromMinor(1290) = %v, want 12.90", got)
	}

	if got := MinorFromMajor(4.95); got != 495 {
		t.Errorf("MinorFromMajor(4.95) = %d, want 495", got)
	}
}

func TestRoundHalfUp(t *testing.T) {
	if got := RoundHalfUp(2.5, 0); got != 3 {
		t.Errorf("RoundHalfUp(2.5, 0) = %v, want 3", got)
	}

	if got := RoundHalfUp(-2.5, 0); got != -3 {
		t.Errorf("RoundHalfUp(-2.5, 0) = %v, want -3", got)
	}

	if got := RoundHalfUp(2.346, 2); got != 2.35 {
		t.Errorf("RoundHalfUp(2.346, 2) = %v, want 2.35", got)
	}
}
