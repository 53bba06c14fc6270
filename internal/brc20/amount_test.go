package brc20

import (
	"math/big"
	"testing"
)

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return v
}

func TestNumberStringWithFullDecimals(t *testing.T) {
	tests := []struct {
		value    string
		decimals uint8
		want     string
	}{
		{"200000000000000000", 18, "0.200000000000000000"},
		{"21000000000000000000000000", 8, "21000000.00000000"},
		{"1234567890000000000000000", 2, "1234567.89"},
		{"0", 3, "0.000"},
		{"0", 0, "0"},
	}

	for _, tt := range tests {
		got := NumberStringWithFullDecimals(bigFromString(t, tt.value), tt.decimals)
		if got != tt.want {
			t.Errorf("NumberStringWithFullDecimals(%s, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
		}
	}
}

func strPtr(s string) *string { return &s }

func TestGetAmountValue(t *testing.T) {
	got, err := GetAmountValue(strPtr("1.5"), 8, nil, false)
	if err != nil {
		t.Fatalf("GetAmountValue(1.5) error = %v", err)
	}
	want := bigFromString(t, "1500000000000000000")
	if got.Cmp(want) != 0 {
		t.Errorf("GetAmountValue(1.5, 8) = %s, want %s", got, want)
	}
}

func TestGetAmountValueZeroDisallowed(t *testing.T) {
	if _, err := GetAmountValue(strPtr("0"), 8, nil, false); err == nil {
		t.Fatal("expected error for zero amount with allowZero=false")
	}
}

func TestGetAmountValueZeroAllowed(t *testing.T) {
	got, err := GetAmountValue(strPtr("0"), 8, nil, true)
	if err != nil {
		t.Fatalf("GetAmountValue(0, allowZero) error = %v", err)
	}
	if got.Sign() != 0 {
		t.Errorf("GetAmountValue(0) = %s, want 0", got)
	}
}

func TestGetAmountValueLeadingDotRejected(t *testing.T) {
	if _, err := GetAmountValue(strPtr(".5"), 1, nil, true); err == nil {
		t.Fatal("expected error for leading-dot amount")
	}
}

func TestGetAmountValueAbsentReturnsDefault(t *testing.T) {
	def := big.NewInt(42)
	got, err := GetAmountValue(nil, 8, def, true)
	if err != nil {
		t.Fatalf("GetAmountValue(nil) error = %v", err)
	}
	if got != def {
		t.Errorf("GetAmountValue(nil) = %v, want the default pointer", got)
	}
}

func TestGetAmountValueTooManyFractionalDigits(t *testing.T) {
	if _, err := GetAmountValue(strPtr("1.123456789"), 8, nil, true); err == nil {
		t.Fatal("expected error for amount with more fractional digits than decimals allows")
	}
}

func TestGetAmountValueExceedsMax(t *testing.T) {
	maxU64 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	tooBig := new(big.Int).Add(maxU64, big.NewInt(1)).String()
	if _, err := GetAmountValue(strPtr(tooBig), 0, nil, true); err == nil {
		t.Fatal("expected error for amount exceeding MAX_AMOUNT")
	}
}

func TestGetAmountValueNonNumeric(t *testing.T) {
	tests := []string{"abc", "1.2.3", "1.", "", "-5"}
	for _, s := range tests {
		if _, err := GetAmountValue(strPtr(s), 8, nil, true); err == nil {
			t.Errorf("GetAmountValue(%q) expected error, got nil", s)
		}
	}
}

func TestGetDecimalsValue(t *testing.T) {
	got, err := GetDecimalsValue(nil)
	if err != nil || got != MaxDecimals {
		t.Errorf("GetDecimalsValue(nil) = %d, %v, want %d, nil", got, err, MaxDecimals)
	}

	got, err = GetDecimalsValue(strPtr("8"))
	if err != nil || got != 8 {
		t.Errorf("GetDecimalsValue(\"8\") = %d, %v, want 8, nil", got, err)
	}

	if _, err := GetDecimalsValue(strPtr("19")); err == nil {
		t.Error("GetDecimalsValue(\"19\") expected error")
	}

	if _, err := GetDecimalsValue(strPtr("-1")); err == nil {
		t.Error("GetDecimalsValue(\"-1\") expected error")
	}

	if _, err := GetDecimalsValue(strPtr("abc")); err == nil {
		t.Error("GetDecimalsValue(\"abc\") expected error")
	}
}
