// Package brc20 implements the event engine: amount/decimal parsing,
// ticker admission, balance mutation, and the event stream and canonical
// string form that feed the commit hash chain.
package brc20

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ErrMalformedAmount is returned for amount/decimals strings that don't
// match the accepted grammar. Callers treat this as a malformed-input skip,
// not a fatal error.
var ErrMalformedAmount = errors.New("brc20: malformed amount")

// MaxDecimals is the ceiling on a ticker's decimals field.
const MaxDecimals = 18

// scale is 10^18, the fixed-point scale every amount is normalized to
// regardless of a ticker's own decimals.
var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// MaxAmount is (2^64-1)*10^18, the ceiling for any scaled amount — the
// largest max_supply a ticker may declare.
var MaxAmount = func() *big.Int {
	maxU64 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	return new(big.Int).Mul(maxU64, scale)
}()

var pow10 = func() [MaxDecimals + 1]*big.Int {
	var table [MaxDecimals + 1]*big.Int
	for i := range table {
		table[i] = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(i)), nil)
	}
	return table
}()

// NumberStringWithFullDecimals renders a fixed-point value (scaled to 10^18)
// using only `decimals` fractional digits, per §4.3.1's canonical amount
// encoding. It never errors: callers only ever pass validated values.
func NumberStringWithFullDecimals(value *big.Int, decimals uint8) string {
	digits := value.String()
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	if len(digits) < MaxDecimals+1 {
		digits = strings.Repeat("0", MaxDecimals+1-len(digits)) + digits
	}
	intPart := digits[:len(digits)-MaxDecimals]
	fracPart := digits[len(digits)-MaxDecimals:]

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(intPart)
	if decimals > 0 {
		sb.WriteByte('.')
		sb.WriteString(fracPart[:decimals])
	}
	return sb.String()
}

// GetDecimalsValue parses a ticker's "dec" field: a positive integer in
// 0..=18, defaulting to 18 when s is nil (absent).
func GetDecimalsValue(s *string) (uint8, error) {
	if s == nil {
		return MaxDecimals, nil
	}
	n, err := strconv.ParseUint(*s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals %q: %v", ErrMalformedAmount, *s, err)
	}
	if n > MaxDecimals {
		return 0, fmt.Errorf("%w: decimals %d exceeds max %d", ErrMalformedAmount, n, MaxDecimals)
	}
	return uint8(n), nil
}

// GetAmountValue parses an amount string, scaling it to the fixed 10^18
// representation regardless of the ticker's own decimals. decimals bounds
// how many fractional digits the string itself may carry (the ticker's
// declared precision); default is returned only when s is nil (the field
// was absent from the inscription payload), never on a parse failure.
func GetAmountValue(s *string, decimals uint8, def *big.Int, allowZero bool) (*big.Int, error) {
	if s == nil {
		return def, nil
	}
	str := *s

	intStr, fracStr, hasFrac := strings.Cut(str, ".")
	if intStr == "" {
		return nil, fmt.Errorf("%w: amount %q has no integer part", ErrMalformedAmount, str)
	}
	if !isAllDigits(intStr) {
		return nil, fmt.Errorf("%w: amount %q integer part not numeric", ErrMalformedAmount, str)
	}
	if hasFrac {
		if fracStr == "" || !isAllDigits(fracStr) {
			return nil, fmt.Errorf("%w: amount %q fractional part not numeric", ErrMalformedAmount, str)
		}
		if len(fracStr) > int(decimals) || len(fracStr) > MaxDecimals {
			return nil, fmt.Errorf("%w: amount %q has more fractional digits than allowed", ErrMalformedAmount, str)
		}
	}

	intVal, ok := new(big.Int).SetString(intStr, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q integer part invalid", ErrMalformedAmount, str)
	}

	scaled := new(big.Int).Mul(intVal, scale)
	if hasFrac && fracStr != "" {
		fracVal, ok := new(big.Int).SetString(fracStr, 10)
		if !ok {
			return nil, fmt.Errorf("%w: amount %q fractional part invalid", ErrMalformedAmount, str)
		}
		fracScaled := new(big.Int).Mul(fracVal, pow10[MaxDecimals-len(fracStr)])
		scaled.Add(scaled, fracScaled)
	}

	if scaled.Sign() == 0 && !allowZero {
		return nil, fmt.Errorf("%w: amount %q is zero, which is not allowed here", ErrMalformedAmount, str)
	}
	if scaled.Cmp(MaxAmount) > 0 {
		return nil, fmt.Errorf("%w: amount %q exceeds MAX_AMOUNT", ErrMalformedAmount, str)
	}

	return scaled, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
