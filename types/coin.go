package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Coin represents a native-currency amount in integer base units.
// It records what a credit purchase cost on chain. All arithmetic is
// integer-only, no floating point.
//
// Examples:
//   - A0GI(1500000000) = 1.5 A0GI (base units at 9 decimals)
//   - USDC(49000000)   = 49 USDC (base units at 6 decimals)
type Coin struct {
	Amount int64  `json:"amount"` // base units (smallest denomination)
	Denom  string `json:"denom"`  // lowercase denom: "a0gi", "eth", "usdc"
}

// Common denom constructors

// A0GI creates a Coin in the 0G native token (9-decimal base units).
func A0GI(units int64) Coin { return Coin{Amount: units, Denom: "a0gi"} }

// ETH creates a Coin in Ether, expressed in gwei.
func ETH(gwei int64) Coin { return Coin{Amount: gwei, Denom: "eth"} }

// USDC creates a Coin in USD Coin (6-decimal base units).
func USDC(units int64) Coin { return Coin{Amount: units, Denom: "usdc"} }

// ZeroCoin returns a zero Coin in the specified denom.
func ZeroCoin(denom string) Coin { return Coin{Amount: 0, Denom: strings.ToLower(denom)} }

// Arithmetic operations

// Add adds two Coin values. Panics if denoms don't match.
func (c Coin) Add(other Coin) Coin {
	c.assertSameDenom(other)
	return Coin{Amount: c.Amount + other.Amount, Denom: c.Denom}
}

// Subtract subtracts another Coin value. Panics if denoms don't match.
func (c Coin) Subtract(other Coin) Coin {
	c.assertSameDenom(other)
	return Coin{Amount: c.Amount - other.Amount, Denom: c.Denom}
}

// Multiply multiplies the Coin by a quantity.
func (c Coin) Multiply(qty int64) Coin {
	return Coin{Amount: c.Amount * qty, Denom: c.Denom}
}

// Negate returns the negative of the Coin value.
func (c Coin) Negate() Coin {
	return Coin{Amount: -c.Amount, Denom: c.Denom}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (c Coin) IsZero() bool { return c.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (c Coin) IsPositive() bool { return c.Amount > 0 }

// Equal returns true if both Coin values are equal (same amount and denom).
func (c Coin) Equal(other Coin) bool {
	return c.Amount == other.Amount && c.Denom == other.Denom
}

// LessThan returns true if this Coin is less than other. Panics if denoms don't match.
func (c Coin) LessThan(other Coin) bool {
	c.assertSameDenom(other)
	return c.Amount < other.Amount
}

// Formatting methods

// FormatMajor returns the whole-token string without the denom.
// A0GI(1500000000) formats as "1.500000000".
func (c Coin) FormatMajor() string {
	decimals := denomDecimals(c.Denom)
	if decimals == 0 {
		return fmt.Sprintf("%d", c.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	negative := c.Amount < 0
	abs := c.Amount
	if negative {
		abs = -abs
	}

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, abs/divisor, abs%divisor)

	if negative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with the denom suffix.
// Examples: "1.500000000 A0GI", "49.000000 USDC".
func (c Coin) String() string {
	return c.FormatMajor() + " " + strings.ToUpper(c.Denom)
}

// MarshalJSON implements json.Marshaler.
func (c Coin) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount  int64  `json:"amount"`
		Denom   string `json:"denom"`
		Display string `json:"display"`
	}{
		Amount:  c.Amount,
		Denom:   c.Denom,
		Display: c.String(),
	})
}

// assertSameDenom panics if denoms don't match.
func (c Coin) assertSameDenom(other Coin) {
	if c.Denom != other.Denom {
		panic(fmt.Sprintf("coin: denom mismatch: %s != %s", c.Denom, other.Denom))
	}
}

// denomDecimals returns the number of base-unit decimals for a denom.
func denomDecimals(denom string) int {
	decimals := map[string]int{
		"a0gi": 9, // 0G native token, ledger base unit
		"eth":  9, // tracked in gwei
		"usdc": 6,
		"usdt": 6,
	}
	if d, ok := decimals[strings.ToLower(denom)]; ok {
		return d
	}
	return 9
}

// SumCoins calculates the sum of multiple Coin values. All must share a denom.
func SumCoins(values ...Coin) Coin {
	if len(values) == 0 {
		return ZeroCoin("a0gi")
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		result = result.Add(values[i])
	}
	return result
}
