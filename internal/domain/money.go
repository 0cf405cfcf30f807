package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept by every Money value.
const MoneyScale = 8

// Money is a fixed-point decimal with MoneyScale fractional digits.
// It is used for balances, prices and quantities alike.
// Every constructor and arithmetic result is truncated to MoneyScale digits,
// so repeated operations never accumulate rounding drift.
type Money struct {
	d decimal.Decimal
}

// ZeroMoney is the additive identity.
var ZeroMoney = Money{}

func newMoney(d decimal.Decimal) Money {
	return Money{d: d.Truncate(MoneyScale)}
}

// ParseMoney parses a decimal string such as "49000" or "0.5".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return newMoney(d), nil
}

// MustMoney is ParseMoney for constants and tests. Panics on malformed input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromInt creates a whole-unit value.
func MoneyFromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// MoneyFromDecimal converts a decimal, truncating extra fractional digits.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return newMoney(d)
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

func (m Money) Add(o Money) Money { return newMoney(m.d.Add(o.d)) }
func (m Money) Sub(o Money) Money { return newMoney(m.d.Sub(o.d)) }

// Mul multiplies and truncates the product to MoneyScale digits
// (quantity × price, trade value × fee rate).
func (m Money) Mul(o Money) Money { return newMoney(m.d.Mul(o.d)) }

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }
func (m Money) IsZero() bool { return m.d.IsZero() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// String renders the value with exactly MoneyScale fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(MoneyScale)
}

// Ticks returns the value scaled by 10^MoneyScale as an int64.
// It is the sortable integer form stored next to prices.
func (m Money) Ticks() (int64, error) {
	scaled := m.d.Shift(MoneyScale)
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("money %s out of tick range", m.String())
	}
	return bi.Int64(), nil
}

// Value stores Money as a fixed-scale string so every SQL backend round-trips it exactly.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	*m = newMoney(d)
	return nil
}

// MarshalText is used by both encoding/json and yaml.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := ParseMoney(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
