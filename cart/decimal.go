package cart

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Parsed values are limited to maxDigits significant digits between
// 10^-maxScale and 10^maxMagnitude. Within those bounds a line subtotal or a
// cart total always fits decimalCtx exactly, so arithmetic never rounds and
// never overflows.
const (
	maxDigits    = 18
	maxScale     = 18
	maxMagnitude = 18
)

var decimalCtx = apd.BaseContext.WithPrecision(100)

// Decimal is an immutable decimal number used for prices and impact
// figures. The zero value is 0.
type Decimal struct {
	d apd.Decimal
}

// NewDecimal returns coeff * 10^exp.
func NewDecimal(coeff int64, exp int32) Decimal {
	var out Decimal
	out.d.SetFinite(coeff, exp)
	return out
}

// ParseDecimal parses a decimal string such as "12.50". Values with more
// than 18 significant digits, more than 18 fractional digits or a magnitude
// of 10^18 or more are rejected.
func ParseDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("invalid decimal %q: not finite", s)
	}
	if d.IsZero() {
		return Decimal{}, nil
	}
	digits := d.NumDigits()
	switch {
	case digits > maxDigits:
		return Decimal{}, fmt.Errorf("invalid decimal %q: more than %d significant digits", s, maxDigits)
	case int64(d.Exponent) < -maxScale:
		return Decimal{}, fmt.Errorf("invalid decimal %q: more than %d fractional digits", s, maxScale)
	case int64(d.Exponent)+digits > maxMagnitude:
		return Decimal{}, fmt.Errorf("invalid decimal %q: out of range", s)
	}
	var out Decimal
	out.d.Set(d)
	return out, nil
}

// MustDecimal is ParseDecimal that panics on error. Intended for literals.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Add returns d + o.
func (d Decimal) Add(o Decimal) Decimal {
	var out Decimal
	if _, err := decimalCtx.Add(&out.d, &d.d, &o.d); err != nil {
		panic(fmt.Sprintf("cart: decimal add: %v", err))
	}
	return out
}

// MulInt returns d * n.
func (d Decimal) MulInt(n int) Decimal {
	var out Decimal
	factor := apd.New(int64(n), 0)
	if _, err := decimalCtx.Mul(&out.d, &d.d, factor); err != nil {
		panic(fmt.Sprintf("cart: decimal mul: %v", err))
	}
	return out
}

// Cmp compares d and o numerically, ignoring trailing zeros.
func (d Decimal) Cmp(o Decimal) int {
	return d.d.Cmp(&o.d)
}

// Equal reports whether d and o are numerically equal.
func (d Decimal) Equal(o Decimal) bool {
	return d.Cmp(o) == 0
}

// IsZero reports whether d is 0.
func (d Decimal) IsZero() bool {
	return d.d.IsZero()
}

// String renders d in plain fixed-point notation.
func (d Decimal) String() string {
	return d.d.Text('f')
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts a JSON number, a quoted decimal string or null.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = Decimal{}
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	if s == "" {
		*d = Decimal{}
		return nil
	}
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
