package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a quantity of Nepalese rupees held in paisa (1 NPR = 100 paisa).
// Keeping amounts in minor units means every arithmetic step stays exact; the
// two-decimal wire representation is reconstructed only at the JSON boundary.
type Amount int64

// BpsPerUnit is the number of basis points representing 100%.
const BpsPerUnit = 10_000

// Zero is the additive identity.
const Zero Amount = 0

// FromPaisa wraps a raw paisa count.
func FromPaisa(p int64) Amount { return Amount(p) }

// FromRupees converts whole rupees into an Amount.
func FromRupees(r int64) Amount { return Amount(r * 100) }

// Paisa returns the raw minor-unit count.
func (a Amount) Paisa() int64 { return int64(a) }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b clamped at zero. Monetary subtraction in this system
// never yields a negative value.
func (a Amount) Sub(b Amount) Amount {
	if b >= a {
		return 0
	}
	return a - b
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if b < a {
		return b
	}
	return a
}

// MulBps applies a basis-point factor with half-up rounding to the nearest
// paisa. bps=10000 is the identity; bps=1300 is 13%.
func (a Amount) MulBps(bps int64) Amount {
	if a <= 0 || bps <= 0 {
		return 0
	}
	product := int64(a) * bps
	return Amount((product + BpsPerUnit/2) / BpsPerUnit)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// String renders the amount as a decimal rupee value, e.g. "1067.50".
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a plain decimal number of rupees.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number (or numeric string) of rupees and
// converts it to paisa. Fractions beyond two decimal places are rounded
// half-up.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse converts a decimal rupee string ("1067.5", "-12") into an Amount.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("money: empty amount")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if strings.ContainsAny(s, "eE") {
		// Scientific notation falls back to float parsing.
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("money: invalid amount %q", s)
		}
		p := int64(f*100 + 0.5)
		if neg {
			p = -p
		}
		return Amount(p), nil
	}
	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	paisa := whole * 100
	if fracPart != "" {
		// Normalise to three digits so the third can drive rounding.
		frac := fracPart
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		fv, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("money: invalid amount %q", s)
		}
		paisa += (fv + 5) / 10
	}
	if neg {
		paisa = -paisa
	}
	return Amount(paisa), nil
}

// BpsFromPercent converts a decimal percentage (13.5) into basis points
// (1350) with half-up rounding.
func BpsFromPercent(p float64) int64 {
	if p < 0 {
		return 0
	}
	return int64(p*100 + 0.5)
}

// PercentFromBps converts basis points back into a decimal percentage for
// API responses.
func PercentFromBps(bps int64) float64 {
	return float64(bps) / 100
}
