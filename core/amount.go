package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmountDecimals is the number of fractional digits an Amount carries.
const AmountDecimals = 6

const amountScale = 1_000_000

// ErrInvalidAmount is returned when a value cannot be represented as an Amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a fixed-precision quantity of coins counted in millionths.
// Amounts carried by transactions are never negative; a Balance may be.
type Amount int64

// Coins returns an Amount of n whole coins. It panics if n coins do not fit
// in an Amount.
func Coins(n int64) Amount {
	if n > math.MaxInt64/amountScale || n < math.MinInt64/amountScale {
		panic(fmt.Sprintf("core: %d coins overflow Amount", n))
	}
	return Amount(n * amountScale)
}

// Add returns a+b. ok is false if the sum overflows.
func (a Amount) Add(b Amount) (sum Amount, ok bool) {
	sum = a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// ParseAmount parses a plain decimal such as "10", "0.5" or "2.000001".
// Signs, exponents and more than AmountDecimals fractional digits are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if strings.HasSuffix(s, ".") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > AmountDecimals {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, AmountDecimals)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > math.MaxInt64/amountScale {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	var f int64
	if frac != "" {
		f, _ = strconv.ParseInt(frac+strings.Repeat("0", AmountDecimals-len(frac)), 10, 64)
	}
	return Amount(w*amountScale + f), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats the amount without trailing zeros, e.g. "10" or "2.5".
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole, frac := v/amountScale, v%amountScale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fs
}

// MarshalJSON encodes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number and applies the ParseAmount rules.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || strings.HasPrefix(s, `"`) {
		return fmt.Errorf("%w: %s is not a number", ErrInvalidAmount, s)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
