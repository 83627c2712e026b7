package lease

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/LeaseForge/internal/domain"
)

// Money is an amount in minor units (cents). On the wire it is a decimal
// string with two fractional digits; JSON numbers are accepted on input.
type Money int64

// ParseMoney parses a decimal amount such as "1200", "1200.5" or "-3.25".
// More than two fractional digits is a validation error.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", domain.ErrValidation)
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("%w: invalid amount %q", domain.ErrValidation, s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: amount %q has more than two decimal places", domain.ErrValidation, s)
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("%w: invalid amount %q", domain.ErrValidation, s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("%w: invalid amount %q", domain.ErrValidation, s)
	}
	if units > (1<<62)/100 {
		return 0, fmt.Errorf("%w: amount %q out of range", domain.ErrValidation, s)
	}
	m := Money(units*100 + cents)
	if neg {
		m = -m
	}
	return m, nil
}

// String formats the amount with exactly two decimal places.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: invalid amount %s", domain.ErrValidation, s)
		}
		s = unq
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
