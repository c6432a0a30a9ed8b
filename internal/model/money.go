package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in cents (two fractional digits).  Prices are kept
// as integers end to end so that price × passengers never drifts; the
// DECIMAL(12,2) columns are read and written through Scan and Value.
type Money int64

// MaxMoney is the largest amount a DECIMAL(12,2) column holds.
const MaxMoney Money = 999_999_999_999

// ErrInvalidMoney is returned when a decimal amount cannot be parsed.
var ErrInvalidMoney = errors.New("invalid money amount")

// ErrMoneyOutOfRange is returned for amounts beyond ±MaxMoney.
var ErrMoneyOutOfRange = fmt.Errorf("%w: out of range", ErrInvalidMoney)

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// ParseMoney parses "100000", "100000.5" or "100000.50" into cents.
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !digitsOnly(whole) || (hasFrac && (!digitsOnly(frac) || len(frac) > 2)) {
		return 0, ErrInvalidMoney
	}
	whole = strings.TrimLeft(whole, "0")
	if len(whole) > 10 {
		return 0, ErrMoneyOutOfRange
	}
	var w int64
	if whole != "" {
		var err error
		if w, err = strconv.ParseInt(whole, 10, 64); err != nil {
			return 0, ErrInvalidMoney
		}
	}
	var f int64
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		f, _ = strconv.ParseInt(frac, 10, 64)
	}
	m := Money(w*100 + f)
	if m > MaxMoney {
		return 0, ErrMoneyOutOfRange
	}
	if neg {
		m = -m
	}
	return m, nil
}

// Mul multiplies the amount by a passenger count.
func (m Money) Mul(n int) (Money, error) {
	if n < 0 {
		return 0, ErrMoneyOutOfRange
	}
	abs := m
	if abs < 0 {
		abs = -abs
	}
	if n > 0 && abs > MaxMoney/Money(n) {
		return 0, ErrMoneyOutOfRange
	}
	return m * Money(n), nil
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON writes the amount as a decimal string, e.g. "200000.00".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Scan implements sql.Scanner for DECIMAL columns.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case []byte:
		p, err := ParseMoney(string(v))
		if err != nil {
			return err
		}
		*m = p
	case string:
		p, err := ParseMoney(v)
		if err != nil {
			return err
		}
		*m = p
	case int64:
		if v > int64(MaxMoney/100) || v < -int64(MaxMoney/100) {
			return ErrMoneyOutOfRange
		}
		*m = Money(v * 100)
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) { return m.String(), nil }
