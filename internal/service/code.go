package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// CodeGenerator returns a fresh booking code for a booking made at now.
type CodeGenerator func(now time.Time) (string, error)

// NewBookingCode draws a KAS-<year>-<6 chars of [0-9A-Z]> code from
// crypto/rand.  Uniqueness is enforced by the database; callers retry on a
// duplicate.
func NewBookingCode(now time.Time) (string, error) {
	return bookingCodeFrom(rand.Reader, now)
}

func bookingCodeFrom(r io.Reader, now time.Time) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%04d-", model.BookingCodePrefix, now.Year())
	max := big.NewInt(int64(len(model.BookingCodeAlphabet)))
	for i := 0; i < model.BookingCodeSuffixLen; i++ {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", fmt.Errorf("booking code: %w", err)
		}
		b.WriteByte(model.BookingCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
