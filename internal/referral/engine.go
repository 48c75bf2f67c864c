package referral

import (
	"crypto/rand"
	"errors"
)

var (
	// ErrDisabled is returned when the referral program is switched off.
	ErrDisabled = errors.New("referral program disabled")
	// ErrInvalidCode is returned when the code does not belong to any customer.
	ErrInvalidCode = errors.New("referral code not found")
	// ErrSelfReferral is returned when a customer enters their own code.
	ErrSelfReferral = errors.New("cannot use own referral code")
	// ErrAlreadyReferred is returned when the customer already has a referrer.
	ErrAlreadyReferred = errors.New("referral code already applied")
	// ErrNotNewCustomer is returned when the customer has placed orders already.
	ErrNotNewCustomer = errors.New("referral codes are for new customers only")
)

// codeAlphabet deliberately excludes nothing: uppercase letters and digits
// match what customers see printed on share cards.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of generated referral codes.
const CodeLength = 8

// GenerateCode produces a random share code. Uniqueness is enforced by the
// database constraint; callers retry on collision.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
