package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/narvanalabs/playdate/internal/models"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// Fingerprints holds the normalized contact details of a parent. They are
// compared for equality only and never returned to other accounts.
type Fingerprints struct {
	Email string
	Phone string
}

// NewFingerprints normalizes raw contact input. At least one of email and
// phone must be present and well-formed.
func NewFingerprints(email, phone string) (Fingerprints, error) {
	var fp Fingerprints
	var err error
	if fp.Email, err = NormalizeEmail(email); err != nil {
		return Fingerprints{}, err
	}
	if fp.Phone, err = NormalizePhone(phone); err != nil {
		return Fingerprints{}, err
	}
	if fp.Empty() {
		return Fingerprints{}, models.ErrInvalidInput
	}
	return fp, nil
}

// Empty reports whether neither fingerprint is set.
func (f Fingerprints) Empty() bool {
	return f.Email == "" && f.Phone == ""
}

// fold applies compatibility normalization and Unicode case folding.
// Casers carry state, so one is built per call.
func fold(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return norm.NFKC.String(s)
}

// NormalizeEmail returns the canonical form of an email address. Empty input
// yields "" with no error.
func NormalizeEmail(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	s = fold(s)
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t\r\n") || strings.Count(s, "@") != 1 {
		return "", models.ErrInvalidInput
	}
	return s, nil
}

// NormalizePhone returns the canonical "+digits" form of a phone number.
// Separators are dropped and a leading "00" international prefix is treated
// like "+". Empty input yields "" with no error.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return "", nil
	}

	var digits strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", models.ErrInvalidInput
		}
	}

	d := digits.String()
	if !strings.HasPrefix(s, "+") {
		d = strings.TrimPrefix(d, "00")
	}
	if len(d) < minPhoneDigits || len(d) > maxPhoneDigits {
		return "", models.ErrInvalidInput
	}
	return "+" + d, nil
}

// NormalizeName returns the form of a display name used to match a skeleton
// child against real children: folded case with collapsed whitespace.
func NormalizeName(raw string) string {
	return strings.Join(strings.FieldsFunc(fold(raw), unicode.IsSpace), " ")
}
