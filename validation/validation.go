// Package validation implements the client-side form rules for registration
// and sign-in. A ValidationError never reaches the network.
package validation

import (
	"strings"
	"unicode"

	autherrors "github.com/shopsphere/shopauth/internal/errors"
)

const (
	minUsernameLength = 3
	minPasswordLength = 8
	minShops          = 3
	maxShops          = 4
)

// PasswordStrength reports which strength criteria a password meets.
type PasswordStrength struct {
	Length      bool
	Number      bool
	Uppercase   bool
	Lowercase   bool
	SpecialChar bool
}

// CheckPassword evaluates all strength criteria for a password.
func CheckPassword(password string) PasswordStrength {
	strength := PasswordStrength{
		Length: len(password) >= minPasswordLength,
	}
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			strength.Number = true
		case unicode.IsUpper(r):
			strength.Uppercase = true
		case unicode.IsLower(r):
			strength.Lowercase = true
		default:
			strength.SpecialChar = true
		}
	}
	return strength
}

// Score returns the number of criteria met, 0 to 5.
func (ps PasswordStrength) Score() int {
	score := 0
	for _, met := range []bool{ps.Length, ps.Number, ps.Uppercase, ps.Lowercase, ps.SpecialChar} {
		if met {
			score++
		}
	}
	return score
}

// Label maps the score to the strength label shown next to the meter.
func (ps PasswordStrength) Label() string {
	switch score := ps.Score(); {
	case score <= 2:
		return "weak"
	case score <= 4:
		return "medium"
	default:
		return "strong"
	}
}

// Validator provides centralized validation for registration and sign-in
// input.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUsername checks the username is present and long enough.
func (v *Validator) ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return autherrors.Wrapf(autherrors.ErrValidation, "username is required")
	}
	if len(username) < minUsernameLength {
		return autherrors.Wrapf(autherrors.ErrValidation, "username must be at least %d characters", minUsernameLength)
	}
	return nil
}

// ValidatePassword enforces the minimum length. Strength criteria beyond
// length are advisory (shown in the meter) and do not block submission.
func (v *Validator) ValidatePassword(password string) error {
	if password == "" {
		return autherrors.Wrapf(autherrors.ErrValidation, "password is required")
	}
	if len(password) < minPasswordLength {
		return autherrors.Wrapf(autherrors.ErrValidation, "password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// ValidateShopNames normalizes and validates the registration shop list:
// 3 to 4 names, non-empty after trimming, valid slugs, unique
// case-insensitively. Returns the trimmed names on success.
func (v *Validator) ValidateShopNames(names []string) ([]string, error) {
	trimmed := make([]string, 0, len(names))
	for _, name := range names {
		if n := strings.TrimSpace(name); n != "" {
			trimmed = append(trimmed, n)
		}
	}

	if len(trimmed) < minShops {
		return nil, autherrors.Wrapf(autherrors.ErrValidation, "at least %d shop names are required", minShops)
	}
	if len(trimmed) > maxShops {
		return nil, autherrors.Wrapf(autherrors.ErrValidation, "at most %d shop names are allowed", maxShops)
	}

	seen := make(map[string]string, len(trimmed))
	for _, name := range trimmed {
		if err := validateSlug(name); err != nil {
			return nil, err
		}
		key := strings.ToLower(name)
		if first, dup := seen[key]; dup {
			return nil, autherrors.Wrapf(autherrors.ErrValidation, "shop name %q is already used (duplicate of %q)", name, first)
		}
		seen[key] = name
	}
	return trimmed, nil
}

// validateSlug checks the shop name works as a subdomain segment: lowercase
// letters, digits and hyphens, not starting or ending with a hyphen.
func validateSlug(name string) error {
	for _, r := range name {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '-' {
			return autherrors.Wrapf(autherrors.ErrValidation, "shop name %q must contain only lowercase letters, digits and hyphens", name)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return autherrors.Wrapf(autherrors.ErrValidation, "shop name %q must not start or end with a hyphen", name)
	}
	return nil
}
