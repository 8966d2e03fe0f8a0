package users

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tagboard/tagboard/internal/shared"
)

// Rules holds the registration constraints applied to user fields.
type Rules struct {
	NameMinLength     int
	NameMaxLength     int
	NamePattern       string
	PasswordMinLength int
	NeedEmail         bool
	StaffActivation   bool
}

// DefaultRules mirrors the stock registration configuration.
func DefaultRules() Rules {
	return Rules{
		NameMinLength:     1,
		NameMaxLength:     32,
		NamePattern:       `^[\w_-]+$`,
		PasswordMinLength: 5,
	}
}

// Validator checks user-supplied fields against Rules.
type Validator struct {
	rules    Rules
	pattern  *regexp.Regexp
	validate *validator.Validate
}

// NewValidator compiles rules into a Validator.
func NewValidator(rules Rules) (*Validator, error) {
	pattern, err := regexp.Compile(rules.NamePattern)
	if err != nil {
		return nil, fmt.Errorf("users: name pattern: %w", err)
	}
	return &Validator{rules: rules, pattern: pattern, validate: validator.New()}, nil
}

// Rules returns the configured constraints.
func (v *Validator) Rules() Rules {
	return v.rules
}

// ValidateName trims and checks a user name.
func (v *Validator) ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := v.validate.Var(name, fmt.Sprintf("min=%d", v.rules.NameMinLength)); err != nil {
		return "", shared.NewValidationError("User name must have at least %d characters.", v.rules.NameMinLength)
	}
	if err := v.validate.Var(name, fmt.Sprintf("max=%d", v.rules.NameMaxLength)); err != nil {
		return "", shared.NewValidationError("User name must have at most %d characters.", v.rules.NameMaxLength)
	}
	if !v.pattern.MatchString(name) {
		return "", shared.NewValidationError("User name contains invalid characters.")
	}
	return name, nil
}

// ValidatePassword checks the password length. Length is measured in
// characters, not bytes.
func (v *Validator) ValidatePassword(password string) error {
	if err := v.validate.Var(password, fmt.Sprintf("min=%d", v.rules.PasswordMinLength)); err != nil {
		return shared.NewValidationError("Password must have at least %d characters.", v.rules.PasswordMinLength)
	}
	return nil
}

// ValidateEmail trims and checks an e-mail address. Empty input is allowed
// unless the rules require an address.
func (v *Validator) ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		if v.rules.NeedEmail {
			return "", shared.NewValidationError("E-mail address is required - you will be sent confirmation e-mail.")
		}
		return "", nil
	}
	if err := v.validate.Var(email, "email"); err != nil {
		return "", shared.NewValidationError("E-mail address is invalid.")
	}
	return email, nil
}
