package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// Violation codes reported by LockPasswordPolicy.
const (
	ViolationMinLength        = "min_length"
	ViolationCharacterClasses = "character_classes"
	ViolationWeak             = "weak_password"
)

// PasswordValidationError is the first policy rule a password broke.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// LockPasswordPolicy is applied to the password a lock user is created with.
// Rules run in order: length, character classes, then zxcvbn strength with the
// lock id and name as user inputs so passwords derived from them score low.
type LockPasswordPolicy struct {
	MinLength   int
	MinClasses  int
	MinStrength int
}

// NewLockPasswordPolicy returns the policy used when registering locks.
func NewLockPasswordPolicy() *LockPasswordPolicy {
	return &LockPasswordPolicy{MinLength: 8, MinClasses: 2, MinStrength: 2}
}

func (p *LockPasswordPolicy) Validate(password string, userInputs ...string) error {
	if n := len([]rune(password)); n < p.MinLength {
		return &PasswordValidationError{
			Code:    ViolationMinLength,
			Message: fmt.Sprintf("password must be at least %d characters long", p.MinLength),
		}
	}

	if characterClasses(password) < p.MinClasses {
		return &PasswordValidationError{
			Code:    ViolationCharacterClasses,
			Message: fmt.Sprintf("password must include at least %d character types", p.MinClasses),
		}
	}

	if p.MinStrength > 0 {
		inputs := make([]string, 0, len(userInputs))
		for _, in := range userInputs {
			if in = strings.TrimSpace(in); in != "" {
				inputs = append(inputs, in)
			}
		}
		if zxcvbn.PasswordStrength(password, inputs).Score < min(p.MinStrength, 4) {
			return &PasswordValidationError{
				Code:    ViolationWeak,
				Message: "password is too weak; choose a more complex value",
			}
		}
	}
	return nil
}

// characterClasses counts how many of upper, lower, digit and symbol appear.
func characterClasses(password string) int {
	var seen [4]bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			seen[0] = true
		case unicode.IsLower(r):
			seen[1] = true
		case unicode.IsDigit(r):
			seen[2] = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			seen[3] = true
		}
	}
	n := 0
	for _, ok := range seen {
		if ok {
			n++
		}
	}
	return n
}
