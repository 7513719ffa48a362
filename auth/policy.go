package auth

import (
	"errors"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// MinZXCVBNScore is the minimum zxcvbn strength score (0-4) accepted for a
// master password.
const MinZXCVBNScore = 3

// ValidateMasterPassword applies the master password policy requirements.
func ValidateMasterPassword(pw string) error {
	if len(pw) < 12 {
		return errors.New("password must be at least 12 characters long")
	}
	if !hasUpper(pw) {
		return errors.New("password must include an uppercase letter")
	}
	if !hasDigit(pw) {
		return errors.New("password must include a digit")
	}
	if !hasSpecial(pw) {
		return errors.New("password must include a special character")
	}
	if score := zxcvbn.PasswordStrength(pw, nil).Score; score < MinZXCVBNScore {
		return errors.New("password is too guessable")
	}
	return nil
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
