// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"
	"strings"

	"github.com/taibuivan/authapi/internal/platform/validate"
)

// # Identity Rules

// maxPasswordBytes is the bcrypt input limit; longer passwords are refused
// rather than silently truncated.
const maxPasswordBytes = 72

// allowedUsernameCharacters is the username charset.
const allowedUsernameCharacters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+ "

// PasswordPolicy describes the password complexity rules.
type PasswordPolicy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
	RequiredUniqueChars    int
}

// DefaultPasswordPolicy returns the stock policy: six characters with a digit,
// a lowercase and an uppercase letter.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           6,
		RequireDigit:        true,
		RequireLowercase:    true,
		RequireUppercase:    true,
		RequiredUniqueChars: 1,
	}
}

// Check appends a failure keyed by rule code for every rule the password breaks.
func (policy PasswordPolicy) Check(validator *validate.Validator, password string) *validate.Validator {
	var hasDigit, hasLower, hasUpper, hasOther bool
	unique := make(map[rune]struct{})
	for _, character := range password {
		switch {
		case character >= '0' && character <= '9':
			hasDigit = true
		case character >= 'a' && character <= 'z':
			hasLower = true
		case character >= 'A' && character <= 'Z':
			hasUpper = true
		default:
			hasOther = true
		}
		unique[character] = struct{}{}
	}

	return validator.
		Rule(len(password) < policy.MinLength, CodePasswordTooShort,
			fmt.Sprintf("Passwords must be at least %d characters.", policy.MinLength)).
		Rule(len(password) > maxPasswordBytes, CodePasswordTooLong,
			fmt.Sprintf("Passwords must be at most %d bytes.", maxPasswordBytes)).
		Rule(policy.RequireNonAlphanumeric && !hasOther, CodePasswordRequiresNonAlphanumeric,
			"Passwords must have at least one non alphanumeric character.").
		Rule(policy.RequireDigit && !hasDigit, CodePasswordRequiresDigit,
			"Passwords must have at least one digit ('0'-'9').").
		Rule(policy.RequireLowercase && !hasLower, CodePasswordRequiresLower,
			"Passwords must have at least one lowercase ('a'-'z').").
		Rule(policy.RequireUppercase && !hasUpper, CodePasswordRequiresUpper,
			"Passwords must have at least one uppercase ('A'-'Z').").
		Rule(policy.RequiredUniqueChars >= 1 && len(unique) < policy.RequiredUniqueChars, CodePasswordRequiresUniqueChars,
			fmt.Sprintf("Passwords must use at least %d different characters.", policy.RequiredUniqueChars))
}

// Validate returns a validation error listing every broken rule, or nil.
func (policy PasswordPolicy) Validate(password string) error {
	return policy.Check(&validate.Validator{}, password).Err()
}

// CheckUsername appends InvalidUserName when the username is empty or uses
// characters outside the allowed set.
func CheckUsername(validator *validate.Validator, username string) *validate.Validator {
	return validator.Rule(username == "" || strings.Trim(username, allowedUsernameCharacters) != "", CodeInvalidUserName,
		fmt.Sprintf("Username '%s' is invalid, can only contain letters or digits.", username))
}

// CheckEmail appends InvalidEmail when the email is not a bare address.
func CheckEmail(validator *validate.Validator, email string) *validate.Validator {
	return validator.Rule(!validate.IsEmail(email), CodeInvalidEmail, fmt.Sprintf("Email '%s' is invalid.", email))
}

// # Shared Failures

func duplicateEmailError(email string) error {
	return validate.Fail(CodeDuplicateEmail, fmt.Sprintf("Email '%s' is already taken.", email))
}

func duplicateUsernameError(username string) error {
	return validate.Fail(CodeDuplicateUserName, fmt.Sprintf("Username '%s' is already taken.", username))
}

func invalidTokenError() error {
	return validate.Fail(CodeInvalidToken, "Invalid token.")
}

func passwordMismatchError() error {
	return validate.Fail(CodePasswordMismatch, "Incorrect password.")
}
