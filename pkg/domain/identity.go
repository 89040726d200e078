package domain

import (
	"strings"

	dErrors "dab/pkg/domain-errors"
)

// MaxIdentityLength bounds the textual form of an Identity. Principal text
// encodings never exceed 63 characters.
const MaxIdentityLength = 63

// Identity is an opaque caller or target identifier (a principal id).
// The core compares identities for equality and never inspects their
// structure.
//
// Usage: construct via ParseIdentity at trust boundaries; direct casting
// bypasses validation and is reserved for tests and stores.
type Identity string

// ParseIdentity constructs an Identity from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, longer than
// MaxIdentityLength, or contains anything outside [A-Za-z0-9._:-].
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	if len(s) > MaxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is too long")
	}
	if strings.ContainsFunc(s, notIdentityRune) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity contains invalid characters")
	}
	return Identity(s), nil
}

// String returns the textual form of the identity.
func (i Identity) String() string {
	return string(i)
}

// IsNil returns true for the zero identity.
func (i Identity) IsNil() bool {
	return i == ""
}

func notIdentityRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '-', r == '_', r == '.', r == ':':
		return false
	}
	return true
}
