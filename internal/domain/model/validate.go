package model

import "regexp"

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	opHashPattern  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// IsValidIdentity reports whether s is an email-shaped identity string.
func IsValidIdentity(s string) bool { return emailPattern.MatchString(s) }

// IsValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsValidAddress(s string) bool { return addressPattern.MatchString(s) }

// IsValidOpHash reports whether s is a 0x-prefixed 32-byte hex hash.
func IsValidOpHash(s string) bool { return opHashPattern.MatchString(s) }
