// Package address implements EmailAddress and the canonicalization rules
// used throughout the verifier, grounded on the teacher's
// internal/envelope (user@domain splitting) and internal/normalize
// (canonical-form helpers) packages.
package address

import (
	"fmt"
	"strings"

	"github.com/chasquid-tools/mailverify/internal/syntax"
)

// EmailAddress is an immutable (localPart, domain) pair built from a
// trimmed input string, per spec.md §3.
type EmailAddress struct {
	raw    string
	local  string
	domain string
}

// Split divides addr into its local and domain parts at the rightmost '@',
// mirroring the teacher's envelope.Split.
func Split(addr string) (string, string) {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return addr, ""
	}
	return addr[:i], addr[i+1:]
}

// New builds an EmailAddress from a trimmed input string. It enforces the
// invariants from spec.md §3: lexically valid, no CR/LF, exactly one '@'
// (the rightmost one is the delimiter).
func New(input string) (EmailAddress, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return EmailAddress{}, fmt.Errorf("address: empty address")
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return EmailAddress{}, fmt.Errorf("address: CR/LF not allowed in %q", input)
	}
	if strings.Count(trimmed, "@") < 1 {
		return EmailAddress{}, fmt.Errorf("address: missing '@' in %q", trimmed)
	}
	if !syntax.CheckEmail(trimmed, false) {
		return EmailAddress{}, fmt.Errorf("address: %q failed syntax validation", trimmed)
	}

	local, domain := Split(trimmed)
	return EmailAddress{raw: trimmed, local: local, domain: domain}, nil
}

// String returns the original (trimmed) address.
func (e EmailAddress) String() string { return e.raw }

// LocalPart returns the local part, as given.
func (e EmailAddress) LocalPart() string { return e.local }

// Domain returns the domain part, as given (not canonicalized).
func (e EmailAddress) Domain() string { return e.domain }

// CanonicalizedDomain returns the ASCII (Punycode), lowercase form of the
// domain. Falls back to a plain lowercase if IDN conversion fails, so
// callers always get a usable canonical key.
func (e EmailAddress) CanonicalizedDomain() string {
	ascii, err := syntax.ToASCII(e.domain)
	if err != nil {
		return strings.ToLower(e.domain)
	}
	return ascii
}

// CanonicalKey is the lowercase of the whole address string, used as the
// dedup key in AddressCollection.
func (e EmailAddress) CanonicalKey() string {
	return strings.ToLower(e.raw)
}

// CanonicalizeDomain is the free-function form used by collaborators (like
// blacklist) that only have a domain string and must not depend on
// EmailAddress, per the Design Note in spec.md §9 about breaking the
// Blacklist<->EmailAddress cycle.
func CanonicalizeDomain(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), ".")
	ascii, err := syntax.ToASCII(domain)
	if err != nil {
		return strings.ToLower(domain)
	}
	return ascii
}

// CanonicalizeAddress is the free-function equivalent of
// EmailAddress.CanonicalKey, for collaborators that only have a string.
func CanonicalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
