// Package syntax implements the lexical validation and IDN handling that
// the verification engine treats as an external collaborator: a pure,
// non-networking check of whether a string looks like a deliverable email
// address, and the Punycode conversion needed to canonicalize its domain.
//
// There is no off-the-shelf RFC 5322 validator in this module's dependency
// tree, so this is a from-scratch implementation; see DESIGN.md for why.
package syntax

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// MaxLength is the longest address CheckEmail will accept, per RFC 5321
// §4.5.3.1.3.
const MaxLength = 254

// isLDHLabel reports whether label is a valid domain label: letters,
// digits and hyphens, not starting or ending with a hyphen.
func isLDHLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	for i, r := range label {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isAlnum {
			continue
		}
		if r == '-' && i != 0 && i != len(label)-1 {
			continue
		}
		return false
	}
	return true
}

func isAllAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

// CheckEmail reports whether addr looks like a syntactically valid email
// address. With alsoCheckDNS false (the only mode this module implements;
// see spec's out-of-scope DNS-deep check), it performs no I/O.
func CheckEmail(addr string, alsoCheckDNS bool) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" || len(addr) > MaxLength {
		return false
	}

	for _, r := range addr {
		if unicode.IsControl(r) {
			return false
		}
	}

	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	local, domain := addr[:at], addr[at+1:]

	if !validLocal(local) {
		return false
	}
	if !validDomain(domain) {
		return false
	}

	// alsoCheckDNS is part of the collaborator contract (§6) but this
	// implementation never performs the deep MX check itself; the
	// verification engine drives DNS separately, through the DNS facade.
	_ = alsoCheckDNS
	return true
}

func validLocal(local string) bool {
	if local == "" {
		return false
	}
	if strings.HasPrefix(local, `"`) && strings.HasSuffix(local, `"`) && len(local) >= 2 {
		return validQuotedLocal(local)
	}

	for _, part := range strings.Split(local, ".") {
		if !dotAtomPart(part) {
			return false
		}
	}
	return true
}

func dotAtomPart(part string) bool {
	if part == "" {
		return false
	}
	for _, r := range part {
		if !isAtext(r) {
			return false
		}
	}
	return true
}

func isAtext(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("!#$%&'*+/=?^_`{|}~-", r):
		return true
	}
	return false
}

func validQuotedLocal(local string) bool {
	inner := local[1 : len(local)-1]
	escaped := false
	for _, r := range inner {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '"' {
			return false
		}
	}
	return !escaped
}

func validDomain(domain string) bool {
	if domain == "" {
		return false
	}
	if strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		return validAddressLiteral(domain[1 : len(domain)-1])
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !isLDHLabel(l) {
			return false
		}
	}

	last := labels[len(labels)-1]
	if strings.HasPrefix(strings.ToLower(last), "xn--") {
		return true
	}
	return isAllAlpha(last)
}

func validAddressLiteral(lit string) bool {
	lit = strings.TrimPrefix(lit, "IPv6:")
	if lit == "" {
		return false
	}
	// Lenient by design, matching the spec's IP-literal tolerance: just
	// require it to look like dotted/colon numeric groups.
	for _, r := range lit {
		if !(unicode.IsDigit(r) || r == '.' || r == ':' ||
			(r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// ToASCII converts domain to its Punycode (ASCII) form, lowercased. Pure
// ASCII domains pass through unchanged (lowercased). This is the IDN
// collaborator named in spec.md §1/§3.
func ToASCII(domain string) (string, error) {
	if isASCII(domain) {
		return strings.ToLower(domain), nil
	}
	ascii, err := idna.ToASCII(domain)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
