// Package blacklist implements the Blacklist type of spec.md §3/§4.6: two
// sets of banned canonical emails and domains. Per the Design Note in
// spec.md §9, it canonicalizes plain strings directly (via
// internal/address's free functions) instead of constructing EmailAddress
// values, which would otherwise create a cyclic dependency between the two
// packages. Grounded on the teacher's internal/domaininfo.DB (mutex-backed
// lookup table) and internal/set.String.
package blacklist

import (
	"sync"

	"github.com/chasquid-tools/mailverify/internal/address"
	"github.com/chasquid-tools/mailverify/internal/set"
)

// List holds the banned addresses and domains.
type List struct {
	mu      sync.Mutex
	emails  *set.String
	domains *set.String
}

// New returns an empty List.
func New() *List {
	return &List{emails: set.NewString(), domains: set.NewString()}
}

// BanAddress bans addr (canonicalized: lowercased).
func (l *List) BanAddress(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emails.Add(address.CanonicalizeAddress(addr))
}

// BanDomain bans domain (canonicalized: ASCII lowercase).
func (l *List) BanDomain(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains.Add(address.CanonicalizeDomain(domain))
}

// AllowAddress removes addr from the address ban list, if present.
func (l *List) AllowAddress(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emails.Remove(address.CanonicalizeAddress(addr))
}

// AllowDomain removes domain from the domain ban list, if present.
func (l *List) AllowDomain(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains.Remove(address.CanonicalizeDomain(domain))
}

// IsBanned reports whether addr is banned, either directly or because its
// domain is banned.
func (l *List) IsBanned(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.emails.Has(address.CanonicalizeAddress(addr)) {
		return true
	}

	_, domain := address.Split(addr)
	return l.domains.Has(address.CanonicalizeDomain(domain))
}
