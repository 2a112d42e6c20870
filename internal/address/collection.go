package address

import "strings"

// Collection is an insertion-order set of EmailAddress, keyed by the
// lowercase of the entire address string; inserting a duplicate key is a
// no-op. It implements the AddressCollection type of spec.md §3, over an
// ordered map (insertion-order slice of keys + map of values), as the
// Design Note in spec.md §9 prescribes.
type Collection struct {
	order []string
	byKey map[string]EmailAddress
}

// NewCollection returns an empty Collection.
func NewCollection() *Collection {
	return &Collection{byKey: map[string]EmailAddress{}}
}

// Add inserts addr, a no-op if its canonical key is already present.
func (c *Collection) Add(addr EmailAddress) {
	key := addr.CanonicalKey()
	if _, ok := c.byKey[key]; ok {
		return
	}
	c.byKey[key] = addr
	c.order = append(c.order, key)
}

// AddMany inserts every address in addrs, preserving order.
func (c *Collection) AddMany(addrs []EmailAddress) {
	for _, a := range addrs {
		c.Add(a)
	}
}

// Has reports whether key (the lowercase address string) is present.
func (c *Collection) Has(key string) bool {
	_, ok := c.byKey[strings.ToLower(key)]
	return ok
}

// Get returns the EmailAddress stored under key, if any.
func (c *Collection) Get(key string) (EmailAddress, bool) {
	a, ok := c.byKey[strings.ToLower(key)]
	return a, ok
}

// Delete removes key from the collection.
func (c *Collection) Delete(key string) {
	key = strings.ToLower(key)
	if _, ok := c.byKey[key]; !ok {
		return
	}
	delete(c.byKey, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Merge adds every address from other into c.
func (c *Collection) Merge(other *Collection) {
	for _, key := range other.order {
		c.Add(other.byKey[key])
	}
}

// Count returns the number of distinct addresses held.
func (c *Collection) Count() int { return len(c.order) }

// Iterate calls fn for each address, in insertion order.
func (c *Collection) Iterate(fn func(EmailAddress)) {
	for _, key := range c.order {
		fn(c.byKey[key])
	}
}

// All returns every address, in insertion order. Convenience wrapper over
// Iterate for callers that want a slice.
func (c *Collection) All() []EmailAddress {
	out := make([]EmailAddress, 0, len(c.order))
	c.Iterate(func(a EmailAddress) { out = append(out, a) })
	return out
}

// Domains returns the set of distinct canonical domains, in the order of
// first encounter.
func (c *Collection) Domains() []string {
	seen := map[string]bool{}
	var domains []string
	c.Iterate(func(a EmailAddress) {
		d := a.CanonicalizedDomain()
		if !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	})
	return domains
}

// EmailsInDomain returns the lowercase address strings whose canonical
// domain matches the ASCII/lowercase form of domain. domain is trimmed of
// trailing dots and whitespace before comparison, per spec.md §4.4.
func (c *Collection) EmailsInDomain(domain string) []string {
	target := CanonicalizeDomain(domain)

	var out []string
	c.Iterate(func(a EmailAddress) {
		if a.CanonicalizedDomain() == target {
			out = append(out, a.CanonicalKey())
		}
	})
	return out
}
