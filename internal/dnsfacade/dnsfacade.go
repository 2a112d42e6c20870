// Package dnsfacade implements component C: MX list retrieval
// (priority-sorted), optional RBL IPv4 blacklist lookup, and caching, per
// spec.md §4.3. It is grounded on the teacher's lookupMXs in
// internal/courier/smtp.go (a package-level resolver variable as a test
// seam) and on internal/domaininfo.DB for the cache-consulting shape.
package dnsfacade

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chasquid-tools/mailverify/internal/cache"
	"github.com/chasquid-tools/mailverify/internal/syntax"
)

// MxRecord is a (host, preference) pair, per spec.md §3.
type MxRecord struct {
	Host       string
	Preference int
}

// Resolver is the DNS lookup primitive this facade depends on. The default
// implementation (netResolver) uses net.Resolver; tests substitute a fake.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]MxRecord, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type netResolver struct {
	r *net.Resolver
}

// NewNetResolver returns a Resolver backed by the standard library's
// recursive resolver.
func NewNetResolver() Resolver {
	return &netResolver{r: net.DefaultResolver}
}

func (n *netResolver) LookupMX(ctx context.Context, name string) ([]MxRecord, error) {
	recs, err := n.r.LookupMX(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]MxRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, MxRecord{Host: r.Host, Preference: int(r.Pref)})
	}
	return out, nil
}

func (n *netResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return n.r.LookupHost(ctx, host)
}

// Default RBL servers consulted by CheckRBL. Overridable for testing or
// deployment-specific policy.
var DefaultRBLServers = []string{"zen.spamhaus.org"}

// Facade is the DNS collaborator used by the verification engine. A zero
// Facade is not usable; use New.
type Facade struct {
	resolver    Resolver
	cache       cache.Cache
	rblServers  []string
	dnsDisabled bool
}

// New returns a Facade using resolver for lookups and c for memoization.
// If resolver is nil, lookups are disabled and every MX query returns an
// empty list, per spec.md §4.3 ("DNS-unavailable environments... short-
// circuit every MX query to the empty list").
func New(resolver Resolver, c cache.Cache) *Facade {
	f := &Facade{resolver: resolver, cache: c, rblServers: DefaultRBLServers}
	if resolver == nil {
		f.dnsDisabled = true
	}
	if f.cache == nil {
		f.cache = cache.NewMap()
	}
	return f
}

// SetRBLServers overrides the RBL zones consulted by CheckRBL.
func (f *Facade) SetRBLServers(servers []string) {
	f.rblServers = servers
}

// canonicalFQDN trims trailing dots/whitespace, appends a single trailing
// dot, and lowercases, per spec.md §4.3.
func canonicalFQDN(domain string) string {
	d := strings.TrimRight(strings.TrimSpace(domain), ".")
	return strings.ToLower(d) + "."
}

// MxHostsForDomain returns the MX hosts for domain, in ascending
// preference order (ties broken by host ascending), per spec.md §4.3.
func (f *Facade) MxHostsForDomain(ctx context.Context, domain string) ([]string, error) {
	fqdn := canonicalFQDN(domain)
	key := "domain:" + fqdn

	if v, ok := f.cache.Get(key); ok {
		hosts, _ := v.([]string)
		return hosts, nil
	}

	if f.dnsDisabled {
		f.cache.Set(key, []string{}, 0)
		return nil, nil
	}

	recs, err := f.resolver.LookupMX(ctx, fqdn)
	if err != nil {
		if isNotFound(err) {
			f.cache.Set(key, []string{}, 0)
			return nil, nil
		}
		return nil, err
	}
	if len(recs) == 0 {
		f.cache.Set(key, []string{}, 0)
		return nil, nil
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Preference != recs[j].Preference {
			return recs[i].Preference < recs[j].Preference
		}
		return recs[i].Host < recs[j].Host
	})

	hosts := make([]string, len(recs))
	for i, r := range recs {
		hosts[i] = r.Host
	}
	f.cache.Set(key, hosts, 0)
	return hosts, nil
}

// MxHostsForEmail extracts the domain portion of email (rightmost '@'),
// converts it to ASCII if it's an IDN, and delegates to MxHostsForDomain.
func (f *Facade) MxHostsForEmail(ctx context.Context, email string) ([]string, error) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return nil, fmt.Errorf("dnsfacade: no '@' in %q", email)
	}
	domain := email[at+1:]

	ascii, err := syntax.ToASCII(domain)
	if err != nil {
		return nil, err
	}
	return f.MxHostsForDomain(ctx, ascii)
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if e, ok := err.(*net.DNSError); ok {
		dnsErr = e
		return dnsErr.IsNotFound
	}
	return false
}

// RBLResult is the outcome of checkRblDns for a listed address: the server
// that listed it, and the lookup URL a human can use to inspect the
// listing, per spec.md §3/§4.3.
type RBLResult struct {
	Server    string
	LookupURL string
}

// CheckRBL reverses ipv4's octets and queries every configured RBL server.
// The address is blacklisted iff every server returns a record; on
// blacklisted it returns the last matching server's result. IPv6 addresses
// are unsupported and the result is cached as "not listed" (false),
// matching the Open Question resolution in spec.md §9.
func (f *Facade) CheckRBL(ctx context.Context, ipv4 string) (*RBLResult, error) {
	reversed, ok := reverseIPv4(ipv4)
	if !ok {
		// Not a usable IPv4 literal (including IPv6): unsupported per spec,
		// cached as "not listed" under the raw input.
		f.cache.Set("rbl:"+ipv4, false, 0)
		return nil, nil
	}
	key := "rbl:" + reversed

	if v, ok := f.cache.Get(key); ok {
		if res, ok := v.(*RBLResult); ok {
			return res, nil
		}
		return nil, nil
	}

	if f.dnsDisabled || len(f.rblServers) == 0 {
		f.cache.Set(key, false, 0)
		return nil, nil
	}

	var last *RBLResult
	allListed := true
	for _, server := range f.rblServers {
		name := reversed + "." + server + "."
		_, err := f.resolver.LookupHost(ctx, name)
		if err != nil {
			allListed = false
			continue
		}
		last = &RBLResult{
			Server:    server,
			LookupURL: "http://" + server + "/lookup?ip=" + ipv4,
		}
	}

	if allListed && last != nil {
		f.cache.Set(key, last, 0)
		return last, nil
	}

	f.cache.Set(key, false, 0)
	return nil, nil
}

// reverseIPv4 reverses the four octets of an IPv4 address for RBL zone
// construction. Parsing is intentionally lenient (integer cast per octet),
// per spec.md §4.3, and returns ok=false for anything that isn't a
// four-octet numeric literal (including IPv6 addresses).
func reverseIPv4(ip string) (string, bool) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "", false
	}
	octets := make([]string, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		octets[3-i] = strconv.Itoa(n)
	}
	return strings.Join(octets, "."), true
}
