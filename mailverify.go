// Package mailverify probes whether an email address is likely to accept
// mail, escalating through four levels of checking: syntax, DNS MX
// availability, SMTP reachability, and RCPT-level acceptance. It is
// grounded on the teacher's internal/courier.SMTP (dial, HELO, escalate
// through a list of MX hosts in preference order, always close the
// connection) generalized from "deliver this message" to "how far does
// this address get".
package mailverify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chasquid-tools/mailverify/internal/address"
	"github.com/chasquid-tools/mailverify/internal/blacklist"
	"github.com/chasquid-tools/mailverify/internal/dnsfacade"
	"github.com/chasquid-tools/mailverify/internal/expvarom"
	"github.com/chasquid-tools/mailverify/internal/smtpconn"
	"github.com/chasquid-tools/mailverify/internal/syntax"
	"github.com/chasquid-tools/mailverify/internal/trace"
	"github.com/chasquid-tools/mailverify/internal/vlevel"
)

// Monitoring counters, mirroring the shape of the teacher's
// tlsCount/slcResults pattern in internal/courier/smtp.go: op-trivia that
// must never affect verification results, only describe them afterwards.
var (
	probeResults = expvarom.NewMap("mailverify/probeResults",
		"level", "verification results by reached ValidationLevel")
	mxErrors = expvarom.NewInt("mailverify/mxErrors",
		"MX lookup failures across all Verify calls")
)

// DefaultTimeout is used for both the TCP connect and per-read idle
// timeout on the SMTP session, unless overridden via SetTimeout.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRecipientsPerConnection caps how many RCPT TOs are attempted
// over a single SMTP session during bulk verification, per spec.md §4.2.
const DefaultMaxRecipientsPerConnection = 50

// Verifier drives the verification pipeline against one or more target
// addresses. A Verifier is not safe for concurrent use: per the
// concurrency model, each in-flight verification needs its own session
// and its own DNS facade, so callers running verifications in parallel
// should use one Verifier per goroutine (they may safely share the same
// underlying cache, which is itself required to be concurrency-safe).
type Verifier struct {
	DNS       *dnsfacade.Facade
	Blacklist *blacklist.List

	validationLevel            vlevel.Level
	helloDomain                string
	mailFrom                   string
	timeout                    time.Duration
	maxRecipientsPerConnection int

	mu           sync.Mutex
	transferLogs map[string][]smtpconn.LogEntry
}

// New returns a Verifier using dns for MX lookups, with the defaults from
// spec.md §4.2: validationLevel=SendAttempt, timeout=30s,
// maxRecipientsPerConnection=50.
func New(dns *dnsfacade.Facade) *Verifier {
	return &Verifier{
		DNS:                        dns,
		validationLevel:            vlevel.SendAttempt,
		timeout:                    DefaultTimeout,
		maxRecipientsPerConnection: DefaultMaxRecipientsPerConnection,
		transferLogs:               map[string][]smtpconn.LogEntry{},
	}
}

// SetValidationLevel sets how deep verification should go. Valid range is
// [SyntaxCheck, SendAttempt]; OK is a result, not a requestable depth.
func (v *Verifier) SetValidationLevel(l vlevel.Level) error {
	if err := vlevel.BoundsCheck(l); err != nil {
		return argErrorf("%v", err)
	}
	v.validationLevel = l
	return nil
}

// SetHelloDomain overrides the domain sent in EHLO/HELO; empty means use
// the recipient's own domain.
func (v *Verifier) SetHelloDomain(domain string) { v.helloDomain = domain }

// SetMailFrom overrides the sender address used in MAIL FROM; empty means
// "user@" + the effective hello domain.
func (v *Verifier) SetMailFrom(from string) { v.mailFrom = from }

// SetTimeout overrides the TCP connect timeout and per-read idle timeout
// on the SMTP session.
func (v *Verifier) SetTimeout(d time.Duration) { v.timeout = d }

// SetMaxRecipientsPerConnection overrides how many RCPT TOs are attempted
// per SMTP session during bulk verification. Must be at least 1.
func (v *Verifier) SetMaxRecipientsPerConnection(n int) error {
	if n < 1 {
		return argErrorf("maxRecipientsPerConnection must be >= 1, got %d", n)
	}
	v.maxRecipientsPerConnection = n
	return nil
}

// TransferLog returns the most recently recorded SMTP transfer log for
// host, if this Verifier has probed it.
func (v *Verifier) TransferLog(host string) []smtpconn.LogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transferLogs[host]
}

func (v *Verifier) recordTransferLog(host string, log []smtpconn.LogEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.transferLogs[host] = log
}

// Verify probes email and returns how deep the check got: the deepest
// level reached before something failed, or OK if the requested depth was
// reached without a failure. email must be a non-empty string, else an
// ArgumentError is returned with no network I/O performed.
func (v *Verifier) Verify(ctx context.Context, email string) (result vlevel.Level, err error) {
	if strings.TrimSpace(email) == "" {
		return 0, argErrorf("email must not be empty")
	}

	tr := trace.New("Verify", email)
	defer tr.Finish()
	defer func() { probeResults.Add(result.String(), 1) }()

	current := vlevel.SyntaxCheck

	if v.Blacklist != nil && v.Blacklist.IsBanned(email) {
		tr.Printf("address is blacklisted")
		return current, nil
	}

	if !syntax.CheckEmail(email, false) {
		tr.Printf("syntax check failed")
		return current, nil
	}
	if v.validationLevel == vlevel.SyntaxCheck {
		return vlevel.OK, nil
	}
	current = vlevel.DnsQuery

	_, domain := address.Split(email)

	mxHosts, lookupErr := v.DNS.MxHostsForEmail(ctx, email)
	if lookupErr != nil {
		mxErrors.Add(1)
		tr.Debugf("MX lookup for %q failed: %v", domain, lookupErr)
	}
	if len(mxHosts) == 0 {
		tr.Printf("no MX records for %q", domain)
		return current, nil
	}
	if v.validationLevel == vlevel.DnsQuery {
		return vlevel.OK, nil
	}
	current = vlevel.SmtpConnection

	anyConnected := false
	for _, host := range mxHosts {
		ok, connected := v.probeMx(ctx, host, domain, email, tr)
		if connected {
			anyConnected = true
		}
		if ok {
			return vlevel.OK, nil
		}
	}

	if anyConnected {
		current = vlevel.SendAttempt
	}
	return current, nil
}
