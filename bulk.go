package mailverify

import (
	"context"
	"fmt"

	"github.com/chasquid-tools/mailverify/internal/address"
	"github.com/chasquid-tools/mailverify/internal/syntax"
	"github.com/chasquid-tools/mailverify/internal/trace"
	"github.com/chasquid-tools/mailverify/internal/vlevel"
)

// VerifyBulk verifies many addresses at once, amortizing one SMTP session
// across every recipient that shares a domain, per spec.md §4.2. Every
// address in addresses appears exactly once in the returned map, keyed by
// its lowercased form; addresses that fail syntax are recorded as
// SyntaxCheck and never attempted further.
func (v *Verifier) VerifyBulk(ctx context.Context, addresses []string) (map[string]vlevel.Level, error) {
	results := make(map[string]vlevel.Level, len(addresses))

	coll := address.NewCollection()
	for _, raw := range addresses {
		key := address.CanonicalizeAddress(raw)
		if !syntax.CheckEmail(raw, false) {
			results[key] = vlevel.SyntaxCheck
			continue
		}
		ea, err := address.New(raw)
		if err != nil {
			results[key] = vlevel.SyntaxCheck
			continue
		}
		coll.Add(ea)
	}

	tr := trace.New("VerifyBulk", fmt.Sprintf("%d addresses", len(addresses)))
	defer tr.Finish()

	if v.validationLevel == vlevel.SyntaxCheck {
		coll.Iterate(func(a address.EmailAddress) {
			results[a.CanonicalKey()] = vlevel.OK
		})
		return results, nil
	}

	for _, domain := range coll.Domains() {
		emails := coll.EmailsInDomain(domain)
		v.verifyBulkDomain(ctx, domain, emails, results, tr)
	}

	return results, nil
}

// verifyBulkDomain handles one domain's worth of recipients: DNS lookup,
// the requested-depth short circuits, and the "claim a host, then chunk"
// session reuse described in spec.md §4.2 step 4 and the ordering
// guarantee in §5 (the first MX to accept EHLO + MAIL FROM claims every
// recipient of the domain; later MXs are never tried once that happens).
func (v *Verifier) verifyBulkDomain(ctx context.Context, domain string, emails []string, results map[string]vlevel.Level, tr *trace.Trace) {
	mxHosts, err := v.DNS.MxHostsForDomain(ctx, domain)
	if err != nil || len(mxHosts) == 0 {
		setAll(results, emails, vlevel.DnsQuery)
		return
	}
	if v.validationLevel == vlevel.DnsQuery {
		setAll(results, emails, vlevel.OK)
		return
	}

	chunks := chunkEmails(emails, v.maxRecipientsPerConnection)
	if len(chunks) == 0 {
		return
	}

	var claimedHost string
	current := vlevel.SmtpConnection
	anyConnected := false

	for _, host := range mxHosts {
		connected, mailAccepted, perRecipient := v.probeAddressForBulk(ctx, host, domain, chunks[0], tr)
		if !connected {
			tr.Debugf("%s: connect failed", host)
			continue
		}
		anyConnected = true
		if v.validationLevel == vlevel.SmtpConnection {
			setAll(results, emails, vlevel.OK)
			return
		}
		if !mailAccepted {
			continue
		}

		claimedHost = host
		applyResults(results, perRecipient)
		break
	}

	if claimedHost == "" {
		if anyConnected {
			current = vlevel.SendAttempt
		}
		setAll(results, emails, current)
		return
	}

	for _, chunk := range chunks[1:] {
		connected, mailAccepted, perRecipient := v.probeAddressForBulk(ctx, claimedHost, domain, chunk, tr)
		if !connected {
			setAll(results, chunk, vlevel.SmtpConnection)
			continue
		}
		if !mailAccepted {
			setAll(results, chunk, vlevel.SendAttempt)
			continue
		}
		applyResults(results, perRecipient)
	}
}

// chunkEmails splits emails into groups of at most size, preserving
// order. A fresh SMTP session is opened per chunk, per spec.md §4.2.
func chunkEmails(emails []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var chunks [][]string
	for i := 0; i < len(emails); i += size {
		end := i + size
		if end > len(emails) {
			end = len(emails)
		}
		chunks = append(chunks, emails[i:end])
	}
	return chunks
}

func setAll(results map[string]vlevel.Level, emails []string, level vlevel.Level) {
	for _, e := range emails {
		results[e] = level
	}
}

func applyResults(results map[string]vlevel.Level, perRecipient map[string]bool) {
	for e, accepted := range perRecipient {
		if accepted {
			results[e] = vlevel.OK
		} else {
			results[e] = vlevel.SendAttempt
		}
	}
}
