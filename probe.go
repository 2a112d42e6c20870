package mailverify

import (
	"context"

	"github.com/chasquid-tools/mailverify/internal/smtpconn"
	"github.com/chasquid-tools/mailverify/internal/trace"
	"github.com/chasquid-tools/mailverify/internal/vlevel"
)

// smtpPort is the port used for outgoing SMTP connections. It is a var,
// not a const, so tests can point probes at a local fake server.
var smtpPort = smtpconn.DefaultPort

// probeMx runs one MX host through as much of the SMTP escalation as the
// configured validation level calls for, per spec.md §4.2. Once the
// session is connected, it always captures the resulting transfer log
// under host and terminates the session before returning (a plain close
// at SmtpConnection depth, QUIT otherwise); a failed connect records no
// log. It returns (accepted, connected):
// connected is true iff the TCP session was established at all, which
// the caller uses to attribute SmtpConnection vs. SendAttempt when every
// MX is exhausted.
func (v *Verifier) probeMx(ctx context.Context, host, domain, email string, tr *trace.Trace) (bool, bool) {
	heloHost := v.helloDomain
	if heloHost == "" {
		heloHost = domain
	}
	sender := v.mailFrom
	if sender == "" {
		sender = "user@" + heloHost
	}

	conn := smtpconn.New()
	conn.Timeout = v.timeout

	if !conn.Connect(host, smtpPort, v.timeout) {
		tr.Debugf("%s: connect failed: %v", host, conn.LastError())
		return false, false
	}

	if v.validationLevel == vlevel.SmtpConnection {
		v.recordTransferLog(host, conn.TransferLog())
		conn.Close()
		return true, true
	}

	ok := conn.Hello(heloHost) && conn.MailFrom(sender) && conn.RcptTo(email)
	if !ok {
		tr.Debugf("%s: %v", host, conn.LastError())
	}

	conn.Quit()
	v.recordTransferLog(host, conn.TransferLog())

	return ok, true
}

// probeAddressForBulk is probeMx's counterpart for the bulk path: it opens
// one session against host, runs EHLO/HELO and MAIL FROM once, then RCPT
// TO for each recipient in turn, per spec.md §4.2 step 4. It returns
// (connected, mailAccepted, perRecipient). When mailAccepted is false, the
// caller should try the next MX; when it's true, every recipient in
// recipients has been attempted and this chunk is done, regardless of how
// many of them were individually accepted.
func (v *Verifier) probeAddressForBulk(ctx context.Context, host, domain string, recipients []string, tr *trace.Trace) (connected bool, mailAccepted bool, perRecipient map[string]bool) {
	heloHost := v.helloDomain
	if heloHost == "" {
		heloHost = domain
	}
	sender := v.mailFrom
	if sender == "" {
		sender = "user@" + heloHost
	}

	conn := smtpconn.New()
	conn.Timeout = v.timeout

	if !conn.Connect(host, smtpPort, v.timeout) {
		tr.Debugf("%s: connect failed: %v", host, conn.LastError())
		return false, false, nil
	}

	if v.validationLevel == vlevel.SmtpConnection {
		v.recordTransferLog(host, conn.TransferLog())
		conn.Close()
		return true, false, nil
	}

	if !conn.Hello(heloHost) || !conn.MailFrom(sender) {
		tr.Debugf("%s: %v", host, conn.LastError())
		v.recordTransferLog(host, conn.TransferLog())
		conn.Quit()
		return true, false, nil
	}

	perRecipient = make(map[string]bool, len(recipients))
	for _, e := range recipients {
		perRecipient[e] = conn.RcptTo(e)
	}

	conn.Quit()
	v.recordTransferLog(host, conn.TransferLog())

	return true, true, perRecipient
}
