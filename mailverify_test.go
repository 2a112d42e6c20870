package mailverify

import (
	"context"
	"testing"

	"github.com/chasquid-tools/mailverify/internal/cache"
	"github.com/chasquid-tools/mailverify/internal/dnsfacade"
	"github.com/chasquid-tools/mailverify/internal/vlevel"
)

func newTestVerifier(t *testing.T, mx map[string][]dnsfacade.MxRecord) *Verifier {
	t.Helper()
	resolver := &fakeResolver{mx: mx}
	facade := dnsfacade.New(resolver, cache.NewMap())
	return New(facade)
}

// Scenario 1: syntax fail, short-circuit. No DNS or TCP activity: the
// fake resolver's map is empty, so any lookup would return no records,
// but verify should never get that far.
func TestVerifySyntaxFailShortCircuits(t *testing.T) {
	v := newTestVerifier(t, map[string][]dnsfacade.MxRecord{})

	level, err := v.Verify(context.Background(), "not-an-email")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if level != vlevel.SyntaxCheck {
		t.Errorf("level = %v, want SyntaxCheck", level)
	}
}

// Scenario 2: no MX.
func TestVerifyNoMX(t *testing.T) {
	v := newTestVerifier(t, map[string][]dnsfacade.MxRecord{
		"no-mx.test.": {},
	})

	level, err := v.Verify(context.Background(), "user@no-mx.test")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if level != vlevel.DnsQuery {
		t.Errorf("level = %v, want DnsQuery", level)
	}

	if err := v.SetValidationLevel(vlevel.SyntaxCheck); err != nil {
		t.Fatalf("SetValidationLevel: %v", err)
	}
	level, err = v.Verify(context.Background(), "user@no-mx.test")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if level != vlevel.OK {
		t.Errorf("level = %v, want OK at SyntaxCheck depth", level)
	}
}

// Scenario 3: connect-only success.
func TestVerifyConnectOnlySuccess(t *testing.T) {
	server := newFakeSMTPServer(t, map[string]string{
		"_welcome": "220 mx.test greeting\r\n",
	})
	host, port := server.hostPort()
	restorePort := smtpPort
	smtpPort = port
	defer func() { smtpPort = restorePort }()

	v := newTestVerifier(t, map[string][]dnsfacade.MxRecord{
		"mx.example.": {{Host: host, Preference: 10}},
	})
	if err := v.SetValidationLevel(vlevel.SmtpConnection); err != nil {
		t.Fatalf("SetValidationLevel: %v", err)
	}

	level, err := v.Verify(context.Background(), "u@mx.example")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if level != vlevel.OK {
		t.Fatalf("level = %v, want OK", level)
	}

	log := v.TransferLog(host)
	if len(log) != 1 {
		t.Fatalf("transfer log has %d entries, want 1: %+v", len(log), log)
	}
	if log[0].Command != "<CONNECT>" || log[0].Code != 220 || !log[0].Success {
		t.Errorf("transfer log entry = %+v, want <CONNECT> 220 success", log[0])
	}
}

// Scenario 4: full send-attempt success, lower-preference MX tried first
// and the higher-preference one never contacted.
func TestVerifyFullSendAttemptSuccessPrefersLowerPreference(t *testing.T) {
	server := newFakeSMTPServer(t, map[string]string{
		"_welcome":            "220 b.mx greeting\r\n",
		"EHLO send.example":     "250 b.mx\r\n",
		"MAIL FROM:<user@send.example>": "250 2.1.0 ok\r\n",
		"RCPT TO:<u@send.example>":      "250 2.1.5 ok\r\n",
		"QUIT":                 "221 bye\r\n",
	})
	host, port := server.hostPort()
	restorePort := smtpPort
	smtpPort = port
	defer func() { smtpPort = restorePort }()

	v := newTestVerifier(t, map[string][]dnsfacade.MxRecord{
		"send.example.": {
			{Host: "unreachable.invalid", Preference: 20},
			{Host: host, Preference: 10},
		},
	})

	level, err := v.Verify(context.Background(), "u@send.example")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if level != vlevel.OK {
		t.Fatalf("level = %v, want OK", level)
	}

	if log := v.TransferLog("unreachable.invalid"); log != nil {
		t.Errorf("higher-preference MX was contacted: %+v", log)
	}
	if log := v.TransferLog(host); len(log) == 0 {
		t.Errorf("lower-preference MX was never contacted")
	}
}

// Scenario 5: RCPT rejected.
func TestVerifyRcptRejected(t *testing.T) {
	server := newFakeSMTPServer(t, map[string]string{
		"_welcome":          "220 mx.test greeting\r\n",
		"EHLO send.example":  "250 mx.test\r\n",
		"MAIL FROM:<user@send.example>": "250 2.1.0 ok\r\n",
		"RCPT TO:<u@send.example>": "550 5.1.1 no such user\r\n",
		"QUIT":              "221 bye\r\n",
	})
	host, port := server.hostPort()
	restorePort := smtpPort
	smtpPort = port
	defer func() { smtpPort = restorePort }()

	v := newTestVerifier(t, map[string][]dnsfacade.MxRecord{
		"send.example.": {{Host: host, Preference: 10}},
	})

	level, err := v.Verify(context.Background(), "u@send.example")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if level != vlevel.SendAttempt {
		t.Fatalf("level = %v, want SendAttempt", level)
	}
}

// Monotonicity: if verify at level L returns OK, it also returns OK at
// every level below L; if it returns a level k < OK, it returns OK when
// the requested level is dropped to k - 1.
func TestVerifyMonotoneInValidationLevel(t *testing.T) {
	v := newTestVerifier(t, map[string][]dnsfacade.MxRecord{
		"no-mx.test.": {},
	})

	if err := v.SetValidationLevel(vlevel.SendAttempt); err != nil {
		t.Fatalf("SetValidationLevel: %v", err)
	}
	level, _ := v.Verify(context.Background(), "user@no-mx.test")
	if level != vlevel.DnsQuery {
		t.Fatalf("level = %v, want DnsQuery", level)
	}

	if err := v.SetValidationLevel(vlevel.SyntaxCheck); err != nil {
		t.Fatalf("SetValidationLevel: %v", err)
	}
	level, _ = v.Verify(context.Background(), "user@no-mx.test")
	if level != vlevel.OK {
		t.Fatalf("level at k-1 = %v, want OK", level)
	}
}

func TestVerifyRejectsEmptyAddress(t *testing.T) {
	v := newTestVerifier(t, nil)
	_, err := v.Verify(context.Background(), "")
	if err == nil {
		t.Fatalf("Verify(\"\") succeeded, want ArgumentError")
	}
	if _, ok := err.(*ArgumentError); !ok {
		t.Errorf("error type = %T, want *ArgumentError", err)
	}
}

func TestSetMaxRecipientsPerConnectionRejectsZero(t *testing.T) {
	v := newTestVerifier(t, nil)
	if err := v.SetMaxRecipientsPerConnection(0); err == nil {
		t.Errorf("SetMaxRecipientsPerConnection(0) succeeded, want error")
	}
}
