// mailverify-check is a command-line tool for probing whether one or more
// email addresses are likely to accept mail, without actually sending
// anything.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"blitiri.com.ar/go/log"

	"github.com/chasquid-tools/mailverify"
	"github.com/chasquid-tools/mailverify/internal/cache"
	"github.com/chasquid-tools/mailverify/internal/dnsfacade"
	"github.com/chasquid-tools/mailverify/internal/vlevel"
)

var (
	level = flag.String("level", "SendAttempt",
		"how deep to verify: SyntaxCheck, DnsQuery, SmtpConnection, SendAttempt")
	helloDomain = flag.String("hello_domain", "",
		"domain to send in EHLO/HELO; defaults to the recipient's own domain")
	mailFrom = flag.String("mail_from", "",
		"sender address to use in MAIL FROM; defaults to user@<hello domain>")
	timeout = flag.Duration("timeout", mailverify.DefaultTimeout,
		"TCP connect and per-read idle timeout")
	maxRecipients = flag.Int("max_recipients_per_connection",
		mailverify.DefaultMaxRecipientsPerConnection,
		"cap on RCPT TOs attempted over a single SMTP session during bulk checks")
	bulk = flag.Bool("bulk", false,
		"read one address per line from stdin and verify them all, amortizing "+
			"sessions per domain, instead of verifying a single argv address")
)

func main() {
	flag.Parse()
	log.Init()

	l, err := levelFromFlag(*level)
	if err != nil {
		log.Fatalf("%v", err)
	}

	dns := dnsfacade.New(dnsfacade.NewNetResolver(), cache.NewMap())
	v := mailverify.New(dns)
	mustSet(v.SetValidationLevel(l))
	v.SetHelloDomain(*helloDomain)
	v.SetMailFrom(*mailFrom)
	v.SetTimeout(*timeout)
	mustSet(v.SetMaxRecipientsPerConnection(*maxRecipients))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *bulk {
		runBulk(ctx, v)
		return
	}

	addr := flag.Arg(0)
	if addr == "" {
		log.Fatalf("usage: mailverify-check [flags] <address>  (or -bulk < addresses.txt)")
	}

	result, err := v.Verify(ctx, addr)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("%s\t%s\n", addr, result)
}

func runBulk(ctx context.Context, v *mailverify.Verifier) {
	var addrs []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("reading stdin: %v", err)
	}

	results, err := v.VerifyBulk(ctx, addrs)
	if err != nil {
		log.Fatalf("%v", err)
	}

	for _, a := range addrs {
		fmt.Printf("%s\t%s\n", a, results[strings.ToLower(a)])
	}
}

func levelFromFlag(s string) (vlevel.Level, error) {
	switch strings.ToLower(s) {
	case "syntaxcheck":
		return vlevel.SyntaxCheck, nil
	case "dnsquery":
		return vlevel.DnsQuery, nil
	case "smtpconnection":
		return vlevel.SmtpConnection, nil
	case "sendattempt":
		return vlevel.SendAttempt, nil
	default:
		return 0, fmt.Errorf("unknown -level %q", s)
	}
}

func mustSet(err error) {
	if err != nil {
		log.Fatalf("%v", err)
	}
}
