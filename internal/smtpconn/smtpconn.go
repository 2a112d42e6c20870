// Package smtpconn implements the client side of a single SMTP session
// (RFC 5321), just enough of it to probe a server for recipient
// acceptance: EHLO/HELO, MAIL FROM, RCPT TO, NOOP, RSET, VRFY, STARTTLS
// and QUIT, over a connection whose every command/response pair is kept
// in an append-only transfer log.
//
// It does not wrap net/smtp, unlike the teacher's own internal/smtp: that
// package hides the raw response behind net/textproto's own multi-line
// reader and throws it away once the status code is extracted, but a
// verifier needs the literal wire exchange (code, enhanced code and
// detail) for every command it sends, not just a pass/fail. So this
// package re-implements the read loop and response grammar directly on
// top of net.Conn and bufio.Reader.
package smtpconn

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State is the session's connection/protocol state.
type State int

const (
	// Disconnected: no socket open.
	Disconnected State = iota
	// Connected: socket open, may or may not have said hello yet.
	Connected
	// Closed: session is done, via Quit or Close.
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultPort is the standard SMTP port, used when Connect is given 0.
const DefaultPort = 25

// DefaultTimeLimit bounds the total time spent reading any single
// response, regardless of how much progress the idle timeout allows.
const DefaultTimeLimit = 300 * time.Second

// LogEntry is one command/response pair in a session's transfer log.
type LogEntry struct {
	Command  string
	Response string
	Code     int
	Success  bool
}

// LastError is the most recent failure recorded on the session, if any.
type LastError struct {
	Error  string
	Detail string
	Code   int
	CodeEx string
}

func (e *LastError) String() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (code=%d codeEx=%q detail=%q)",
		e.Error, e.Code, e.CodeEx, e.Detail)
}

// responseLine matches a single SMTP reply line: a 3-digit code, a
// continuation/terminator marker, an optional enhanced status code, and
// the free-text detail.
var responseLine = regexp.MustCompile(`^(\d{3})([ -])(?:(\d\.\d{1,3}\.\d{1,3})\s+)?(.*)$`)

// Conn is a single SMTP client session. It is not safe for concurrent
// use: one verification drives one Conn sequentially, per the one
// session per task scheduling model.
type Conn struct {
	conn  net.Conn
	r     *bufio.Reader
	state State

	host     string
	greeted  bool
	helloCmd string // "EHLO" or "HELO", whichever succeeded

	caps map[string]any

	transferLog []LogEntry
	lastErr     *LastError

	// Timeout bounds per-read idle time; TimeLimit bounds the total time
	// spent accumulating a single (possibly multi-line) response.
	Timeout   time.Duration
	TimeLimit time.Duration
}

// New returns an unconnected session. Timeout and TimeLimit may be set
// before calling Connect; TimeLimit defaults to DefaultTimeLimit if left
// zero.
func New() *Conn {
	return &Conn{state: Disconnected, TimeLimit: DefaultTimeLimit}
}

// State reports the session's current state.
func (c *Conn) State() State { return c.state }

// Connected reports whether the session has an open socket.
func (c *Conn) Connected() bool { return c.state == Connected }

// Greeted reports whether EHLO/HELO has completed successfully.
func (c *Conn) Greeted() bool { return c.greeted }

// TransferLog returns the session's append-only command/response log.
func (c *Conn) TransferLog() []LogEntry { return c.transferLog }

// LastError returns the most recently recorded failure, or nil.
func (c *Conn) LastError() *LastError { return c.lastErr }

// Connect dials host:port (port 0 means DefaultPort) and reads the
// server's opening announcement. It returns true iff the socket was
// created; a non-220 greeting is recorded in the transfer log but does
// not itself fail the connect, since the next command will fail
// naturally against a server that never greeted properly.
func (c *Conn) Connect(host string, port int, connectTimeout time.Duration) bool {
	if c.state == Connected {
		c.fail("connect", "already connected", 0, "")
		return false
	}
	if port == 0 {
		port = DefaultPort
	}

	c.transferLog = nil
	c.lastErr = nil
	c.host = host
	c.greeted = false
	c.helloCmd = ""
	c.caps = nil

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		c.fail("connect", err.Error(), 0, "")
		return false
	}

	c.conn = conn
	c.r = bufio.NewReader(conn)
	c.state = Connected

	raw, err := c.readResponse()
	if err != nil {
		c.log("<CONNECT>", raw, 0, false)
		return true
	}
	code, _, _ := parseResponse(raw)
	c.log("<CONNECT>", raw, code, code == 220)
	return true
}

// Close terminates the session, closing the socket if one is open.
// Idempotent: closing an already-closed or never-connected session is a
// no-op.
func (c *Conn) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = Closed
}

// Quit sends QUIT (expecting 221) and then closes the session
// unconditionally, regardless of whether the command succeeded.
func (c *Conn) Quit() bool {
	ok := c.sendCommand("QUIT", "QUIT", []int{221})
	c.Close()
	return ok
}

// Hello sends EHLO host, falling back to HELO host on any non-250
// response. On success it parses the response into a capability map,
// keyed by capability name; SIZE maps to an int, AUTH to a (possibly
// empty) list of mechanism names, and everything else to literal true.
// The greeting line itself is stored under "EHLO" or "HELO" (whichever
// was sent), with the server's identifier token as its value.
func (c *Conn) Hello(host string) bool {
	if ok := c.sendHello("EHLO", host); ok {
		return true
	}
	return c.sendHello("HELO", host)
}

func (c *Conn) sendHello(verb, host string) bool {
	raw, ok := c.exchange(verb, verb+" "+host, []int{250})
	if !ok {
		return false
	}

	c.helloCmd = verb
	c.greeted = true
	c.caps = parseCapabilities(verb, raw)
	return true
}

// GetServerCapability resolves a previously-parsed EHLO/HELO capability
// by name. It reports (value, found).
func (c *Conn) GetServerCapability(name string) (any, bool) {
	if c.caps == nil {
		c.fail("capability", "No HELO/EHLO was sent", 0, "")
		return nil, false
	}
	if v, ok := c.caps[name]; ok {
		return v, true
	}
	if name == "HELO" && c.helloCmd == "EHLO" {
		if v, ok := c.caps["EHLO"]; ok {
			return v, true
		}
	}
	if name == "EHLO" && c.helloCmd != "EHLO" {
		return false, true
	}
	if c.helloCmd == "HELO" {
		c.fail("capability", "HELO handshake was used; no extension info", 0, "")
		return nil, false
	}
	return nil, false
}

// MailFrom sends MAIL FROM:<addr>, expecting 250.
func (c *Conn) MailFrom(addr string) bool {
	return c.sendCommand("MAIL FROM", fmt.Sprintf("MAIL FROM:<%s>", addr), []int{250})
}

// RcptTo sends RCPT TO:<addr>, accepting 250 or 251.
func (c *Conn) RcptTo(addr string) bool {
	return c.sendCommand("RCPT TO", fmt.Sprintf("RCPT TO:<%s>", addr), []int{250, 251})
}

// Noop sends NOOP, expecting 250.
func (c *Conn) Noop() bool {
	return c.sendCommand("NOOP", "NOOP", []int{250})
}

// Rset sends RSET, expecting 250.
func (c *Conn) Rset() bool {
	return c.sendCommand("RSET", "RSET", []int{250})
}

// Vrfy sends VRFY name, accepting 250 or 251.
func (c *Conn) Vrfy(name string) bool {
	return c.sendCommand("VRFY", "VRFY "+name, []int{250, 251})
}

// StartTLS sends STARTTLS, expecting 220, then upgrades the connection
// to TLS client mode (TLS 1.2 minimum). It returns true iff both the
// command and the handshake succeeded. Capabilities discovered before
// STARTTLS are discarded; the caller is responsible for re-issuing
// Hello once the upgrade completes.
func (c *Conn) StartTLS(config *tls.Config) bool {
	if !c.sendCommand("STARTTLS", "STARTTLS", []int{220}) {
		return false
	}

	cfg := config
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if cfg.ServerName == "" {
		cfg.ServerName = c.host
	}

	tlsConn := tls.Client(c.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		c.fail("STARTTLS", err.Error(), 0, "")
		return false
	}

	c.conn = tlsConn
	c.r = bufio.NewReader(tlsConn)
	c.caps = nil
	c.greeted = false
	return true
}

// sendCommand sends raw (followed by CRLF) and declares success iff the
// parsed status code is one of expect. CR/LF anywhere in raw is rejected
// before anything is written, to prevent command/argument injection.
func (c *Conn) sendCommand(name, raw string, expect []int) bool {
	_, ok := c.exchange(name, raw, expect)
	return ok
}

// exchange is sendCommand's implementation, additionally returning the
// raw response text so Hello can reparse it into capabilities.
func (c *Conn) exchange(name, raw string, expect []int) (string, bool) {
	if c.state != Connected {
		c.fail(name, name+" command failed", 0, "")
		return "", false
	}
	if strings.ContainsAny(raw, "\r\n") {
		c.fail(name, name+" command failed", 0, "")
		return "", false
	}

	if _, err := c.conn.Write([]byte(raw + "\r\n")); err != nil {
		c.fail(name, err.Error(), 0, "")
		c.log(raw, "", 0, false)
		return "", false
	}

	resp, err := c.readResponse()
	if err != nil && resp == "" {
		c.fail(name, name+" command failed", 0, "")
		c.log(raw, resp, 0, false)
		return "", false
	}

	code, codeEx, detail := parseResponse(resp)
	success := contains(expect, code)
	c.log(raw, resp, code, success)

	if !success {
		c.lastErr = &LastError{
			Error:  name + " command failed",
			Detail: detail,
			Code:   code,
			CodeEx: codeEx,
		}
		return resp, false
	}
	return resp, true
}

// readResponse reads lines until one is terminal: either its 4th
// character is a space, or the line is 3 characters or shorter (per RFC
// 5321 §4.2, a malformed but common degenerate case). Reads are bounded
// by the idle Timeout and, across the whole response, by TimeLimit.
func (c *Conn) readResponse() (string, error) {
	limit := c.TimeLimit
	if limit == 0 {
		limit = DefaultTimeLimit
	}
	deadline := time.Now().Add(limit)

	var lines []string
	for {
		readDeadline := deadline
		if c.Timeout > 0 {
			if idle := time.Now().Add(c.Timeout); idle.Before(readDeadline) {
				readDeadline = idle
			}
		}
		c.conn.SetReadDeadline(readDeadline)

		line, err := c.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			return strings.Join(lines, "\r\n"), err
		}

		if len(line) <= 3 || (len(line) >= 4 && line[3] == ' ') {
			break
		}
	}
	return strings.Join(lines, "\r\n"), nil
}

// parseResponse extracts (code, codeEx, detail) from a raw, possibly
// multi-line, SMTP response. When the leading line doesn't match the
// expected NNN[- ] grammar, it falls back to treating the first three
// characters as the code and everything from index 4 on as detail.
func parseResponse(raw string) (code int, codeEx string, detail string) {
	if raw == "" {
		return 0, "", ""
	}

	lines := strings.Split(raw, "\r\n")
	first := lines[0]

	m := responseLine.FindStringSubmatch(first)
	if m == nil {
		code, _ = strconv.Atoi(firstN(first, 3))
		if len(first) > 4 {
			detail = first[4:]
		}
		return code, "", joinDetail(detail, lines[1:])
	}

	code, _ = strconv.Atoi(m[1])
	codeEx = m[3]
	detail = m[4]
	return code, codeEx, joinDetail(detail, lines[1:])
}

// joinDetail appends subsequent lines' detail (each stripped of its own
// NNN[- ]/enhanced-code prefix) to the first line's detail.
func joinDetail(first string, rest []string) string {
	out := []string{first}
	for _, l := range rest {
		if m := responseLine.FindStringSubmatch(l); m != nil {
			out = append(out, m[4])
		} else if len(l) > 4 {
			out = append(out, l[4:])
		} else {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// parseCapabilities turns a raw EHLO/HELO response into a capability
// map. The greeting line is stored under greetingKey with the server's
// identifier as its value; each subsequent line contributes one
// capability, keyed by its first token.
func parseCapabilities(greetingKey, raw string) map[string]any {
	caps := map[string]any{}
	lines := strings.Split(raw, "\r\n")
	if len(lines) == 0 {
		return caps
	}

	_, _, greetDetail := parseResponse(lines[0])
	fields := strings.Fields(greetDetail)
	if len(fields) > 0 {
		caps[greetingKey] = fields[0]
	} else {
		caps[greetingKey] = ""
	}

	for _, l := range lines[1:] {
		_, _, detail := parseResponse(l)
		fields := strings.Fields(detail)
		if len(fields) == 0 {
			continue
		}

		name := strings.ToUpper(fields[0])
		opts := fields[1:]

		switch name {
		case "SIZE":
			n := 0
			if len(opts) > 0 {
				n, _ = strconv.Atoi(opts[0])
			}
			caps[name] = n
		case "AUTH":
			caps[name] = append([]string{}, opts...)
		default:
			caps[name] = true
		}
	}
	return caps
}

func (c *Conn) log(command, response string, code int, success bool) {
	c.transferLog = append(c.transferLog, LogEntry{
		Command:  command,
		Response: response,
		Code:     code,
		Success:  success,
	})
}

func (c *Conn) fail(context, msg string, code int, codeEx string) {
	c.lastErr = &LastError{Error: msg, Code: code, CodeEx: codeEx}
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
