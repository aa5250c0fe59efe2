package dkim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
)

// signedHeaders is the fixed set of headers covered by every signature,
// in signing order. Headers absent from the message are skipped.
var signedHeaders = []string{"from", "to", "subject", "date", "mime-version", "content-type"}

// Options configures a Signer. Domain and Selector are required; the
// canonicalization fields default to relaxed (header) and simple (body).
type Options struct {
	Domain      string
	Selector    string
	HeaderCanon string
	BodyCanon   string
}

// Signer produces DKIM-Signature header values for outbound messages.
type Signer struct {
	domain      string
	selector    string
	headerCanon string
	bodyCanon   string
	key         *rsa.PrivateKey
	now         func() time.Time
}

// NewSigner parses the PEM-encoded RSA private key and validates the
// options. now may be nil; it exists so tests can pin the t= tag.
func NewSigner(opts Options, keyPEM []byte, now func() time.Time) (*Signer, error) {
	if opts.Domain == "" {
		return nil, &domain.ConfigurationError{Field: "dkim.domain", Reason: "required"}
	}
	if opts.Selector == "" {
		return nil, &domain.ConfigurationError{Field: "dkim.selector", Reason: "required"}
	}
	hc := opts.HeaderCanon
	if hc == "" {
		hc = "relaxed"
	}
	bc := opts.BodyCanon
	if bc == "" {
		bc = "simple"
	}
	if hc != "relaxed" && hc != "simple" {
		return nil, &domain.ConfigurationError{Field: "dkim.header_canon", Reason: "must be relaxed or simple"}
	}
	if bc != "relaxed" && bc != "simple" {
		return nil, &domain.ConfigurationError{Field: "dkim.body_canon", Reason: "must be relaxed or simple"}
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "dkim.key_path", Reason: err.Error()}
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{
		domain:      opts.Domain,
		selector:    opts.Selector,
		headerCanon: hc,
		bodyCanon:   bc,
		key:         key,
		now:         now,
	}, nil
}

// Domain reports the signing domain ("d=" tag).
func (s *Signer) Domain() string { return s.domain }

// Sign computes a DKIM-Signature header value for a message. headers
// maps canonical header names (as written on the wire, e.g. "From",
// "MIME-Version") to their values; body is the raw message body exactly
// as it will be transmitted, CRLF line endings included. The returned
// value does not include the "DKIM-Signature:" field name.
func (s *Signer) Sign(headers map[string]string, body string) (string, error) {
	lookup := make(map[string]string, len(headers))
	for name, value := range headers {
		lookup[strings.ToLower(name)] = name + ": " + value
	}

	var included []string
	for _, name := range signedHeaders {
		if _, ok := lookup[name]; ok {
			included = append(included, name)
		}
	}
	if len(included) == 0 {
		return "", fmt.Errorf("dkim: no signable headers present")
	}

	bh := s.bodyHash(body)
	unsigned := fmt.Sprintf(
		"v=1; a=rsa-sha256; c=%s/%s; d=%s; s=%s; t=%d; h=%s; bh=%s; b=",
		s.headerCanon, s.bodyCanon, s.domain, s.selector,
		s.now().UTC().Unix(), strings.Join(included, ":"), bh,
	)

	h := sha256.New()
	for _, name := range included {
		h.Write([]byte(canonicalizeHeader(s.headerCanon, lookup[name])))
		h.Write([]byte("\r\n"))
	}
	// the signature header itself is hashed last, with an empty b= value
	// and no trailing CRLF
	h.Write([]byte(canonicalizeHeader(s.headerCanon, "DKIM-Signature: "+unsigned)))

	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("dkim: sign: %w", err)
	}
	return unsigned + base64.StdEncoding.EncodeToString(sig), nil
}

func (s *Signer) bodyHash(body string) string {
	sum := sha256.Sum256([]byte(canonicalizeBody(s.bodyCanon, body)))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func parsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want RSA", parsed)
	}
	return key, nil
}

// canonicalizeHeader takes a full "Name: value" header line. Relaxed
// lowercases the name, unfolds continuations, collapses runs of
// whitespace to a single space and drops it around the colon. Simple
// passes the line through untouched.
func canonicalizeHeader(mode, line string) string {
	if mode == "simple" {
		return line
	}
	name, value, _ := strings.Cut(line, ":")
	value = strings.ReplaceAll(value, "\r\n", "")
	value = collapseWSP(value)
	return strings.ToLower(strings.TrimSpace(name)) + ":" + strings.TrimSpace(value)
}

// canonicalizeBody normalizes line endings to CRLF and applies the body
// canonicalization rules: both modes strip trailing empty lines, relaxed
// additionally collapses in-line whitespace and strips line-end
// whitespace. A non-empty body always ends with a single CRLF; an empty
// body is CRLF under simple and empty under relaxed.
func canonicalizeBody(mode, body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")

	if mode == "relaxed" {
		for i, line := range lines {
			lines[i] = collapseWSP(line)
		}
	}

	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	if end == 0 {
		if mode == "simple" {
			return "\r\n"
		}
		return ""
	}
	return strings.Join(lines[:end], "\r\n") + "\r\n"
}

// collapseWSP reduces every run of spaces and tabs to a single space.
// Trailing runs are dropped entirely, which matches the relaxed rule of
// ignoring whitespace at line ends.
func collapseWSP(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inWSP := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			inWSP = true
			continue
		}
		if inWSP {
			b.WriteByte(' ')
		}
		inWSP = false
		b.WriteByte(c)
	}
	return b.String()
}
