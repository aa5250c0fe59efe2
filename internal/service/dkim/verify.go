package dkim

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

var bTagPattern = regexp.MustCompile(`(?:^|;)\s*b=`)

// Signature is a parsed DKIM-Signature header value.
type Signature struct {
	Algorithm   string
	HeaderCanon string
	BodyCanon   string
	Domain      string
	Selector    string
	Timestamp   string
	Headers     []string
	BodyHash    string
	Value       []byte
}

// ParseSignature splits a DKIM-Signature value into its tags.
func ParseSignature(value string) (*Signature, error) {
	sig := &Signature{HeaderCanon: "simple", BodyCanon: "simple"}
	for _, tag := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(tag), "=")
		if !ok {
			continue
		}
		switch k {
		case "a":
			sig.Algorithm = v
		case "c":
			hc, bc, found := strings.Cut(v, "/")
			sig.HeaderCanon = hc
			if found {
				sig.BodyCanon = bc
			}
		case "d":
			sig.Domain = v
		case "s":
			sig.Selector = v
		case "t":
			sig.Timestamp = v
		case "h":
			for _, name := range strings.Split(v, ":") {
				sig.Headers = append(sig.Headers, strings.ToLower(strings.TrimSpace(name)))
			}
		case "bh":
			sig.BodyHash = v
		case "b":
			raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(v, " ", ""))
			if err != nil {
				return nil, fmt.Errorf("dkim: decode b tag: %w", err)
			}
			sig.Value = raw
		}
	}
	if sig.Domain == "" || sig.Selector == "" || len(sig.Headers) == 0 {
		return nil, fmt.Errorf("dkim: signature missing required tags")
	}
	return sig, nil
}

// Verify checks a DKIM-Signature value against the message it claims to
// cover, using the supplied public key instead of a DNS lookup. headers
// and body follow the same conventions as Signer.Sign.
func Verify(value string, headers map[string]string, body string, pub *rsa.PublicKey) error {
	sig, err := ParseSignature(value)
	if err != nil {
		return err
	}
	if sig.Algorithm != "rsa-sha256" {
		return fmt.Errorf("dkim: unsupported algorithm %q", sig.Algorithm)
	}

	bodySum := sha256.Sum256([]byte(canonicalizeBody(sig.BodyCanon, body)))
	if base64.StdEncoding.EncodeToString(bodySum[:]) != sig.BodyHash {
		return fmt.Errorf("dkim: body hash mismatch")
	}

	lookup := make(map[string]string, len(headers))
	for name, v := range headers {
		lookup[strings.ToLower(name)] = name + ": " + v
	}

	h := sha256.New()
	for _, name := range sig.Headers {
		line, ok := lookup[name]
		if !ok {
			continue
		}
		h.Write([]byte(canonicalizeHeader(sig.HeaderCanon, line)))
		h.Write([]byte("\r\n"))
	}
	// reconstruct the signature header with b= emptied, as it was hashed.
	// The tag boundary matters: a bare "b=" substring search could land
	// inside the bh= or b= base64 payloads.
	loc := bTagPattern.FindStringIndex(value)
	if loc == nil {
		return fmt.Errorf("dkim: signature missing b tag")
	}
	h.Write([]byte(canonicalizeHeader(sig.HeaderCanon, "DKIM-Signature: "+value[:loc[1]])))

	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h.Sum(nil), sig.Value); err != nil {
		return fmt.Errorf("dkim: signature invalid: %w", err)
	}
	return nil
}
