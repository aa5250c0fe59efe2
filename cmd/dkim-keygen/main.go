// dkim-keygen generates an RSA signing key and prints the DNS TXT record
// that publishes its public half.
//
// Usage:
//
//	dkim-keygen -domain arkmail.io -selector mail -out dkim_private.pem
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	var (
		out      = flag.String("out", "dkim_private.pem", "path for the private key PEM")
		selector = flag.String("selector", "mail", "DKIM selector")
		domain   = flag.String("domain", "", "signing domain, used in the printed DNS record")
		bits     = flag.Int("bits", 2048, "RSA key size")
	)
	flag.Parse()

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	der := x509.MarshalPKCS1PrivateKey(key)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(*out, pemBytes, 0600); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		log.Fatalf("marshal public key: %v", err)
	}
	pubB64 := base64.StdEncoding.EncodeToString(pubDER)

	fmt.Printf("Private key written to %s (%d bits)\n\n", *out, *bits)

	host := *selector + "._domainkey"
	if *domain != "" {
		host += "." + *domain
	}
	fmt.Println("Publish this DNS TXT record:")
	fmt.Printf("  %s IN TXT \"v=DKIM1; k=rsa; p=%s\"\n", host, pubB64)
}
