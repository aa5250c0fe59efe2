// Package dkim signs outbound messages with DKIM (RFC 6376) and builds
// the domain-aligned identity headers (Message-ID, Return-Path,
// List-Unsubscribe) that receiving MTAs check during authentication.
//
// Signatures use rsa-sha256 over a fixed header set. Canonicalization is
// configurable per side (relaxed or simple); relaxed/simple is the
// default. Verify exists so tests and diagnostic tooling can check
// signatures without an external resolver: it takes the public key
// directly instead of fetching the selector record from DNS.
package dkim
