// Package certs implements the JA4X (X.509 certificate) fingerprint
// builder described in spec.md §4.5. It is named certs rather than x509 to
// avoid shadowing the standard library package it wraps.
package certs

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"

	"github.com/netfprint/ja4core/internal/canon"
)

// Builder accumulates one fingerprint per certificate observed on a flow.
// No ecosystem ASN.1/X.509 parser appears anywhere in the dependency pack
// this module draws from, so certificate parsing uses the standard library
// (crypto/x509 and its pkix subpackage) rather than a third-party decoder.
type Builder struct {
	fingerprints []string
}

// NewBuilder returns a builder for a new flow.
func NewBuilder() *Builder {
	return &Builder{}
}

// Observe parses a DER-encoded certificate and appends its JA4X fingerprint.
// A malformed certificate is skipped; the flow and the builder continue
// (spec.md §4.8 failure semantics).
func (b *Builder) Observe(der []byte) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}

	issuerOIDs := rdnOIDs(cert.Issuer.Names)
	subjectOIDs := rdnOIDs(cert.Subject.Names)
	extOIDs := make([]string, len(cert.Extensions))
	for i, ext := range cert.Extensions {
		extOIDs[i] = ext.Id.String()
	}

	b.fingerprints = append(b.fingerprints, join3(issuerOIDs, subjectOIDs, extOIDs))
	return nil
}

// Fingerprints returns the JA4X strings in certificate-observation order.
func (b *Builder) Fingerprints() []string {
	return b.fingerprints
}

// rdnOIDs extracts the attribute-type OIDs from a certificate's RDN
// sequence in original DER order; like the extension OIDs, these are never
// sorted (spec.md §4.5).
func rdnOIDs(names []pkix.AttributeTypeAndValue) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.Type.String()
	}
	return out
}

func join3(issuerOIDs, subjectOIDs, extOIDs []string) string {
	issuerHash := canon.Hash12(canon.Join(issuerOIDs))
	subjectHash := canon.Hash12(canon.Join(subjectOIDs))
	extHash := canon.Hash12(canon.Join(extOIDs))
	return issuerHash + "_" + subjectHash + "_" + extHash
}
