package lcert

import (
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// Identity is a node's certificate and the PeerID derived from it.
type Identity struct {
	Cert tls.Certificate
	ID   PeerID
}

// IdentityConfig is the configuration for [GenerateIdentity].
type IdentityConfig struct {
	// How long the certificate is valid.
	// Defaults to 24 hours.
	ValidFor time.Duration

	// Optional common name; defaults to "lanterm node".
	CommonName string
}

// GenerateIdentity creates a fresh ed25519 key and a self-signed certificate for it.
func GenerateIdentity(cfg IdentityConfig) (Identity, error) {
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	validFor := cfg.ValidFor
	if validFor == 0 {
		validFor = 24 * time.Hour
	}

	cn := cfg.CommonName
	if cn == "" {
		cn = "lanterm node"
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),

		Subject: pkix.Name{
			Organization: []string{"lanterm"},
			CommonName:   cn,
		},
		NotBefore: time.Now().Add(-15 * time.Second),
		NotAfter:  time.Now().Add(validFor),

		KeyUsage: x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			// Every node is both a TLS server and a TLS client.
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(nil, template, template, pubKey, privKey)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse certificate from DER: %w", err)
	}

	var id PeerID
	_ = copy(id[:], pubKey)

	return Identity{
		Cert: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  privKey,
			Leaf:        leaf,
		},
		ID: id,
	}, nil
}
