package lcert

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
)

// PeerID is the ed25519 public key of a node's certificate.
// It is unique per node and fixed for the lifetime of the process.
type PeerID [ed25519.PublicKeySize]byte

// String returns the lowercase hex encoding of the key.
func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// Short returns the first eight hex characters,
// useful for log lines and terminal output.
func (p PeerID) Short() string {
	return hex.EncodeToString(p[:4])
}

// IsZero reports whether p is the zero value.
func (p PeerID) IsZero() bool {
	return p == PeerID{}
}

// ParsePeerID parses the output of [PeerID.String].
func ParsePeerID(s string) (PeerID, error) {
	var p PeerID
	if len(s) != 2*len(p) {
		return PeerID{}, fmt.Errorf(
			"peer ID must be %d hex characters (got %d)", 2*len(p), len(s),
		)
	}
	if _, err := hex.Decode(p[:], []byte(s)); err != nil {
		return PeerID{}, fmt.Errorf("failed to decode peer ID: %w", err)
	}
	return p, nil
}

// ErrNotEd25519 is returned when a presented certificate
// does not carry an ed25519 public key.
var ErrNotEd25519 = errors.New("certificate public key is not ed25519")

// PeerIDFromCert extracts the PeerID from a leaf certificate.
func PeerIDFromCert(cert *x509.Certificate) (PeerID, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return PeerID{}, ErrNotEd25519
	}

	var p PeerID
	_ = copy(p[:], pub)
	return p, nil
}

// PeerIDFromRawCerts parses the first DER certificate in raw
// and returns its PeerID.
// This matches the shape of [crypto/tls.Config.VerifyPeerCertificate].
func PeerIDFromRawCerts(raw [][]byte) (PeerID, error) {
	if len(raw) == 0 {
		return PeerID{}, errors.New("peer presented no certificates")
	}

	cert, err := x509.ParseCertificate(raw[0])
	if err != nil {
		return PeerID{}, fmt.Errorf("failed to parse peer certificate: %w", err)
	}

	return PeerIDFromCert(cert)
}

// MarshalText encodes p as hex, so PeerIDs read naturally in JSON state.
func (p PeerID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes the output of [PeerID.MarshalText].
// An empty input decodes to the zero PeerID.
func (p *PeerID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = PeerID{}
		return nil
	}
	v, err := ParsePeerID(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
