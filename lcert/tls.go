package lcert

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// ALPN is the application protocol negotiated on every lanterm connection.
const ALPN = "lanterm/0"

// ServerTLSConfig returns the TLS configuration for accepting connections.
// Clients must present a certificate so the host learns their PeerID,
// but the certificate is not verified against any chain.
func ServerTLSConfig(id Identity) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.Cert},
		ClientAuth:   tls.RequireAnyClientCert,
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,

		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			_, err := PeerIDFromRawCerts(raw)
			return err
		},
	}
}

// ClientTLSConfig returns the TLS configuration for dialing a host.
// If expect is non-zero, the handshake fails unless
// the host presents exactly that key.
func ClientTLSConfig(id Identity, expect PeerID) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.Cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,

		// Self-signed certificates never verify against a chain;
		// VerifyPeerCertificate does the identity check instead.
		InsecureSkipVerify: true,

		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			got, err := PeerIDFromRawCerts(raw)
			if err != nil {
				return err
			}
			if !expect.IsZero() && got != expect {
				return PeerMismatchError{Want: expect, Got: got}
			}
			return nil
		},
	}
}

// PeerMismatchError is returned during a dial
// when the remote presents a different key than the one pinned.
type PeerMismatchError struct {
	Want, Got PeerID
}

func (e PeerMismatchError) Error() string {
	return fmt.Sprintf("remote peer %s does not match expected %s", e.Got.Short(), e.Want.Short())
}

// PeerIDFromState returns the PeerID of the remote side of a completed TLS handshake.
func PeerIDFromState(cs tls.ConnectionState) (PeerID, error) {
	if len(cs.PeerCertificates) == 0 {
		return PeerID{}, fmt.Errorf("no peer certificates in TLS state")
	}
	return PeerIDFromCert(cs.PeerCertificates[0])
}
