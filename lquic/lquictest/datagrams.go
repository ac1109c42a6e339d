package lquictest

import (
	"sync"

	"github.com/gordian-engine/lanterm/lpubsub"
	"github.com/gordian-engine/lanterm/lquic"
)

// DatagramDropper wraps an [lquic.Conn]
// and turns SendDatagram into a no-op.
//
// This is useful for tests that need to simulate
// datagrams that do not reach the destination.
type DatagramDropper struct {
	lquic.Conn
}

func (d DatagramDropper) SendDatagram([]byte) error {
	return nil
}

// PubsubDatagramSender wraps an [lquic.Conn]
// and additionally publishes every sent datagram
// on a provided [*lpubsub.Stream].
// The datagram is still forwarded to the wrapped connection.
// This allows test synchronization on outgoing snapshots
// without particularly sized buffered channels.
type PubsubDatagramSender struct {
	lquic.Conn

	mu     sync.Mutex
	Stream *lpubsub.Stream[[]byte]
}

// NewPubsubDatagramSender returns a sender wrapping c.
// Observers should retain the returned Stream's head before any sends occur.
func NewPubsubDatagramSender(c lquic.Conn) *PubsubDatagramSender {
	return &PubsubDatagramSender{
		Conn:   c,
		Stream: lpubsub.NewStream[[]byte](),
	}
}

func (s *PubsubDatagramSender) SendDatagram(d []byte) error {
	cp := make([]byte, len(d))
	_ = copy(cp, d)

	s.mu.Lock()
	s.Stream.Publish(cp)
	s.Stream = s.Stream.Next
	s.mu.Unlock()

	return s.Conn.SendDatagram(d)
}
