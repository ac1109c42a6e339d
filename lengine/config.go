package lengine

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lpubsub"
	"github.com/gordian-engine/lanterm/lsession"
)

const (
	// DefaultCadence is how often the loop wakes
	// when the application does not tick.
	DefaultCadence = 16 * time.Millisecond

	// DefaultResyncInterval bounds how long a non-ticking host
	// goes without broadcasting.
	DefaultResyncInterval = 250 * time.Millisecond
)

// Config is the configuration for an [Engine].
type Config[A, S any] struct {
	App Application[A, S]

	// Identity of this node, passed to the renderer
	// and used as the actor of local actions on the host.
	Local lcert.PeerID

	// Local input source.
	// A closed channel is treated as a quit.
	Inputs <-chan Input[A]

	// Optional render hook.
	Render Renderer[S]

	// Optional channel of sessions to attach while running.
	// Host only; sessions must have completed the handshake
	// for the same application.
	Joins <-chan *lsession.Active[A, S]

	// Optional callback, run on the loop goroutine
	// after the host detaches a peer.
	// Host only.
	PeerDetached func(lcert.PeerID)

	// Optional stream of authoritative states:
	// each snapshot the host broadcasts,
	// or each snapshot a client accepts.
	// The run loop never reads it back;
	// it exists for observers outside the loop, such as tests or recorders.
	Revisions *lpubsub.Stream[Revision[S]]

	// Wake interval for applications without a tick rate.
	// Defaults to DefaultCadence.
	Cadence time.Duration

	// Maximum time a non-ticking host waits between broadcasts.
	// Defaults to DefaultResyncInterval.
	ResyncInterval time.Duration
}

// Revision is one authoritative state published on [Config.Revisions].
type Revision[S any] struct {
	Seq   uint64
	State S
}

func (c *Config[A, S]) validate() {
	var err error

	if c.App == nil {
		err = errors.Join(err, errors.New("App must not be nil"))
	}
	if c.Local.IsZero() {
		err = errors.Join(err, errors.New("Local must be set"))
	}
	if c.Inputs == nil {
		err = errors.Join(err, errors.New("Inputs must not be nil"))
	}
	if c.Cadence < 0 {
		err = errors.Join(err, fmt.Errorf("Cadence must not be negative (got %s)", c.Cadence))
	}
	if c.ResyncInterval < 0 {
		err = errors.Join(err, fmt.Errorf("ResyncInterval must not be negative (got %s)", c.ResyncInterval))
	}

	if err != nil {
		panic(fmt.Errorf("BUG: invalid engine config: %w", err))
	}

	if c.Cadence == 0 {
		c.Cadence = DefaultCadence
	}
	if c.ResyncInterval == 0 {
		c.ResyncInterval = DefaultResyncInterval
	}
}

// tickInterval returns the loop's timer interval
// and whether the application ticks.
func (c *Config[A, S]) tickInterval() (time.Duration, bool) {
	if t, ok := c.App.(Ticker[S]); ok {
		if r := t.TickRate(); r > 0 {
			return r, true
		}
	}
	return c.Cadence, false
}
