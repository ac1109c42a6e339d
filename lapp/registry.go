package lapp

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gordian-engine/lanterm/lengine"
	"github.com/gordian-engine/lanterm/lcert"
)

// Info describes a registered application.
type Info struct {
	// Selector sent during the handshake.
	ID string

	Name        string
	Description string
	Author      string

	// Player counts include the host.
	MinPlayers, MaxPlayers int
}

func (i Info) validate() error {
	var err error
	if i.ID == "" || strings.ContainsAny(i.ID, " \t\r\n") {
		err = errors.Join(err, fmt.Errorf("ID %q must be non-empty without whitespace", i.ID))
	}
	if i.Name == "" {
		err = errors.Join(err, errors.New("Name must not be empty"))
	}
	if i.MinPlayers < 1 {
		err = errors.Join(err, fmt.Errorf("MinPlayers must be at least 1 (got %d)", i.MinPlayers))
	}
	if i.MaxPlayers < i.MinPlayers {
		err = errors.Join(err, fmt.Errorf(
			"MaxPlayers (%d) must not be less than MinPlayers (%d)", i.MaxPlayers, i.MinPlayers,
		))
	}
	return err
}

// App is what an application implements to be registered.
// Text commands are the only local input the registry supports,
// so the command parser is required.
type App[A, S any] interface {
	lengine.Application[A, S]
	lengine.CommandParser[A]
}

// Describer is optionally implemented by applications
// to control how state is printed.
// Without it, state is printed with the %+v verb.
type Describer[S any] interface {
	Describe(state S, local lcert.PeerID) string
}

// Registry maps application IDs to entries.
// Registration is expected at startup;
// a Registry is not safe for concurrent registration.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds app to r under info.ID.
// It panics on invalid info or a duplicate ID.
func Register[A, S any](r *Registry, info Info, app App[A, S]) {
	if err := info.validate(); err != nil {
		panic(fmt.Errorf("BUG: invalid application info: %w", err))
	}
	if _, ok := r.entries[info.ID]; ok {
		panic(fmt.Errorf("BUG: application %q registered twice", info.ID))
	}

	r.entries[info.ID] = &Entry{
		info:      info,
		runHost:   hostRunner(info, app),
		runClient: clientRunner(app),
	}
}

// Lookup returns the entry registered under id.
func (r *Registry) Lookup(id string) (*Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// List returns every registered application's info, sorted by ID.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	slices.SortFunc(out, func(a, b Info) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
