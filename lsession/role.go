package lsession

// Role is fixed per connection:
// the side that accepted the connection is the host,
// and the side that dialed is the client.
type Role uint8

const (
	_ Role = iota
	Host
	Client
)

func (r Role) String() string {
	switch r {
	case Host:
		return "host"
	case Client:
		return "client"
	default:
		return "invalid"
	}
}
