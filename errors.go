package lanterm

import "errors"

// ErrNodeStopped is returned from [*Node.Accept] and [*Node.Dial]
// after the node's lifecycle context has been canceled.
var ErrNodeStopped = errors.New("node stopped")
