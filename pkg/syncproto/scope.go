package syncproto

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/substratelabs/substrate/pkg/event"
)

// ProtocolVersion is the version this implementation speaks. Peers with a
// different major version are refused during scope negotiation.
const ProtocolVersion = "1.2.0"

// Scope is the negotiated extent of one sync session.
type Scope struct {
	Workspace string
	Frames    []string
	Horizon   string
}

// Accepts reports whether e falls inside the scope. Events without a
// workspace belong to the default workspace and match an empty scope.
func (s Scope) Accepts(e *event.Event) bool {
	return e != nil && e.Workspace() == s.Workspace
}

// Payload renders the scope as a SCOPE message payload.
func (s Scope) Payload() *ScopePayload {
	return &ScopePayload{
		Workspace:       s.Workspace,
		Frames:          append([]string(nil), s.Frames...),
		Horizon:         s.Horizon,
		ProtocolVersion: ProtocolVersion,
	}
}

// CheckProtocolVersion verifies the peer's declared version is compatible
// with ours: same major, any minor/patch.
func CheckProtocolVersion(theirs string) error {
	if theirs == "" {
		return fmt.Errorf("syncproto: peer declared no protocol version")
	}
	peer, err := semver.NewVersion(theirs)
	if err != nil {
		return fmt.Errorf("syncproto: peer protocol version %q: %w", theirs, err)
	}
	ours := semver.MustParse(ProtocolVersion)
	if peer.Major() != ours.Major() {
		return fmt.Errorf("syncproto: incompatible protocol version %s (ours %s)", theirs, ProtocolVersion)
	}
	return nil
}
