package ice

import (
	"errors"
	"net"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
)

var (
	ErrUnknownStream = errors.New("ice: unknown stream")
	ErrNoCredentials = errors.New("ice: remote credentials not set")
	ErrLoopClosed    = errors.New("ice: event loop closed")
)

type StreamID uint32

type ComponentID uint16

// ComponentRTP is the only component used; RTCP is multiplexed.
const ComponentRTP ComponentID = 1

// State is the connectivity state of one component.
type State int

const (
	StateDisconnected State = iota
	StateGathering
	StateConnecting
	StateConnected
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateGathering:
		return "Gathering"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

// Agent gathers candidates and runs connectivity checks for its streams.
// Callbacks are delivered on the event loop the agent was created with.
type Agent interface {
	AddStream() (StreamID, error)
	// GatherCandidates starts gathering; completion is reported through OnGatheringDone.
	GatherCandidates(stream StreamID) error
	LocalCandidates(stream StreamID) []media.IceCandidate
	SetControllingMode(controlling bool)
	SetRemoteCredentials(stream StreamID, ufrag, pwd string) error
	// SetRemoteCandidates installs the candidates and starts connectivity checks.
	SetRemoteCandidates(stream StreamID, component ComponentID, candidates []media.IceCandidate) error
	AttachReceive(stream StreamID, component ComponentID, fn func([]byte)) error
	OnGatheringDone(fn func(stream StreamID))
	OnComponentStateChanged(fn func(stream StreamID, component ComponentID, state State))
	// Conn returns the connected socket of a stream once its component is connected.
	Conn(stream StreamID) (net.Conn, bool)
	Close() error
}

type AgentFactory interface {
	NewAgent() (Agent, error)
}
