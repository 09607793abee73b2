package connection

// State of a connection. It only moves forward, except that a failed
// establishment returns to AwaitingRemote.
type State string

const (
	Created        State = "Created"
	AwaitingRemote State = "AwaitingRemote" /**< Local description ready. */
	Negotiating    State = "Negotiating"    /**< Remote description accepted, transport pending. */
	Established    State = "Established"    /**< Senders and receivers built. */
	Terminated     State = "Terminated"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsInProgress() bool {
	switch s {
	case Created, AwaitingRemote, Negotiating:
		return true
	}
	return false
}

func (s State) IsEstablished() bool {
	return s == Established
}

func (s State) IsEnded() bool {
	return s == Terminated
}

// Kind is the transport family of a connection.
type Kind string

const (
	KindRTP  Kind = "rtp"
	KindRTMP Kind = "rtmp"
)
