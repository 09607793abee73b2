package connection

import (
	"fmt"
	"sync"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/pipeline"
	"github.com/ghettovoice/gosip/log"
	"github.com/google/uuid"
)

// Connection negotiates a session with one remote peer and owns the
// transport resources carrying it.
type Connection interface {
	ID() string
	Kind() Kind
	State() State
	// ConnectToRemote negotiates against remote and starts establishing the
	// transport. It succeeds at most once per connection.
	ConnectToRemote(remote *media.SessionDescription, localIsOfferer bool) error
	SetMode(mode media.Direction, kind media.MediaKind) error
	Mode(kind media.MediaKind) media.Direction
	Terminate()
	Descriptor() *media.SessionDescription
	LocalSpec() *media.SessionDescription
	RemoteSpec() *media.SessionDescription
	NegotiatedLocal() *media.SessionDescription
	NegotiatedRemote() *media.SessionDescription
	Handlers() []MediaHandler
	// Established is closed once senders and receivers are built.
	Established() <-chan struct{}
}

// MediaHandler is the sender and receiver of one negotiated media line.
type MediaHandler struct {
	Index int
	Kind  media.MediaKind
	// Direction is the negotiated direction of the local line.
	Direction media.Direction
	Sender    pipeline.Sender
	Receiver  pipeline.Receiver
}

// connection holds the state shared by every connection kind. The concrete
// kinds plug in through changeMode and release.
type connection struct {
	mu       sync.Mutex
	id       string
	kind     Kind
	state    State
	pipeline pipeline.Pipeline

	localSpec        *media.SessionDescription
	remoteSpec       *media.SessionDescription
	negotiatedLocal  *media.SessionDescription
	negotiatedRemote *media.SessionDescription
	descriptor       *media.SessionDescription

	finished  bool
	audioMode media.Direction
	videoMode media.Direction

	handlers    []MediaHandler
	established chan struct{}

	changeMode func(mode media.Direction, kind media.MediaKind) error
	release    func()

	logger log.Logger
}

func newConnection(kind Kind, local *media.SessionDescription, p pipeline.Pipeline, logger log.Logger) *connection {
	id := uuid.New().String()
	return &connection{
		id:          id,
		kind:        kind,
		state:       Created,
		pipeline:    p,
		localSpec:   local.Clone(),
		audioMode:   media.SendRecv,
		videoMode:   media.SendRecv,
		established: make(chan struct{}),
		logger:      logger.WithFields(log.Fields{"connection": id, "kind": string(kind)}),
	}
}

func (c *connection) Log() log.Logger {
	return c.logger
}

func (c *connection) ID() string {
	return c.id
}

func (c *connection) Kind() Kind {
	return c.kind
}

func (c *connection) String() string {
	return fmt.Sprintf("%s connection %s [%s]", c.kind, c.id, c.State())
}

func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) Descriptor() *media.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptor.Clone()
}

func (c *connection) LocalSpec() *media.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localSpec.Clone()
}

func (c *connection) RemoteSpec() *media.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteSpec.Clone()
}

func (c *connection) NegotiatedLocal() *media.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedLocal.Clone()
}

func (c *connection) NegotiatedRemote() *media.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedRemote.Clone()
}

func (c *connection) Handlers() []MediaHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MediaHandler(nil), c.handlers...)
}

func (c *connection) Established() <-chan struct{} {
	return c.established
}

func (c *connection) Mode(kind media.MediaKind) media.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == media.KindVideo {
		return c.videoMode
	}
	return c.audioMode
}

func (c *connection) SetMode(mode media.Direction, kind media.MediaKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setModeLocked(mode, kind)
}

func (c *connection) setModeLocked(mode media.Direction, kind media.MediaKind) error {
	if c.changeMode == nil {
		return ErrNotImplemented
	}
	if kind != media.KindAudio && kind != media.KindVideo {
		return fmt.Errorf("%w: mode applies to audio or video, got %s", ErrInvalidSpec, kind)
	}
	if err := c.changeMode(mode, kind); err != nil {
		return err
	}
	if kind == media.KindAudio {
		c.audioMode = mode
	} else {
		c.videoMode = mode
	}
	c.logger.Debugf("%s mode %s", kind, mode)
	return nil
}

// Terminate deactivates both media kinds, releases every resource and moves
// to Terminated. Calling it again has no effect.
func (c *connection) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminateLocked()
}

func (c *connection) terminateLocked() {
	if c.state == Terminated {
		return
	}
	c.finished = true

	if err := c.setModeLocked(media.Inactive, media.KindAudio); err != nil {
		c.logger.Warnf("deactivate audio: %v", err)
	} else if err := c.setModeLocked(media.Inactive, media.KindVideo); err != nil {
		c.logger.Warnf("deactivate video: %v", err)
	}

	c.closeHandlersLocked()
	if c.release != nil {
		c.release()
	}
	c.state = Terminated
	c.logger.Infof("terminated")
}

// negotiateLocked intersects remote with the local spec, the offerer's spec
// being the offerer argument, and stores the results.
func (c *connection) negotiateLocked(remote *media.SessionDescription, localIsOfferer bool) error {
	if c.remoteSpec != nil {
		return ErrAlreadyNegotiated
	}
	if c.finished {
		return ErrTerminated
	}
	if err := validateSpec(remote, c.kind); err != nil {
		return err
	}

	remote = remote.Clone()
	var negLocal, negRemote *media.SessionDescription
	if localIsOfferer {
		negRemote, negLocal = media.IntersectSession(remote, c.localSpec)
	} else {
		negLocal, negRemote = media.IntersectSession(c.localSpec, remote)
	}

	c.remoteSpec = remote
	c.negotiatedLocal = negLocal
	c.negotiatedRemote = negRemote
	c.descriptor = negLocal
	c.state = Negotiating
	c.logger.Debugf("negotiated as %s: %v", role(localIsOfferer), negLocal)
	return nil
}

// rollbackLocked forgets a negotiation whose transport could not be built,
// so ConnectToRemote can be called again.
func (c *connection) rollbackLocked(cause error) {
	c.remoteSpec = nil
	c.negotiatedLocal = nil
	c.negotiatedRemote = nil
	c.descriptor = c.localSpec
	c.state = AwaitingRemote
	c.logger.Warnf("establish failed, negotiation rolled back: %v", cause)
}

// establishedLocked records the handlers and moves to Established.
func (c *connection) establishedLocked(handlers []MediaHandler) {
	c.handlers = handlers
	for _, h := range c.handlers {
		c.applyModeLocked(h)
	}
	c.state = Established
	close(c.established)
	c.logger.Infof("established with %d media handlers", len(handlers))
}

func (c *connection) applyModeLocked(h MediaHandler) {
	mode := c.audioMode
	if h.Kind == media.KindVideo {
		mode = c.videoMode
	}
	enableHandler(h, mode)
}

// enableHandler lets media flow where both the negotiated direction and the
// requested mode allow it.
func enableHandler(h MediaHandler, mode media.Direction) {
	if h.Sender != nil {
		h.Sender.SetEnabled(h.Direction.Sends() && mode.Sends())
	}
	if h.Receiver != nil {
		h.Receiver.SetEnabled(h.Direction.Receives() && mode.Receives())
	}
}

func (c *connection) closeHandlersLocked() {
	for _, h := range c.handlers {
		closeHandler(h, c.logger)
	}
	c.handlers = nil
}

func closeHandler(h MediaHandler, logger log.Logger) {
	if h.Sender != nil {
		if err := h.Sender.Close(); err != nil {
			logger.Debugf("close %s sender: %v", h.Kind, err)
		}
	}
	if h.Receiver != nil {
		if err := h.Receiver.Close(); err != nil {
			logger.Debugf("close %s receiver: %v", h.Kind, err)
		}
	}
}

func validateSpec(s *media.SessionDescription, kind Kind) error {
	if s == nil {
		return fmt.Errorf("%w: nil description", ErrInvalidSpec)
	}
	for i, m := range s.Medias {
		if m == nil {
			return fmt.Errorf("%w: media %d is nil", ErrInvalidSpec, i)
		}
		switch m.Transport.(type) {
		case nil:
		case *media.RTPTransport:
			if kind != KindRTP {
				return fmt.Errorf("%w: media %d carries rtp on a %s connection", ErrInvalidSpec, i, kind)
			}
		case *media.RTMPTransport:
			if kind != KindRTMP {
				return fmt.Errorf("%w: media %d carries rtmp on a %s connection", ErrInvalidSpec, i, kind)
			}
		}
	}
	return nil
}

func role(offerer bool) string {
	if offerer {
		return "offerer"
	}
	return "answerer"
}
