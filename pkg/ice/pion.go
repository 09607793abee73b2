package ice

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/ghettovoice/gosip/log"
	pionice "github.com/pion/ice/v2"
	"github.com/pion/stun"
)

// Config configures agents created by NewAgentFactory.
type Config struct {
	StunServers []string `json:"stun_servers"`
	PortMin     uint16   `json:"port_min"`
	PortMax     uint16   `json:"port_max"`

	// IncludeLoopback gathers host candidates on loopback interfaces too.
	IncludeLoopback bool `json:"include_loopback"`
}

type agentFactory struct {
	urls   []*stun.URI
	config Config
	loop   *EventLoop
	logger log.Logger
}

// NewAgentFactory returns a factory of pion backed agents delivering their
// callbacks on loop.
func NewAgentFactory(config *Config, loop *EventLoop, logger log.Logger) (AgentFactory, error) {
	f := &agentFactory{
		config: *config,
		loop:   loop,
		logger: logger.WithPrefix("ice.Agent"),
	}
	for _, raw := range config.StunServers {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid stun server %q: %w", raw, err)
		}
		f.urls = append(f.urls, uri)
	}
	return f, nil
}

func (f *agentFactory) NewAgent() (Agent, error) {
	return &pionAgent{
		factory: f,
		streams: make(map[StreamID]*pionStream),
		logger:  f.logger,
	}, nil
}

type pionStream struct {
	id          StreamID
	agent       *pionice.Agent
	remoteUfrag string
	remotePwd   string
	conn        *pionice.Conn
	onReceive   func([]byte)
	cancel      context.CancelFunc
}

// pionAgent maps each stream onto its own pion agent.
type pionAgent struct {
	mu          sync.Mutex
	factory     *agentFactory
	streams     map[StreamID]*pionStream
	nextID      StreamID
	controlling bool
	closed      bool

	onGatheringDone func(StreamID)
	onStateChanged  func(StreamID, ComponentID, State)

	logger log.Logger
}

func (a *pionAgent) AddStream() (StreamID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	id := a.nextID

	agent, err := pionice.NewAgent(&pionice.AgentConfig{
		Urls:            a.factory.urls,
		PortMin:         a.factory.config.PortMin,
		PortMax:         a.factory.config.PortMax,
		NetworkTypes:    []pionice.NetworkType{pionice.NetworkTypeUDP4},
		IncludeLoopback: a.factory.config.IncludeLoopback,
		LoggerFactory:   newLoggerFactory(a.logger),
	})
	if err != nil {
		return 0, err
	}

	if err := agent.OnCandidate(func(c pionice.Candidate) {
		if c != nil {
			a.logger.Debugf("stream %d gathered %s", id, c.String())
			return
		}
		a.post(func() {
			if fn := a.gatheringHandler(); fn != nil {
				fn(id)
			}
		})
	}); err != nil {
		agent.Close()
		return 0, err
	}

	if err := agent.OnConnectionStateChange(func(s pionice.ConnectionState) {
		state := toState(s)
		// Connected is reported by connect once the socket is stored.
		if state == StateConnected || state == StateReady {
			return
		}
		a.notifyState(id, state)
	}); err != nil {
		agent.Close()
		return 0, err
	}

	a.streams[id] = &pionStream{id: id, agent: agent}
	return id, nil
}

func (a *pionAgent) GatherCandidates(stream StreamID) error {
	s, err := a.stream(stream)
	if err != nil {
		return err
	}
	return s.agent.GatherCandidates()
}

func (a *pionAgent) LocalCandidates(stream StreamID) []media.IceCandidate {
	s, err := a.stream(stream)
	if err != nil {
		return nil
	}
	cands, err := s.agent.GetLocalCandidates()
	if err != nil {
		a.logger.Warnf("stream %d local candidates: %v", stream, err)
		return nil
	}
	ufrag, pwd, err := s.agent.GetLocalUserCredentials()
	if err != nil {
		a.logger.Warnf("stream %d local credentials: %v", stream, err)
		return nil
	}

	res := make([]media.IceCandidate, 0, len(cands))
	for _, c := range cands {
		mc := media.CandidateFromICE(c)
		mc.StreamID = uint32(stream)
		mc.Username = ufrag
		mc.Password = pwd
		res = append(res, mc)
	}
	return res
}

func (a *pionAgent) SetControllingMode(controlling bool) {
	a.mu.Lock()
	a.controlling = controlling
	a.mu.Unlock()
}

func (a *pionAgent) SetRemoteCredentials(stream StreamID, ufrag, pwd string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, found := a.streams[stream]
	if !found {
		return ErrUnknownStream
	}
	s.remoteUfrag, s.remotePwd = ufrag, pwd
	return nil
}

func (a *pionAgent) SetRemoteCandidates(stream StreamID, component ComponentID, candidates []media.IceCandidate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, found := a.streams[stream]
	if !found {
		return ErrUnknownStream
	}
	if s.remoteUfrag == "" || s.remotePwd == "" {
		return ErrNoCredentials
	}

	for _, c := range candidates {
		if c.ComponentID != 0 && ComponentID(c.ComponentID) != component {
			continue
		}
		rc, err := pionice.UnmarshalCandidate(c.Marshal())
		if err != nil {
			a.logger.Warnf("stream %d skip remote candidate %q: %v", stream, c.Marshal(), err)
			continue
		}
		if err := s.agent.AddRemoteCandidate(rc); err != nil {
			return err
		}
	}

	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go a.connect(ctx, s, a.controlling, s.remoteUfrag, s.remotePwd)
	}
	return nil
}

func (a *pionAgent) connect(ctx context.Context, s *pionStream, controlling bool, ufrag, pwd string) {
	var (
		conn *pionice.Conn
		err  error
	)
	if controlling {
		conn, err = s.agent.Dial(ctx, ufrag, pwd)
	} else {
		conn, err = s.agent.Accept(ctx, ufrag, pwd)
	}
	if err != nil {
		a.logger.Debugf("stream %d connectivity checks ended: %v", s.id, err)
		a.notifyState(s.id, StateFailed)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	a.mu.Unlock()

	a.logger.Infof("stream %d connected %s <-> %s", s.id, conn.LocalAddr(), conn.RemoteAddr())
	a.notifyState(s.id, StateConnected)
}

func (a *pionAgent) AttachReceive(stream StreamID, component ComponentID, fn func([]byte)) error {
	if component != ComponentRTP {
		return fmt.Errorf("ice: unsupported component %d", component)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, found := a.streams[stream]
	if !found {
		return ErrUnknownStream
	}
	s.onReceive = fn
	return nil
}

func (a *pionAgent) OnGatheringDone(fn func(stream StreamID)) {
	a.mu.Lock()
	a.onGatheringDone = fn
	a.mu.Unlock()
}

func (a *pionAgent) OnComponentStateChanged(fn func(stream StreamID, component ComponentID, state State)) {
	a.mu.Lock()
	a.onStateChanged = fn
	a.mu.Unlock()
}

func (a *pionAgent) Conn(stream StreamID) (net.Conn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, found := a.streams[stream]
	if !found || s.conn == nil {
		return nil, false
	}
	return &receiveConn{Conn: s.conn, onReceive: s.onReceive}, true
}

func (a *pionAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	for id, s := range a.streams {
		if s.cancel != nil {
			s.cancel()
		}
		if err := s.agent.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.streams, id)
	}
	return firstErr
}

func (a *pionAgent) stream(id StreamID) (*pionStream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, found := a.streams[id]
	if !found {
		return nil, ErrUnknownStream
	}
	return s, nil
}

func (a *pionAgent) gatheringHandler() func(StreamID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onGatheringDone
}

func (a *pionAgent) notifyState(id StreamID, state State) {
	a.post(func() {
		a.mu.Lock()
		fn := a.onStateChanged
		a.mu.Unlock()
		if fn != nil {
			fn(id, ComponentRTP, state)
		}
	})
}

func (a *pionAgent) post(fn func()) {
	if err := a.factory.loop.Post(fn); err != nil {
		a.logger.Debugf("drop agent event: %v", err)
	}
}

func toState(s pionice.ConnectionState) State {
	switch s {
	case pionice.ConnectionStateChecking:
		return StateConnecting
	case pionice.ConnectionStateConnected:
		return StateConnected
	case pionice.ConnectionStateCompleted:
		return StateReady
	case pionice.ConnectionStateFailed:
		return StateFailed
	}
	return StateDisconnected
}

// receiveConn reports every datagram read from the agent socket.
type receiveConn struct {
	net.Conn
	onReceive func([]byte)
}

func (c *receiveConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 && c.onReceive != nil {
		c.onReceive(b[:n])
	}
	return n, err
}
