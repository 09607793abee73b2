package connection

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cloudwebrtc/go-media-session/pkg/ice"
	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/pipeline"
	"github.com/ghettovoice/gosip/log"
)

// mediaAgent is the ICE agent serving every RTP line of one media kind.
type mediaAgent struct {
	kind   media.MediaKind
	agent  ice.Agent
	stream ice.StreamID

	gathered    chan struct{}
	connected   chan struct{}
	gatherOnce  sync.Once
	connectOnce sync.Once

	logger log.Logger
}

func (m *mediaAgent) onGatheringDone(stream ice.StreamID) {
	if stream != m.stream {
		return
	}
	m.logger.Debugf("%s gathering done", m.kind)
	m.gatherOnce.Do(func() { close(m.gathered) })
}

func (m *mediaAgent) onStateChanged(stream ice.StreamID, component ice.ComponentID, state ice.State) {
	if stream != m.stream {
		return
	}
	m.logger.Debugf("%s component %d %s", m.kind, component, state)
	if state == ice.StateConnected || state == ice.StateReady {
		m.connectOnce.Do(func() { close(m.connected) })
	}
}

func (m *mediaAgent) onReceive(data []byte) {
	m.logger.Tracef("%s received %d bytes", m.kind, len(data))
}

func (m *mediaAgent) install(candidates []media.IceCandidate, controlling bool) error {
	m.agent.SetControllingMode(controlling)
	if err := m.agent.SetRemoteCredentials(m.stream, candidates[0].Username, candidates[0].Password); err != nil {
		return err
	}
	return m.agent.SetRemoteCandidates(m.stream, ice.ComponentRTP, candidates)
}

// RtpConnection carries media over RTP, through ICE when both sides offer
// candidates and over plain UDP otherwise.
type RtpConnection struct {
	*connection
	config RtpConfig
	agents []*mediaAgent
}

// NewRtpConnection gathers candidates for every media kind of local and
// returns once gathering completed or timed out. A nil factory disables ICE.
func NewRtpConnection(local *media.SessionDescription, config *RtpConfig, p pipeline.Pipeline, factory ice.AgentFactory, logger log.Logger) (*RtpConnection, error) {
	if err := validateSpec(local, KindRTP); err != nil {
		return nil, err
	}
	c := &RtpConnection{
		connection: newConnection(KindRTP, local, p, logger),
		config:     config.withDefaults(),
	}
	c.changeMode = c.applyMode
	c.release = c.closeAgents

	for _, m := range c.localSpec.Medias {
		if m.Transport == nil {
			m.Transport = &media.RTPTransport{}
		}
	}

	if factory != nil {
		if err := c.startGathering(factory); err != nil {
			c.closeAgents()
			return nil, err
		}
		c.waitGathering()
	}

	c.mu.Lock()
	c.descriptor = c.localSpec
	c.state = AwaitingRemote
	c.mu.Unlock()

	c.logger.Infof("created with %d ice agents", len(c.agents))
	return c, nil
}

func (c *RtpConnection) startGathering(factory ice.AgentFactory) error {
	for _, kind := range mediaKinds(c.localSpec) {
		agent, err := factory.NewAgent()
		if err != nil {
			return fmt.Errorf("%w: %s ice agent: %v", ErrResourceUnavailable, kind, err)
		}
		ma := &mediaAgent{
			kind:      kind,
			agent:     agent,
			gathered:  make(chan struct{}),
			connected: make(chan struct{}),
			logger:    c.logger,
		}
		c.agents = append(c.agents, ma)

		if ma.stream, err = agent.AddStream(); err != nil {
			return fmt.Errorf("%w: %s ice stream: %v", ErrResourceUnavailable, kind, err)
		}
		agent.OnGatheringDone(ma.onGatheringDone)
		agent.OnComponentStateChanged(ma.onStateChanged)
		if err := agent.AttachReceive(ma.stream, ice.ComponentRTP, ma.onReceive); err != nil {
			return fmt.Errorf("%w: %s ice receive: %v", ErrResourceUnavailable, kind, err)
		}
		if err := agent.GatherCandidates(ma.stream); err != nil {
			return fmt.Errorf("%w: %s gathering: %v", ErrResourceUnavailable, kind, err)
		}
	}
	return nil
}

// waitGathering publishes the local candidates, or drops every agent when
// any of them misses the deadline.
func (c *RtpConnection) waitGathering() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.GatherTimeout)
	defer cancel()

	done := make([]<-chan struct{}, 0, len(c.agents))
	for _, ma := range c.agents {
		done = append(done, ma.gathered)
	}
	if err := waitAll(ctx, done); err != nil {
		c.logger.Warnf("candidate gathering not done after %v, falling back to plain udp", c.config.GatherTimeout)
		c.closeAgents()
		return
	}

	for _, ma := range c.agents {
		c.publishCandidates(ma)
	}
}

func (c *RtpConnection) publishCandidates(ma *mediaAgent) {
	var candidates []media.IceCandidate
	for _, cand := range ma.agent.LocalCandidates(ma.stream) {
		if cand.IsIPv6() {
			continue
		}
		candidates = append(candidates, cand)
	}
	if len(candidates) == 0 {
		c.logger.Warnf("no usable %s candidates", ma.kind)
		return
	}
	best := bestCandidate(candidates)

	for _, m := range c.localSpec.Medias {
		t := m.RTP()
		if t == nil || m.Kind.Primary() != ma.kind {
			continue
		}
		t.ICE = &media.ICEInfo{Candidates: append([]media.IceCandidate(nil), candidates...)}
		if best != nil {
			t.Address, t.Port = best.Address, best.Port
		}
	}
	c.logger.Debugf("%s published %d candidates", ma.kind, len(candidates))
}

func (c *RtpConnection) ConnectToRemote(remote *media.SessionDescription, localIsOfferer bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.negotiateLocked(remote, localIsOfferer); err != nil {
		c.logger.Warnf("connect to remote: %v", err)
		return err
	}

	c.installRemoteCandidatesLocked(localIsOfferer)
	if len(c.agents) > 0 {
		go c.awaitConnectivity(append([]*mediaAgent(nil), c.agents...))
		return nil
	}
	if err := c.establishLocked(nil); err != nil {
		c.rollbackLocked(err)
		return err
	}
	return nil
}

// installRemoteCandidatesLocked hands the remote candidates to the agent of
// the same kind. Agents without remote candidates are dropped.
func (c *RtpConnection) installRemoteCandidatesLocked(controlling bool) {
	kept := c.agents[:0]
	for _, ma := range c.agents {
		candidates := remoteCandidates(c.remoteSpec, ma.kind)
		if len(candidates) == 0 {
			c.logger.Debugf("remote offers no %s candidates, using plain udp", ma.kind)
			c.closeAgent(ma)
			continue
		}
		if err := ma.install(candidates, controlling); err != nil {
			c.logger.Warnf("install remote %s candidates: %v", ma.kind, err)
			c.closeAgent(ma)
			continue
		}
		kept = append(kept, ma)
	}
	c.agents = kept
}

func (c *RtpConnection) awaitConnectivity(agents []*mediaAgent) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	defer cancel()

	connected := make([]<-chan struct{}, 0, len(agents))
	for _, ma := range agents {
		connected = append(connected, ma.connected)
	}
	err := waitAll(ctx, connected)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		c.logger.Debugf("terminated while waiting for ice connectivity")
		return
	}
	if err != nil {
		c.logger.Warnf("ice connectivity not reached after %v, media not started", c.config.ConnectTimeout)
		return
	}

	conns := make(map[media.MediaKind]net.Conn, len(agents))
	for _, ma := range agents {
		conn, ok := ma.agent.Conn(ma.stream)
		if !ok {
			c.logger.Warnf("%s agent connected without socket, its media lines stay idle", ma.kind)
		}
		conns[ma.kind] = conn
	}
	// The remote candidates are spent, so a failure here cannot be retried.
	if err := c.establishLocked(conns); err != nil {
		c.logger.Errorf("establish: %v", err)
		c.terminateLocked()
	}
}

// establishLocked builds a receiver and sender per negotiated RTP line,
// reading from the ICE socket of the line's kind when there is one.
func (c *RtpConnection) establishLocked(conns map[media.MediaKind]net.Conn) error {
	var handlers []MediaHandler
	for i, local := range c.negotiatedLocal.Medias {
		lt := local.RTP()
		if lt == nil {
			continue
		}
		if len(local.Payloads) == 0 {
			c.logger.Debugf("media %d has no common payload", i)
			continue
		}
		kind := local.Kind.Primary()
		conn, viaICE := conns[kind]
		if viaICE && conn == nil {
			c.logger.Warnf("media %d skipped, no ice socket for %s", i, kind)
			continue
		}

		receiver, err := c.pipeline.BuildRtpReceiver(local, conn)
		if err != nil {
			for _, h := range handlers {
				closeHandler(h, c.logger)
			}
			return fmt.Errorf("%w: media %d receiver: %v", ErrResourceUnavailable, i, err)
		}
		if conn == nil {
			c.publishPortLocked(lt, receiver)
		}

		sender, err := c.pipeline.BuildRtpSender(c.negotiatedRemote.Medias[i], receiver)
		if err != nil {
			c.logger.Warnf("media %d receive only: %v", i, err)
			sender = nil
		}
		handlers = append(handlers, MediaHandler{
			Index:     i,
			Kind:      kind,
			Direction: local.Direction,
			Sender:    sender,
			Receiver:  receiver,
		})
	}
	c.establishedLocked(handlers)
	return nil
}

func (c *RtpConnection) publishPortLocked(t *media.RTPTransport, receiver pipeline.Receiver) {
	addr, ok := receiver.LocalAddr().(*net.UDPAddr)
	if !ok {
		return
	}
	t.Port = uint16(addr.Port)
	if t.Address == "" {
		t.Address = c.config.Host
	}
	if t.Address == "" {
		t.Address = addr.IP.String()
	}
}

func (c *RtpConnection) applyMode(mode media.Direction, kind media.MediaKind) error {
	for _, h := range c.handlers {
		if h.Kind == kind {
			enableHandler(h, mode)
		}
	}
	return nil
}

func (c *RtpConnection) closeAgents() {
	for _, ma := range c.agents {
		c.closeAgent(ma)
	}
	c.agents = nil
}

func (c *RtpConnection) closeAgent(ma *mediaAgent) {
	if err := ma.agent.Close(); err != nil {
		c.logger.Debugf("close %s agent: %v", ma.kind, err)
	}
}

// mediaKinds lists audio then video when any RTP line carries them.
func mediaKinds(s *media.SessionDescription) []media.MediaKind {
	var kinds []media.MediaKind
	for _, kind := range []media.MediaKind{media.KindAudio, media.KindVideo} {
		for _, m := range s.Medias {
			if m.RTP() != nil && m.Kind.Primary() == kind {
				kinds = append(kinds, kind)
				break
			}
		}
	}
	return kinds
}

func remoteCandidates(s *media.SessionDescription, kind media.MediaKind) []media.IceCandidate {
	for _, m := range s.Medias {
		if t := m.RTP(); t != nil && t.HasICE() && m.Kind.Primary() == kind {
			return t.ICE.Candidates
		}
	}
	return nil
}

// bestCandidate returns the highest priority host or server reflexive candidate.
func bestCandidate(candidates []media.IceCandidate) *media.IceCandidate {
	var best *media.IceCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.Kind != media.CandidateHost && c.Kind != media.CandidateSrflx {
			continue
		}
		if best == nil || c.Priority > best.Priority {
			best = c
		}
	}
	return best
}

func waitAll(ctx context.Context, chans []<-chan struct{}) error {
	for _, ch := range chans {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
