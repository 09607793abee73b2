package connection_test

import (
	"errors"
	"net"
	"sync"

	"github.com/cloudwebrtc/go-media-session/pkg/ice"
	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/pipeline"
	"github.com/cloudwebrtc/go-media-session/pkg/utils"
	"github.com/ghettovoice/gosip/log"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "connection_test", nil)

type fakeAgent struct {
	mu sync.Mutex

	candidates      []media.IceCandidate
	gather          bool
	connectOnRemote bool
	failAddStream   bool

	onGathering func(ice.StreamID)
	onState     func(ice.StreamID, ice.ComponentID, ice.State)

	stream      ice.StreamID
	controlling bool
	ufrag, pwd  string
	remote      []media.IceCandidate
	conn        net.Conn
	closed      bool
}

func (a *fakeAgent) AddStream() (ice.StreamID, error) {
	if a.failAddStream {
		return 0, errors.New("no ports")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stream = 7
	return a.stream, nil
}

func (a *fakeAgent) GatherCandidates(stream ice.StreamID) error {
	a.mu.Lock()
	gather, fn := a.gather, a.onGathering
	a.mu.Unlock()
	if gather {
		go fn(stream)
	}
	return nil
}

func (a *fakeAgent) LocalCandidates(stream ice.StreamID) []media.IceCandidate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]media.IceCandidate(nil), a.candidates...)
}

func (a *fakeAgent) SetControllingMode(controlling bool) {
	a.mu.Lock()
	a.controlling = controlling
	a.mu.Unlock()
}

func (a *fakeAgent) SetRemoteCredentials(stream ice.StreamID, ufrag, pwd string) error {
	a.mu.Lock()
	a.ufrag, a.pwd = ufrag, pwd
	a.mu.Unlock()
	return nil
}

func (a *fakeAgent) SetRemoteCandidates(stream ice.StreamID, component ice.ComponentID, candidates []media.IceCandidate) error {
	a.mu.Lock()
	a.remote = candidates
	connect := a.connectOnRemote
	a.mu.Unlock()
	if connect {
		go a.setState(ice.StateConnected)
	}
	return nil
}

func (a *fakeAgent) setState(state ice.State) {
	a.mu.Lock()
	fn, stream := a.onState, a.stream
	a.mu.Unlock()
	fn(stream, ice.ComponentRTP, state)
}

func (a *fakeAgent) AttachReceive(stream ice.StreamID, component ice.ComponentID, fn func([]byte)) error {
	return nil
}

func (a *fakeAgent) OnGatheringDone(fn func(stream ice.StreamID)) {
	a.mu.Lock()
	a.onGathering = fn
	a.mu.Unlock()
}

func (a *fakeAgent) OnComponentStateChanged(fn func(stream ice.StreamID, component ice.ComponentID, state ice.State)) {
	a.mu.Lock()
	a.onState = fn
	a.mu.Unlock()
}

func (a *fakeAgent) Conn(stream ice.StreamID) (net.Conn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn, a.conn != nil
}

func (a *fakeAgent) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

func (a *fakeAgent) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type fakeFactory struct {
	mu     sync.Mutex
	newFn  func() *fakeAgent
	agents []*fakeAgent
}

func (f *fakeFactory) NewAgent() (ice.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.newFn()
	f.agents = append(f.agents, a)
	return a, nil
}

type fakeHandler struct {
	mu      sync.Mutex
	addr    net.Addr
	url     string
	conn    net.Conn
	enabled bool
	closed  bool
}

func (h *fakeHandler) LocalAddr() net.Addr { return h.addr }

func (h *fakeHandler) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
}

func (h *fakeHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandler) isEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *fakeHandler) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakePipeline struct {
	mu        sync.Mutex
	receivers []*fakeHandler
	senders   []*fakeHandler
	nextPort  int

	rtpReceiverErr error
	rtmpSenderErr  error
}

// fail makes the next builds of RTP receivers and RTMP senders return the
// given errors. Nil errors restore normal builds.
func (p *fakePipeline) fail(rtpReceiverErr, rtmpSenderErr error) {
	p.mu.Lock()
	p.rtpReceiverErr, p.rtmpSenderErr = rtpReceiverErr, rtmpSenderErr
	p.mu.Unlock()
}

func (p *fakePipeline) BuildRtpReceiver(local *media.MediaDescription, conn net.Conn) (pipeline.Receiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtpReceiverErr != nil {
		return nil, p.rtpReceiverErr
	}
	p.nextPort++
	h := &fakeHandler{addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + p.nextPort}, conn: conn}
	p.receivers = append(p.receivers, h)
	return h, nil
}

func (p *fakePipeline) BuildRtpSender(remote *media.MediaDescription, receiver pipeline.Receiver) (pipeline.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &fakeHandler{}
	p.senders = append(p.senders, h)
	return h, nil
}

func (p *fakePipeline) BuildRtmpReceiver(playURL string) (pipeline.Receiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &fakeHandler{url: playURL}
	p.receivers = append(p.receivers, h)
	return h, nil
}

func (p *fakePipeline) BuildRtmpSender(publishURL string) (pipeline.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtmpSenderErr != nil {
		return nil, p.rtmpSenderErr
	}
	h := &fakeHandler{url: publishURL}
	p.senders = append(p.senders, h)
	return h, nil
}

func (p *fakePipeline) built() (receivers, senders []*fakeHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeHandler(nil), p.receivers...), append([]*fakeHandler(nil), p.senders...)
}
