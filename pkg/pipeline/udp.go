package pipeline

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"

	"github.com/cloudwebrtc/go-media-session/pkg/logger"
	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/report"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/zerolog"
	"github.com/tevino/abool"
)

type udpPipeline struct {
	config Config
	log    log.Logger
}

// NewUDPPipeline returns a pipeline moving RTP over plain UDP sockets or over
// the connected sockets of ICE agents.
func NewUDPPipeline(config *Config, logger log.Logger) Pipeline {
	p := &udpPipeline{config: *config, log: logger.WithPrefix("pipeline.UDP")}
	if p.config.BindAddress == "" {
		p.config.BindAddress = "0.0.0.0"
	}
	if p.config.PortMin == 0 && p.config.PortMax == 0 {
		p.config.PortMin, p.config.PortMax = DefaultPortMin, DefaultPortMax
	}
	if p.config.MTU == 0 {
		p.config.MTU = DefaultMTU
	}
	if p.config.ReportInterval <= 0 {
		p.config.ReportInterval = DefaultReportInterval
	}
	return p
}

func (p *udpPipeline) BuildRtpReceiver(local *media.MediaDescription, conn net.Conn) (Receiver, error) {
	var tp net.PacketConn
	if conn != nil {
		tp = &connTransport{Conn: conn}
	} else {
		laddr := &net.UDPAddr{IP: net.ParseIP(p.config.BindAddress), Port: 0}
		udp, err := utils.ListenUDPInPortRange(p.config.PortMin, p.config.PortMax, laddr)
		if err != nil {
			return nil, fmt.Errorf("listen udp on %s: %w", p.config.BindAddress, err)
		}
		tp = udp
	}

	r := &rtpReceiver{
		kind:    local.Kind.Primary(),
		tp:      tp,
		enabled: abool.NewBool(true),
		closed:  abool.New(),
		log:     logger.New("rtp.Receiver").With().Str("kind", local.Kind.String()).Logger(),
	}
	p.log.Debugf("%s receiver on %v", r.kind, tp.LocalAddr())
	go r.readLoop()
	return r, nil
}

func (p *udpPipeline) BuildRtpSender(remote *media.MediaDescription, receiver Receiver) (Sender, error) {
	r, ok := receiver.(*rtpReceiver)
	if !ok {
		return nil, ErrForeignReceiver
	}
	payload, payloader, err := selectPayload(remote)
	if err != nil {
		return nil, err
	}

	var raddr net.Addr
	if t := remote.RTP(); t != nil && t.Address != "" && t.Port != 0 {
		udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(t.Address, strconv.Itoa(int(t.Port))))
		if err != nil {
			return nil, fmt.Errorf("resolve remote %s:%d: %w", t.Address, t.Port, err)
		}
		raddr = udpAddr
	}

	reports, err := report.NewSenderInterceptor(report.SenderInterval(p.config.ReportInterval.Std()))
	if err != nil {
		return nil, err
	}
	icp, err := reports.NewInterceptor("")
	if err != nil {
		return nil, err
	}

	ssrc := rand.Uint32()
	s := &rtpSender{
		receiver:    r,
		raddr:       raddr,
		clockRate:   payload.ClockRate,
		interceptor: icp,
		enabled:     abool.NewBool(true),
		closed:      abool.New(),
		log:         logger.New("rtp.Sender").With().Str("codec", payload.CodecName).Uint32("ssrc", ssrc).Logger(),
	}
	s.packetizer = rtp.NewPacketizer(p.config.MTU, payload.PayloadType, ssrc, payloader, rtp.NewRandomSequencer(), payload.ClockRate)

	// Packets pass through the interceptor so it can count them for the
	// periodic sender reports it writes back through rtcpWriter.
	s.rtcpWriter = icp.BindRTCPWriter(interceptor.RTCPWriterFunc(func(pkts []rtcp.Packet, _ interceptor.Attributes) (int, error) {
		buf, err := rtcp.Marshal(pkts)
		if err != nil {
			return 0, err
		}
		return len(buf), s.write(buf)
	}))
	s.rtpWriter = icp.BindLocalStream(&interceptor.StreamInfo{
		SSRC:        ssrc,
		PayloadType: payload.PayloadType,
		ClockRate:   payload.ClockRate,
		MimeType:    mimeType(r.kind, payload.CodecName),
	}, interceptor.RTPWriterFunc(func(header *rtp.Header, body []byte, _ interceptor.Attributes) (int, error) {
		pkt := &rtp.Packet{Header: *header, Payload: body}
		buf, err := pkt.Marshal()
		if err != nil {
			return 0, err
		}
		return len(buf), s.write(buf)
	}))

	p.log.Debugf("%s sender %s/%d to %v", r.kind, payload.CodecName, payload.ClockRate, s.raddr)
	return s, nil
}

func (p *udpPipeline) BuildRtmpReceiver(playURL string) (Receiver, error) {
	return newRtmpEndpoint(playURL, p.log)
}

func (p *udpPipeline) BuildRtmpSender(publishURL string) (Sender, error) {
	return newRtmpEndpoint(publishURL, p.log)
}

// connTransport adapts a connected socket to the packet interface.
type connTransport struct {
	net.Conn
}

func (c *connTransport) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.Conn.Read(b)
	return n, c.Conn.RemoteAddr(), err
}

func (c *connTransport) WriteTo(b []byte, _ net.Addr) (int, error) {
	return c.Conn.Write(b)
}

type rtpReceiver struct {
	kind    media.MediaKind
	tp      net.PacketConn
	enabled *abool.AtomicBool
	closed  *abool.AtomicBool

	mu     sync.Mutex
	source net.Addr
	onRTP  func(*rtp.Packet)
	onRTCP func([]rtcp.Packet)

	log zerolog.Logger
}

func (r *rtpReceiver) LocalAddr() net.Addr {
	return r.tp.LocalAddr()
}

func (r *rtpReceiver) SetEnabled(enabled bool) {
	r.enabled.SetTo(enabled)
}

func (r *rtpReceiver) OnRTP(fn func(pkt *rtp.Packet)) {
	r.mu.Lock()
	r.onRTP = fn
	r.mu.Unlock()
}

func (r *rtpReceiver) OnRTCP(fn func(pkts []rtcp.Packet)) {
	r.mu.Lock()
	r.onRTCP = fn
	r.mu.Unlock()
}

func (r *rtpReceiver) Close() error {
	if !r.closed.SetToIf(false, true) {
		return nil
	}
	return r.tp.Close()
}

// lastSource is the address the latest datagram came from.
func (r *rtpReceiver) lastSource() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

func (r *rtpReceiver) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, raddr, err := r.tp.ReadFrom(buf)
		if err != nil {
			if !r.closed.IsSet() {
				r.log.Info().Err(err).Msg("read stopped")
			}
			return
		}
		r.mu.Lock()
		r.source = raddr
		onRTP, onRTCP := r.onRTP, r.onRTCP
		r.mu.Unlock()

		if !r.enabled.IsSet() {
			continue
		}
		r.log.Trace().Int("len", n).Stringer("from", raddr).Msg("read")

		data := make([]byte, n)
		copy(data, buf[:n])
		if isRTCP(data) {
			pkts, err := rtcp.Unmarshal(data)
			if err != nil {
				r.log.Debug().Err(err).Msg("bad rtcp")
				continue
			}
			if onRTCP != nil {
				onRTCP(pkts)
			}
			continue
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(data); err != nil {
			r.log.Debug().Err(err).Msg("bad rtp")
			continue
		}
		if onRTP != nil {
			onRTP(pkt)
		}
	}
}

// isRTCP demultiplexes RTP and RTCP sharing one port (RFC 5761).
func isRTCP(b []byte) bool {
	return len(b) >= 2 && b[1] >= 192 && b[1] <= 223
}

type rtpSender struct {
	receiver   *rtpReceiver
	raddr      net.Addr
	packetizer rtp.Packetizer
	clockRate  uint32
	enabled    *abool.AtomicBool
	closed     *abool.AtomicBool

	interceptor interceptor.Interceptor
	rtpWriter   interceptor.RTPWriter
	rtcpWriter  interceptor.RTCPWriter

	mu  sync.Mutex
	log zerolog.Logger
}

func (s *rtpSender) SetEnabled(enabled bool) {
	s.enabled.SetTo(enabled)
}

func (s *rtpSender) Close() error {
	if !s.closed.SetToIf(false, true) {
		return nil
	}
	return s.interceptor.Close()
}

func (s *rtpSender) WriteSample(sample pionmedia.Sample) error {
	if s.closed.IsSet() {
		return ErrClosed
	}
	if !s.enabled.IsSet() {
		return nil
	}
	samples := uint32(sample.Duration.Seconds() * float64(s.clockRate))

	s.mu.Lock()
	packets := s.packetizer.Packetize(sample.Data, samples)
	s.mu.Unlock()

	for _, pkt := range packets {
		if _, err := s.rtpWriter.Write(&pkt.Header, pkt.Payload, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *rtpSender) WriteRTCP(pkts []rtcp.Packet) error {
	if s.closed.IsSet() {
		return ErrClosed
	}
	_, err := s.rtcpWriter.Write(pkts, nil)
	return err
}

func (s *rtpSender) write(buf []byte) error {
	raddr := s.raddr
	if _, connected := s.receiver.tp.(*connTransport); !connected && raddr == nil {
		if raddr = s.receiver.lastSource(); raddr == nil {
			return ErrNoRemoteAddress
		}
	}
	n, err := s.receiver.tp.WriteTo(buf, raddr)
	if err != nil {
		return err
	}
	s.log.Trace().Int("len", n).Msg("write")
	return nil
}
