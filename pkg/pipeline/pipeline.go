// Package pipeline builds the media senders and receivers a connection
// attaches to its negotiated transports.
package pipeline

import (
	"errors"
	"net"
	"time"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/utils"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

var (
	ErrUnsupportedCodec = errors.New("pipeline: unsupported codec")
	ErrNoRemoteAddress  = errors.New("pipeline: no remote address")
	ErrForeignReceiver  = errors.New("pipeline: receiver not built by this pipeline")
	ErrClosed           = errors.New("pipeline: closed")
	ErrInvalidURL       = errors.New("pipeline: invalid rtmp url")
)

const (
	DefaultPortMin = 30000
	DefaultPortMax = 65530
	DefaultMTU     = 1200

	DefaultReportInterval = utils.Duration(5 * time.Second)
)

// Receiver is the inbound side of one media line.
type Receiver interface {
	// LocalAddr is the bound socket address, nil for receivers without one.
	LocalAddr() net.Addr
	SetEnabled(enabled bool)
	Close() error
}

// Sender is the outbound side of one media line.
type Sender interface {
	SetEnabled(enabled bool)
	Close() error
}

// RTPReceiver delivers parsed packets of an RTP media line.
type RTPReceiver interface {
	Receiver
	OnRTP(fn func(pkt *rtp.Packet))
	OnRTCP(fn func(pkts []rtcp.Packet))
}

// SampleWriter packetizes media samples onto an RTP media line.
type SampleWriter interface {
	Sender
	WriteSample(sample pionmedia.Sample) error
	WriteRTCP(pkts []rtcp.Packet) error
}

// Pipeline builds senders and receivers for negotiated media lines.
type Pipeline interface {
	// BuildRtpReceiver reads from conn, or from a freshly bound UDP socket
	// when conn is nil.
	BuildRtpReceiver(local *media.MediaDescription, conn net.Conn) (Receiver, error)
	// BuildRtpSender sends to the remote line from the receiver's socket.
	BuildRtpSender(remote *media.MediaDescription, receiver Receiver) (Sender, error)
	BuildRtmpReceiver(playURL string) (Receiver, error)
	BuildRtmpSender(publishURL string) (Sender, error)
}

type Config struct {
	BindAddress string `json:"bind_address"`
	PortMin     uint16 `json:"port_min"`
	PortMax     uint16 `json:"port_max"`
	MTU         uint16 `json:"mtu"`
	// ReportInterval is how often senders emit RTCP sender reports.
	ReportInterval utils.Duration `json:"report_interval"`
}
