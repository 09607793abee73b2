package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwebrtc/go-media-session/pkg/connection"
	"github.com/cloudwebrtc/go-media-session/pkg/ice"
	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/pipeline"
	"github.com/cloudwebrtc/go-media-session/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"
)

var (
	ErrConnectionNotFound    = errors.New("connection not found")
	ErrUnknownConnectionKind = errors.New("unknown connection kind")
	ErrShutdown              = errors.New("endpoint is shut down")
)

// EndPointConfig describes available options
type EndPointConfig struct {
	// Public IP address advertised for plain UDP media, if empty auto resolved IP will be used.
	Host string `json:"host"`
	// BindAddress of the RTP sockets.
	BindAddress string   `json:"bind_address"`
	RtpPortMin  uint16   `json:"rtp_port_min"`
	RtpPortMax  uint16   `json:"rtp_port_max"`
	StunServers []string `json:"stun_servers"`
	// IceDisabled makes RTP connections use plain UDP only.
	IceDisabled bool `json:"ice_disabled"`
	// IceIncludeLoopback lets ICE pair loopback addresses.
	IceIncludeLoopback bool `json:"ice_include_loopback"`
	// Timeouts are read as "10s" style strings or as seconds.
	GatherTimeout  utils.Duration `json:"gather_timeout"`
	ConnectTimeout utils.Duration `json:"connect_timeout"`
	// RtcpReportInterval is the period of RTCP sender reports.
	RtcpReportInterval utils.Duration `json:"rtcp_report_interval"`

	// Pipeline overrides the default UDP pipeline.
	Pipeline pipeline.Pipeline `json:"-"`
	// AgentFactory overrides the default pion agents.
	AgentFactory ice.AgentFactory `json:"-"`
}

// EndPoint owns the connections of one media server instance.
type EndPoint struct {
	config      EndPointConfig
	loop        *ice.EventLoop
	pipeline    pipeline.Pipeline
	factory     ice.AgentFactory
	connections map[string]connection.Connection
	mu          sync.RWMutex
	inShutdown  *abool.AtomicBool
	log         log.Logger
}

// NewEndPoint creates the endpoint and its ICE event loop.
func NewEndPoint(config *EndPointConfig, logger log.Logger) (*EndPoint, error) {
	if config == nil {
		config = &EndPointConfig{}
	}
	logger = logger.WithPrefix("EndPoint")

	e := &EndPoint{
		config:      *config,
		connections: make(map[string]connection.Connection),
		inShutdown:  abool.New(),
		log:         logger,
	}
	e.config.Host = utils.ResolveHost(config.Host, logger)
	if e.config.RtpPortMin == 0 && e.config.RtpPortMax == 0 {
		e.config.RtpPortMin, e.config.RtpPortMax = pipeline.DefaultPortMin, pipeline.DefaultPortMax
	}

	e.pipeline = config.Pipeline
	if e.pipeline == nil {
		e.pipeline = pipeline.NewUDPPipeline(&pipeline.Config{
			BindAddress:    config.BindAddress,
			PortMin:        e.config.RtpPortMin,
			PortMax:        e.config.RtpPortMax,
			ReportInterval: config.RtcpReportInterval,
		}, logger)
	}

	e.loop = ice.NewEventLoop()
	if !config.IceDisabled {
		e.factory = config.AgentFactory
		if e.factory == nil {
			factory, err := ice.NewAgentFactory(&ice.Config{
				StunServers:     config.StunServers,
				PortMin:         e.config.RtpPortMin,
				PortMax:         e.config.RtpPortMax,
				IncludeLoopback: config.IceIncludeLoopback,
			}, e.loop, logger)
			if err != nil {
				e.loop.Close()
				return nil, err
			}
			e.factory = factory
		}
	}

	e.log.Infof("endpoint ready, host %s, ice %v", e.config.Host, e.factory != nil)
	return e, nil
}

func (e *EndPoint) Log() log.Logger {
	return e.log
}

// CreateConnection builds a connection of the given kind offering local.
// RTP connections return once candidate gathering finished.
func (e *EndPoint) CreateConnection(kind connection.Kind, local *media.SessionDescription) (connection.Connection, error) {
	if e.shuttingDown() {
		return nil, ErrShutdown
	}

	var (
		conn connection.Connection
		err  error
	)
	switch kind {
	case connection.KindRTP:
		conn, err = connection.NewRtpConnection(local, &connection.RtpConfig{
			Host:           e.config.Host,
			GatherTimeout:  e.config.GatherTimeout.Std(),
			ConnectTimeout: e.config.ConnectTimeout.Std(),
		}, e.pipeline, e.factory, e.log)
	case connection.KindRTMP:
		conn, err = connection.NewRtmpConnection(local, e.pipeline, e.log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnectionKind, kind)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.connections[conn.ID()] = conn
	e.mu.Unlock()

	e.log.Debugf("connection %s created", conn.ID())
	return conn, nil
}

// DeleteConnection terminates and forgets a connection.
func (e *EndPoint) DeleteConnection(id string) error {
	e.mu.Lock()
	conn, found := e.connections[id]
	delete(e.connections, id)
	e.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	conn.Terminate()
	e.log.Debugf("connection %s deleted", id)
	return nil
}

func (e *EndPoint) Connection(id string) (connection.Connection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conn, found := e.connections[id]
	return conn, found
}

// Connections returns the live connections ordered by id.
func (e *EndPoint) Connections() []connection.Connection {
	e.mu.RLock()
	res := make([]connection.Connection, 0, len(e.connections))
	for _, conn := range e.connections {
		res = append(res, conn)
	}
	e.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

func (e *EndPoint) shuttingDown() bool {
	return e.inShutdown.IsSet()
}

// Shutdown terminates every connection and stops the ICE event loop.
func (e *EndPoint) Shutdown() {
	if !e.inShutdown.SetToIf(false, true) {
		return
	}
	e.mu.Lock()
	conns := e.connections
	e.connections = make(map[string]connection.Connection)
	e.mu.Unlock()

	for _, conn := range conns {
		conn.Terminate()
	}
	e.loop.Close()
	e.log.Infof("endpoint shut down, %d connections terminated", len(conns))
}
