package connection

import "time"

const (
	DefaultGatherTimeout  = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// RtpConfig configures RTP connections.
type RtpConfig struct {
	// Host is the address advertised for plain UDP media.
	Host string `json:"host"`
	// GatherTimeout bounds candidate gathering in NewRtpConnection.
	GatherTimeout time.Duration `json:"gather_timeout"`
	// ConnectTimeout bounds the ICE connectivity wait after ConnectToRemote.
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

func (c RtpConfig) withDefaults() RtpConfig {
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = DefaultGatherTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}
