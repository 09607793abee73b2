package pipeline

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"
)

// rtmpEndpoint is one side of an RTMP stream. It validates and keeps the
// stream URL; the RTMP client that moves the media attaches through URL.
type rtmpEndpoint struct {
	url     *url.URL
	enabled *abool.AtomicBool
	closed  *abool.AtomicBool
	log     log.Logger
}

// RTMPEndpoint is implemented by the RTMP senders and receivers of the UDP pipeline.
type RTMPEndpoint interface {
	URL() string
	Enabled() bool
}

func newRtmpEndpoint(raw string, logger log.Logger) (*rtmpEndpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "rtmp" && scheme != "rtmps" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	e := &rtmpEndpoint{
		url:     u,
		enabled: abool.NewBool(true),
		closed:  abool.New(),
		log:     logger.WithFields(log.Fields{"url": raw}),
	}
	e.log.Debugf("rtmp endpoint ready")
	return e, nil
}

func (e *rtmpEndpoint) URL() string {
	return e.url.String()
}

func (e *rtmpEndpoint) Enabled() bool {
	return e.enabled.IsSet() && !e.closed.IsSet()
}

func (e *rtmpEndpoint) LocalAddr() net.Addr {
	return nil
}

func (e *rtmpEndpoint) SetEnabled(enabled bool) {
	e.enabled.SetTo(enabled)
}

func (e *rtmpEndpoint) Close() error {
	if e.closed.SetToIf(false, true) {
		e.log.Debugf("rtmp endpoint closed")
	}
	return nil
}
