package connection

import (
	"fmt"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/cloudwebrtc/go-media-session/pkg/pipeline"
	"github.com/ghettovoice/gosip/log"
	"github.com/google/uuid"
)

// RtmpConnection publishes to and plays from an RTMP server.
type RtmpConnection struct {
	*connection
	initialized bool
}

// NewRtmpConnection assigns a fresh stream name to every RTMP line of local.
func NewRtmpConnection(local *media.SessionDescription, p pipeline.Pipeline, logger log.Logger) (*RtmpConnection, error) {
	if err := validateSpec(local, KindRTMP); err != nil {
		return nil, err
	}
	c := &RtmpConnection{connection: newConnection(KindRTMP, local, p, logger)}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.localSpec.Medias {
		if t := m.RTMP(); t != nil {
			t.Publish = uuid.New().String()
		}
	}
	c.descriptor = c.localSpec
	c.state = AwaitingRemote
	c.initialized = true

	c.logger.Infof("created")
	return c, nil
}

// ConnectToRemote negotiates with the local side as offerer once the
// connection is initialized, which is always the case after
// NewRtmpConnection returns. localIsOfferer is not consulted.
func (c *RtmpConnection) ConnectToRemote(remote *media.SessionDescription, localIsOfferer bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	offerer := c.initialized
	if offerer != localIsOfferer {
		c.logger.Debugf("caller expects local %s, negotiating as %s", role(localIsOfferer), role(offerer))
	}
	if err := c.negotiateLocked(remote, offerer); err != nil {
		c.logger.Warnf("connect to remote: %v", err)
		return err
	}
	if err := c.establishLocked(); err != nil {
		c.rollbackLocked(err)
		return err
	}
	return nil
}

// establishLocked publishes to {url}/{publish} and plays {url}/{play} for
// every negotiated RTMP line.
func (c *RtmpConnection) establishLocked() error {
	var handlers []MediaHandler
	fail := func(err error) error {
		for _, h := range handlers {
			closeHandler(h, c.logger)
		}
		return err
	}

	for i, local := range c.negotiatedLocal.Medias {
		t := local.RTMP()
		if t == nil {
			continue
		}
		h := MediaHandler{Index: i, Kind: local.Kind.Primary(), Direction: local.Direction}

		sender, err := c.pipeline.BuildRtmpSender(streamURL(t.URL, t.Publish))
		if err != nil {
			return fail(fmt.Errorf("%w: media %d publish: %v", ErrResourceUnavailable, i, err))
		}
		h.Sender = sender

		receiver, err := c.pipeline.BuildRtmpReceiver(streamURL(t.URL, t.Play))
		if err != nil {
			sender.Close()
			return fail(fmt.Errorf("%w: media %d play: %v", ErrResourceUnavailable, i, err))
		}
		h.Receiver = receiver
		handlers = append(handlers, h)
	}

	c.establishedLocked(handlers)
	return nil
}

func streamURL(base, stream string) string {
	return fmt.Sprintf("%s/%s", base, stream)
}
