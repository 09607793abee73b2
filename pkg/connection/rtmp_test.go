package connection_test

import (
	"errors"
	"testing"

	"github.com/cloudwebrtc/go-media-session/pkg/connection"
	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rtmpSpec(id, url, publish string) *media.SessionDescription {
	return &media.SessionDescription{
		ID: id,
		Medias: []*media.MediaDescription{{
			Kind:      media.KindVideo,
			Direction: media.SendRecv,
			Transport: &media.RTMPTransport{URL: url, Publish: publish},
		}},
	}
}

func TestRtmpConnectionAssignsStreamNames(t *testing.T) {
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), &fakePipeline{}, logger)
	require.NoError(t, err)
	assert.Equal(t, connection.AwaitingRemote, c.State())

	publish := c.Descriptor().Medias[0].RTMP().Publish
	assert.Len(t, publish, 36)

	other, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), &fakePipeline{}, logger)
	require.NoError(t, err)
	assert.NotEqual(t, publish, other.Descriptor().Medias[0].RTMP().Publish)
}

func TestRtmpConnectionEstablish(t *testing.T) {
	p := &fakePipeline{}
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), p, logger)
	require.NoError(t, err)
	publish := c.Descriptor().Medias[0].RTMP().Publish

	require.NoError(t, c.ConnectToRemote(rtmpSpec("remote", "", "peer"), true))
	assert.Equal(t, connection.Established, c.State())
	select {
	case <-c.Established():
	default:
		t.Fatal("established channel not closed")
	}

	neg := c.NegotiatedLocal().Medias[0].RTMP()
	require.NotNil(t, neg)
	assert.Equal(t, "peer", neg.Play)
	assert.Equal(t, "peer", c.NegotiatedRemote().Medias[0].RTMP().Publish)
	assert.Equal(t, publish, c.NegotiatedRemote().Medias[0].RTMP().Play)

	receivers, senders := p.built()
	require.Len(t, receivers, 1)
	require.Len(t, senders, 1)
	assert.Equal(t, "rtmp://media/live/"+publish, senders[0].url)
	assert.Equal(t, "rtmp://media/live/peer", receivers[0].url)
}

func TestRtmpConnectionRemoteWithoutPublish(t *testing.T) {
	p := &fakePipeline{}
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), p, logger)
	require.NoError(t, err)

	require.NoError(t, c.ConnectToRemote(rtmpSpec("remote", "rtmp://media/live", ""), true))
	assert.Equal(t, connection.Established, c.State())
	assert.Equal(t, media.Inactive, c.Descriptor().Medias[0].Direction)
	assert.Empty(t, c.Handlers())
}

func TestRtmpConnectionNegotiatesAsOfferer(t *testing.T) {
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), &fakePipeline{}, logger)
	require.NoError(t, err)

	require.NoError(t, c.ConnectToRemote(rtmpSpec("remote", "rtmp://other/live", "peer"), false))
	neg := c.NegotiatedLocal()
	assert.Equal(t, "local", neg.ID, "local side acts as offerer once initialized")
	assert.Equal(t, "rtmp://media/live", neg.Medias[0].RTMP().URL)
}

func TestRtmpConnectionHonoursCallerRole(t *testing.T) {
	t.Skip("known weakness: the caller's localIsOfferer is ignored, an initialized connection always negotiates as offerer")

	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), &fakePipeline{}, logger)
	require.NoError(t, err)
	require.NoError(t, c.ConnectToRemote(rtmpSpec("remote", "rtmp://other/live", "peer"), false))
	assert.Equal(t, "remote", c.NegotiatedLocal().ID)
}

func TestRtmpConnectionModeNotImplemented(t *testing.T) {
	p := &fakePipeline{}
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), p, logger)
	require.NoError(t, err)
	require.NoError(t, c.ConnectToRemote(rtmpSpec("remote", "", "peer"), true))

	assert.ErrorIs(t, c.SetMode(media.Inactive, media.KindVideo), connection.ErrNotImplemented)

	c.Terminate()
	assert.Equal(t, connection.Terminated, c.State())
	assert.Equal(t, media.SendRecv, c.Mode(media.KindAudio))
	assert.Equal(t, media.SendRecv, c.Mode(media.KindVideo))

	receivers, senders := p.built()
	assert.True(t, receivers[0].isClosed())
	assert.True(t, senders[0].isClosed())
}

func TestRtmpConnectionRejectsRtp(t *testing.T) {
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), &fakePipeline{}, logger)
	require.NoError(t, err)
	assert.ErrorIs(t, c.ConnectToRemote(audioAnswer(), true), connection.ErrInvalidSpec)
}

func TestRtmpConnectionEstablishFailureRollsBack(t *testing.T) {
	p := &fakePipeline{}
	c, err := connection.NewRtmpConnection(rtmpSpec("local", "rtmp://media/live", ""), p, logger)
	require.NoError(t, err)
	p.fail(nil, errors.New("invalid url"))

	err = c.ConnectToRemote(rtmpSpec("remote", "", "peer"), true)
	assert.ErrorIs(t, err, connection.ErrResourceUnavailable)
	assert.Equal(t, connection.AwaitingRemote, c.State())
	assert.Nil(t, c.RemoteSpec())
	assert.Equal(t, c.LocalSpec(), c.Descriptor())
	assert.Empty(t, c.Handlers())

	p.fail(nil, nil)
	require.NoError(t, c.ConnectToRemote(rtmpSpec("remote", "", "peer"), true))
	assert.Equal(t, connection.Established, c.State())
	assert.Len(t, c.Handlers(), 1)
}
