package mock

import (
	"time"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/pixelbender/go-sdp/sdp"
)

var (
	host = "127.0.0.1"
)

// OfferSDP is an audio plus video offer without transport addresses.
func OfferSDP() *sdp.Session {
	return &sdp.Session{
		Origin: &sdp.Origin{
			Username:       "-",
			Address:        host,
			SessionID:      time.Now().UnixNano() / 1e6,
			SessionVersion: 1,
		},
		Name:   "mock-offer",
		Timing: &sdp.Timing{Start: time.Time{}, Stop: time.Time{}},
		Media: []*sdp.Media{
			{
				Mode:  sdp.SendRecv,
				Type:  "audio",
				Proto: "RTP/AVP",
				Format: []*sdp.Format{
					{Payload: 0, Name: "PCMU", ClockRate: 8000},
					{Payload: 8, Name: "PCMA", ClockRate: 8000},
					{Payload: 101, Name: "telephone-event", ClockRate: 8000, Params: []string{"0-16"}},
				},
			},
			{
				Mode:  sdp.SendRecv,
				Type:  "video",
				Proto: "RTP/AVP",
				Format: []*sdp.Format{
					{Payload: 96, Name: "H264", ClockRate: 90000, Params: []string{"packetization-mode=1"}},
					{Payload: 97, Name: "VP8", ClockRate: 90000},
				},
			},
		},
	}
}

// Offer is OfferSDP as a session description.
func Offer() *media.SessionDescription {
	s, err := media.FromSDP(OfferSDP())
	if err != nil {
		panic(err)
	}
	return s
}

// Answer accepts PCMA audio only.
func Answer() *media.SessionDescription {
	return &media.SessionDescription{
		ID:      "mock-answer",
		Version: "1",
		Medias: []*media.MediaDescription{{
			Kind:      media.KindAudio,
			Direction: media.SendRecv,
			Transport: &media.RTPTransport{},
			Payloads: []media.Payload{
				media.NewRTPPayload(8, "PCMA", 8000),
				media.NewRTPPayload(101, "telephone-event", 8000),
			},
		}},
	}
}

// RTMP offers one video line on url.
func RTMP(url string) *media.SessionDescription {
	return &media.SessionDescription{
		ID:      "mock-rtmp",
		Version: "1",
		Medias: []*media.MediaDescription{{
			Kind:      media.KindVideo,
			Direction: media.SendRecv,
			Transport: &media.RTMPTransport{URL: url},
		}},
	}
}
