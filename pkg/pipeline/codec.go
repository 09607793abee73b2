package pipeline

import (
	"fmt"
	"strings"

	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

func mimeType(kind media.MediaKind, codec string) string {
	return kind.Primary().String() + "/" + codec
}

func newPayloader(kind media.MediaKind, codec string) (rtp.Payloader, error) {
	mime := mimeType(kind, codec)
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		return &codecs.OpusPayloader{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypePCMU), strings.EqualFold(mime, webrtc.MimeTypePCMA):
		return &codecs.G711Payloader{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypeG722):
		return &codecs.G722Payloader{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypeH264):
		return &codecs.H264Payloader{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		return &codecs.VP8Payloader{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypeVP9):
		return &codecs.VP9Payloader{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
}

// selectPayload returns the first negotiated payload a payloader exists for.
func selectPayload(m *media.MediaDescription) (media.Payload, rtp.Payloader, error) {
	for _, p := range m.Payloads {
		if payloader, err := newPayloader(m.Kind, p.CodecName); err == nil {
			return p, payloader, nil
		}
	}
	return media.Payload{}, nil, fmt.Errorf("%w: none of %v", ErrUnsupportedCodec, m.Payloads)
}
