package media

import (
	"fmt"
	"strings"
)

// MediaKind is the set of media types a line carries.
type MediaKind uint8

const (
	KindAudio MediaKind = 1 << iota
	KindVideo
)

// Contains reports whether every tag of o is present in k.
func (k MediaKind) Contains(o MediaKind) bool {
	return o&^k == 0
}

// Primary returns the first tag of k, audio before video.
func (k MediaKind) Primary() MediaKind {
	if k&KindAudio != 0 {
		return KindAudio
	}
	return k & KindVideo
}

func (k MediaKind) String() string {
	var tags []string
	if k&KindAudio != 0 {
		tags = append(tags, "audio")
	}
	if k&KindVideo != 0 {
		tags = append(tags, "video")
	}
	if len(tags) == 0 {
		return "none"
	}
	return strings.Join(tags, "+")
}

// ParseMediaKind maps an SDP media type to a kind.
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(s) {
	case "audio":
		return KindAudio, nil
	case "video":
		return KindVideo, nil
	}
	return 0, fmt.Errorf("unsupported media type %q", s)
}

// Direction is the media flow of a line, as seen by the side it describes.
// The values are the SDP mode attribute names.
type Direction string

const (
	SendRecv Direction = "sendrecv"
	SendOnly Direction = "sendonly"
	RecvOnly Direction = "recvonly"
	Inactive Direction = "inactive"
)

// ParseDirection maps an SDP mode attribute name to a direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case SendRecv, SendOnly, RecvOnly, Inactive:
		return d, nil
	}
	return "", fmt.Errorf("unknown media direction %q", s)
}

// Sends reports whether media flows out of the side d describes.
func (d Direction) Sends() bool {
	return d == SendRecv || d == SendOnly || d == ""
}

// Receives reports whether media flows into the side d describes.
func (d Direction) Receives() bool {
	return d == SendRecv || d == RecvOnly || d == ""
}

// NegotiateDirection resolves the answerer and offerer directions of a line.
func NegotiateDirection(answerer, offerer Direction) (Direction, Direction) {
	switch {
	case answerer == Inactive || offerer == Inactive,
		answerer == RecvOnly && offerer == RecvOnly,
		answerer == SendOnly && offerer == SendOnly:
		return Inactive, Inactive
	case answerer == SendOnly || offerer == RecvOnly:
		return SendOnly, RecvOnly
	case answerer == RecvOnly || offerer == SendOnly:
		return RecvOnly, SendOnly
	}
	return SendRecv, SendRecv
}
