package media

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v2"
)

// Transport describes how a media line is carried. It is implemented by
// *RTPTransport and *RTMPTransport only.
type Transport interface {
	Clone() Transport
	String() string
	isTransport()
}

// RTPTransport carries plain RTP address info and, when negotiated through
// ICE, the gathered candidates. Empty Address and zero Port are unset.
type RTPTransport struct {
	Address string
	Port    uint16
	ICE     *ICEInfo
}

func (t *RTPTransport) isTransport() {}

func (t *RTPTransport) Clone() Transport {
	c := &RTPTransport{Address: t.Address, Port: t.Port}
	if t.ICE != nil {
		c.ICE = &ICEInfo{Candidates: append([]IceCandidate(nil), t.ICE.Candidates...)}
	}
	return c
}

func (t *RTPTransport) String() string {
	n := 0
	if t.ICE != nil {
		n = len(t.ICE.Candidates)
	}
	return fmt.Sprintf("rtp %s:%d candidates=%d", t.Address, t.Port, n)
}

// HasICE reports whether t carries at least one candidate.
func (t *RTPTransport) HasICE() bool {
	return t.ICE != nil && len(t.ICE.Candidates) > 0
}

// RTMPTransport carries a server URL and the stream names this side publishes
// and plays. Empty fields are unset.
type RTMPTransport struct {
	URL     string
	Publish string
	Play    string
}

func (t *RTMPTransport) isTransport() {}

func (t *RTMPTransport) Clone() Transport {
	c := *t
	return &c
}

func (t *RTMPTransport) String() string {
	return fmt.Sprintf("rtmp %s publish=%s play=%s", t.URL, t.Publish, t.Play)
}

// ICEInfo holds the candidates of one media line.
type ICEInfo struct {
	Candidates []IceCandidate
}

// IceCandidate is a gathered or remote transport address.
type IceCandidate struct {
	Address     string
	Port        uint16
	BaseAddress string
	BasePort    uint16
	Priority    uint32
	Foundation  string
	ComponentID uint16
	StreamID    uint32
	Username    string
	Password    string
	Transport   string
	Kind        string
}

// Candidate kinds.
const (
	CandidateHost  = "host"
	CandidateSrflx = "srflx"
	CandidatePrflx = "prflx"
	CandidateRelay = "relay"
)

// Marshal renders c in the SDP candidate attribute syntax, without the
// "candidate:" prefix.
func (c IceCandidate) Marshal() string {
	transport := c.Transport
	if transport == "" {
		transport = "udp"
	}
	kind := c.Kind
	if kind == "" {
		kind = CandidateHost
	}
	s := fmt.Sprintf("%s %d %s %d %s %d typ %s",
		c.Foundation, c.ComponentID, strings.ToLower(transport), c.Priority, c.Address, c.Port, kind)
	if kind != CandidateHost && c.BaseAddress != "" {
		s += fmt.Sprintf(" raddr %s rport %d", c.BaseAddress, c.BasePort)
	}
	return s
}

// ParseCandidate reads a candidate attribute value. Credentials and stream id
// are not part of the attribute and are left for the caller to fill.
func ParseCandidate(raw string) (IceCandidate, error) {
	cand, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:"))
	if err != nil {
		return IceCandidate{}, err
	}
	return CandidateFromICE(cand), nil
}

// CandidateFromICE converts an agent candidate.
func CandidateFromICE(cand ice.Candidate) IceCandidate {
	c := IceCandidate{
		Address:     cand.Address(),
		Port:        uint16(cand.Port()),
		BaseAddress: cand.Address(),
		BasePort:    uint16(cand.Port()),
		Priority:    cand.Priority(),
		Foundation:  cand.Foundation(),
		ComponentID: cand.Component(),
		Transport:   cand.NetworkType().NetworkShort(),
		Kind:        cand.Type().String(),
	}
	if rel := cand.RelatedAddress(); rel != nil {
		c.BaseAddress = rel.Address
		c.BasePort = uint16(rel.Port)
	}
	return c
}

// IsIPv6 reports whether the candidate address is an IPv6 literal.
func (c IceCandidate) IsIPv6() bool {
	return strings.Contains(c.Address, ":")
}
