package media

import "fmt"

// MediaDescription is one negotiable media line.
type MediaDescription struct {
	Kind      MediaKind
	Direction Direction
	Transport Transport
	Payloads  []Payload
}

// Clone returns a deep copy of m.
func (m *MediaDescription) Clone() *MediaDescription {
	if m == nil {
		return nil
	}
	c := &MediaDescription{Kind: m.Kind, Direction: m.Direction}
	if m.Transport != nil {
		c.Transport = m.Transport.Clone()
	}
	if m.Payloads != nil {
		c.Payloads = make([]Payload, len(m.Payloads))
		for i, p := range m.Payloads {
			c.Payloads[i] = p.Clone()
		}
	}
	return c
}

func (m *MediaDescription) String() string {
	return fmt.Sprintf("%s %s %v payloads=%v", m.Kind, m.Direction, m.Transport, m.Payloads)
}

// RTP returns the RTP transport of m, or nil.
func (m *MediaDescription) RTP() *RTPTransport {
	t, _ := m.Transport.(*RTPTransport)
	return t
}

// RTMP returns the RTMP transport of m, or nil.
func (m *MediaDescription) RTMP() *RTMPTransport {
	t, _ := m.Transport.(*RTMPTransport)
	return t
}

// IntersectMedia negotiates an answerer line against an offerer line and
// returns the negotiated line of each side.
//
// Only the answerer's kinds are checked against the offerer's, so an answerer
// line with a subset of the offerer kinds is accepted but not the reverse.
func IntersectMedia(answerer, offerer *MediaDescription) (*MediaDescription, *MediaDescription, bool) {
	if answerer == nil || offerer == nil {
		return nil, nil, false
	}
	if !offerer.Kind.Contains(answerer.Kind) {
		return nil, nil, false
	}
	if !sameTransportKind(answerer.Transport, offerer.Transport) {
		return nil, nil, false
	}

	negAnswerer := &MediaDescription{Kind: offerer.Kind}
	negOfferer := &MediaDescription{Kind: offerer.Kind}
	negAnswerer.Direction, negOfferer.Direction = NegotiateDirection(answerer.Direction, offerer.Direction)

	for _, ap := range answerer.Payloads {
		for _, op := range offerer.Payloads {
			if neg, ok := IntersectPayload(ap, op); ok {
				negAnswerer.Payloads = append(negAnswerer.Payloads, neg)
				negOfferer.Payloads = append(negOfferer.Payloads, neg.Clone())
				break
			}
		}
	}

	negAnswerer.Transport, negOfferer.Transport = intersectTransport(answerer.Transport, offerer.Transport)
	if negAnswerer.Transport == nil && negOfferer.Transport == nil {
		return nil, nil, false
	}

	return negAnswerer, negOfferer, true
}

func sameTransportKind(a, b Transport) bool {
	switch a.(type) {
	case *RTPTransport:
		_, ok := b.(*RTPTransport)
		return ok
	case *RTMPTransport:
		_, ok := b.(*RTMPTransport)
		return ok
	}
	return false
}

func intersectTransport(answerer, offerer Transport) (Transport, Transport) {
	ar, aok := answerer.(*RTMPTransport)
	or, ook := offerer.(*RTMPTransport)
	if !aok || !ook {
		return answerer.Clone(), offerer.Clone()
	}

	if ar.Publish == "" || or.Publish == "" {
		return nil, nil
	}
	url := or.URL
	if url == "" {
		url = ar.URL
	}
	if url == "" {
		return nil, nil
	}

	negAnswerer := ar.Clone().(*RTMPTransport)
	negOfferer := or.Clone().(*RTMPTransport)
	negAnswerer.Play = or.Publish
	negOfferer.Play = ar.Publish
	negAnswerer.URL = url
	negOfferer.URL = url
	return negAnswerer, negOfferer
}
