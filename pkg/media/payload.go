package media

import (
	"fmt"
	"strings"
)

// Fraction is a rational number such as a video framerate (30000/1001).
type Fraction struct {
	Num   int32
	Denom int32
}

// Less reports whether f is a smaller ratio than o. Denominators are expected positive.
func (f Fraction) Less(o Fraction) bool {
	return int64(f.Num)*int64(o.Denom) < int64(o.Num)*int64(f.Denom)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Denom)
}

// Payload describes one codec option of a media line.
// Optional fields are nil when unset.
type Payload struct {
	PayloadType uint8
	CodecName   string
	ClockRate   uint32

	Channels  *uint32
	Width     *uint32
	Height    *uint32
	Bitrate   *uint32
	Framerate *Fraction

	ExtraParams map[string]string
}

// NewRTPPayload returns an RTP payload without optional fields.
func NewRTPPayload(pt uint8, name string, clockRate uint32) Payload {
	return Payload{PayloadType: pt, CodecName: name, ClockRate: clockRate}
}

// IsRTP reports whether p carries codec fields.
func (p Payload) IsRTP() bool {
	return p.CodecName != ""
}

func (p Payload) String() string {
	s := fmt.Sprintf("%d %s/%d", p.PayloadType, p.CodecName, p.ClockRate)
	if p.Channels != nil {
		s += fmt.Sprintf("/%d", *p.Channels)
	}
	return s
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	c := Payload{
		PayloadType: p.PayloadType,
		CodecName:   p.CodecName,
		ClockRate:   p.ClockRate,
		Channels:    cloneUint32(p.Channels),
		Width:       cloneUint32(p.Width),
		Height:      cloneUint32(p.Height),
		Bitrate:     cloneUint32(p.Bitrate),
	}
	if p.Framerate != nil {
		f := *p.Framerate
		c.Framerate = &f
	}
	if p.ExtraParams != nil {
		c.ExtraParams = make(map[string]string, len(p.ExtraParams))
		for k, v := range p.ExtraParams {
			c.ExtraParams[k] = v
		}
	}
	return c
}

// IntersectPayload matches an answerer payload against an offerer payload.
// The result keeps the offerer's payload type, the minimum of every numeric
// option both sides set and the offerer-biased union of extra params.
func IntersectPayload(answerer, offerer Payload) (Payload, bool) {
	if !answerer.IsRTP() || !offerer.IsRTP() {
		return Payload{}, false
	}
	if !strings.EqualFold(answerer.CodecName, offerer.CodecName) || answerer.ClockRate != offerer.ClockRate {
		return Payload{}, false
	}

	neg := Payload{
		PayloadType: offerer.PayloadType,
		CodecName:   offerer.CodecName,
		ClockRate:   offerer.ClockRate,
		Channels:    minUint32(answerer.Channels, offerer.Channels),
		Width:       minUint32(answerer.Width, offerer.Width),
		Height:      minUint32(answerer.Height, offerer.Height),
		Bitrate:     minUint32(answerer.Bitrate, offerer.Bitrate),
		Framerate:   minFraction(answerer.Framerate, offerer.Framerate),
	}

	if len(offerer.ExtraParams) > 0 || len(answerer.ExtraParams) > 0 {
		neg.ExtraParams = make(map[string]string, len(offerer.ExtraParams)+len(answerer.ExtraParams))
		for k, v := range offerer.ExtraParams {
			neg.ExtraParams[k] = v
		}
		for k, v := range answerer.ExtraParams {
			if _, found := neg.ExtraParams[k]; !found {
				neg.ExtraParams[k] = v
			}
		}
	}

	return neg, true
}

func cloneUint32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func minUint32(a, b *uint32) *uint32 {
	switch {
	case a == nil:
		return cloneUint32(b)
	case b == nil:
		return cloneUint32(a)
	case *a < *b:
		return cloneUint32(a)
	}
	return cloneUint32(b)
}

func minFraction(a, b *Fraction) *Fraction {
	var f Fraction
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		f = *b
	case b == nil:
		f = *a
	case a.Less(*b):
		f = *a
	default:
		f = *b
	}
	return &f
}
