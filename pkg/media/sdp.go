package media

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pixelbender/go-sdp/sdp"
)

const (
	protoRTP  = "RTP/AVP"
	protoRTMP = "TCP/RTMP"

	attrICEUfrag    = "ice-ufrag"
	attrICEPwd      = "ice-pwd"
	attrCandidate   = "candidate"
	attrRTMPURL     = "rtmp-url"
	attrRTMPPublish = "rtmp-publish"
	attrRTMPPlay    = "rtmp-play"
)

// SDP renders s as an SDP session. Width, height, framerate and bitrate are
// not carried.
func (s *SessionDescription) SDP() *sdp.Session {
	name := s.ID
	if name == "" {
		name = "-"
	}
	version, _ := strconv.ParseInt(s.Version, 10, 64)
	sess := &sdp.Session{
		Origin: &sdp.Origin{
			Username:       "-",
			Address:        "0.0.0.0",
			SessionID:      time.Now().UnixNano() / 1e6,
			SessionVersion: version,
		},
		Name:   name,
		Timing: &sdp.Timing{Start: time.Time{}, Stop: time.Time{}},
	}

	for _, m := range s.Medias {
		sm := mediaToSDP(m)
		if sm.Connection != nil && sess.Origin.Address == "0.0.0.0" {
			sess.Origin.Address = sm.Connection[0].Address
		}
		sess.Media = append(sess.Media, sm)
	}
	return sess
}

// Marshal returns the SDP text of s.
func (s *SessionDescription) Marshal() string {
	return s.SDP().String()
}

// Parse reads SDP text.
func Parse(data []byte) (*SessionDescription, error) {
	sess, err := sdp.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse sdp: %v", err)
	}
	return FromSDP(sess)
}

// FromSDP converts a parsed SDP session.
func FromSDP(sess *sdp.Session) (*SessionDescription, error) {
	s := &SessionDescription{ID: sess.Name}
	if sess.Origin != nil {
		s.Version = strconv.FormatInt(sess.Origin.SessionVersion, 10)
		if s.ID == "" || s.ID == "-" {
			s.ID = strconv.FormatInt(sess.Origin.SessionID, 10)
		}
	}
	for i, sm := range sess.Media {
		m, err := mediaFromSDP(sess, sm, uint32(i+1))
		if err != nil {
			return nil, fmt.Errorf("media %d: %w", i, err)
		}
		s.Medias = append(s.Medias, m)
	}
	return s, nil
}

func mediaToSDP(m *MediaDescription) *sdp.Media {
	kind := m.Kind.Primary()
	if kind == 0 {
		kind = KindAudio
	}
	mode := m.Direction
	if mode == "" {
		mode = SendRecv
	}
	sm := &sdp.Media{
		Type:  kind.String(),
		Proto: protoRTP,
		Mode:  string(mode),
	}

	for _, p := range m.Payloads {
		f := &sdp.Format{Payload: p.PayloadType, Name: p.CodecName, ClockRate: int(p.ClockRate)}
		if p.Channels != nil {
			f.Channels = int(*p.Channels)
		}
		keys := make([]string, 0, len(p.ExtraParams))
		for k := range p.ExtraParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := p.ExtraParams[k]; v != "" {
				f.Params = append(f.Params, k+"="+v)
			} else {
				f.Params = append(f.Params, k)
			}
		}
		sm.Format = append(sm.Format, f)
	}

	switch t := m.Transport.(type) {
	case *RTPTransport:
		sm.Port = int(t.Port)
		if t.Address != "" {
			sm.Connection = []*sdp.Connection{{Address: t.Address}}
		}
		if t.HasICE() {
			first := t.ICE.Candidates[0]
			sm.Attributes = append(sm.Attributes,
				&sdp.Attr{Name: attrICEUfrag, Value: first.Username},
				&sdp.Attr{Name: attrICEPwd, Value: first.Password})
			for _, c := range t.ICE.Candidates {
				sm.Attributes = append(sm.Attributes, &sdp.Attr{Name: attrCandidate, Value: c.Marshal()})
			}
		}
	case *RTMPTransport:
		sm.Proto = protoRTMP
		for _, a := range []struct{ name, value string }{
			{attrRTMPURL, t.URL}, {attrRTMPPublish, t.Publish}, {attrRTMPPlay, t.Play},
		} {
			if a.value != "" {
				sm.Attributes = append(sm.Attributes, &sdp.Attr{Name: a.name, Value: a.value})
			}
		}
	}
	return sm
}

func mediaFromSDP(sess *sdp.Session, sm *sdp.Media, streamID uint32) (*MediaDescription, error) {
	kind, err := ParseMediaKind(sm.Type)
	if err != nil {
		return nil, err
	}
	m := &MediaDescription{Kind: kind, Direction: SendRecv}
	mode := sm.Mode
	if mode == "" {
		mode = sess.Mode
	}
	if mode != "" {
		if m.Direction, err = ParseDirection(mode); err != nil {
			return nil, err
		}
	}

	for _, f := range sm.Format {
		p := NewRTPPayload(f.Payload, f.Name, uint32(f.ClockRate))
		if f.Channels > 0 {
			ch := uint32(f.Channels)
			p.Channels = &ch
		}
		for _, param := range f.Params {
			if p.ExtraParams == nil {
				p.ExtraParams = make(map[string]string)
			}
			kv := strings.SplitN(strings.TrimSpace(param), "=", 2)
			if len(kv) == 2 {
				p.ExtraParams[kv[0]] = kv[1]
			} else {
				p.ExtraParams[kv[0]] = ""
			}
		}
		m.Payloads = append(m.Payloads, p)
	}

	if strings.EqualFold(sm.Proto, protoRTMP) {
		t := &RTMPTransport{}
		for _, a := range sm.Attributes {
			switch a.Name {
			case attrRTMPURL:
				t.URL = a.Value
			case attrRTMPPublish:
				t.Publish = a.Value
			case attrRTMPPlay:
				t.Play = a.Value
			}
		}
		m.Transport = t
		return m, nil
	}

	t := &RTPTransport{Port: uint16(sm.Port)}
	if len(sm.Connection) > 0 {
		t.Address = sm.Connection[0].Address
	} else if sess.Connection != nil {
		t.Address = sess.Connection.Address
	}

	var ufrag, pwd string
	var candidates []IceCandidate
	for _, a := range sm.Attributes {
		switch a.Name {
		case attrICEUfrag:
			ufrag = a.Value
		case attrICEPwd:
			pwd = a.Value
		case attrCandidate:
			c, err := ParseCandidate(a.Value)
			if err != nil {
				return nil, fmt.Errorf("candidate %q: %w", a.Value, err)
			}
			candidates = append(candidates, c)
		}
	}
	if len(candidates) > 0 {
		for i := range candidates {
			candidates[i].Username = ufrag
			candidates[i].Password = pwd
			candidates[i].StreamID = streamID
		}
		t.ICE = &ICEInfo{Candidates: candidates}
	}
	m.Transport = t
	return m, nil
}
