package media

import (
	"fmt"
	"strings"
)

// SessionDescription is an ordered list of media lines plus identity.
type SessionDescription struct {
	ID      string
	Version string
	Medias  []*MediaDescription
}

// Clone returns a deep copy of s.
func (s *SessionDescription) Clone() *SessionDescription {
	if s == nil {
		return nil
	}
	c := &SessionDescription{ID: s.ID, Version: s.Version}
	if s.Medias != nil {
		c.Medias = make([]*MediaDescription, len(s.Medias))
		for i, m := range s.Medias {
			c.Medias[i] = m.Clone()
		}
	}
	return c
}

func (s *SessionDescription) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s v%s", s.ID, s.Version)
	for i, m := range s.Medias {
		fmt.Fprintf(&b, "\n  [%d] %v", i, m)
	}
	return b.String()
}

// IntersectSession pairs every offerer line with the first unused answerer
// line it negotiates with. Offerer lines without a partner become inactive
// placeholders on both sides, so both results have one line per offerer line
// in offerer order.
func IntersectSession(answerer, offerer *SessionDescription) (*SessionDescription, *SessionDescription) {
	negAnswerer := &SessionDescription{ID: offerer.ID, Version: offerer.Version}
	negOfferer := &SessionDescription{ID: offerer.ID, Version: offerer.Version}

	var candidates []*MediaDescription
	if answerer != nil {
		candidates = answerer.Medias
	}
	used := make([]bool, len(candidates))

	for _, om := range offerer.Medias {
		matched := false
		for i, am := range candidates {
			if used[i] {
				continue
			}
			na, no, ok := IntersectMedia(am, om)
			if !ok {
				continue
			}
			used[i] = true
			matched = true
			negAnswerer.Medias = append(negAnswerer.Medias, na)
			negOfferer.Medias = append(negOfferer.Medias, no)
			break
		}
		if !matched {
			negAnswerer.Medias = append(negAnswerer.Medias, inactivePlaceholder(om))
			negOfferer.Medias = append(negOfferer.Medias, inactivePlaceholder(om))
		}
	}

	return negAnswerer, negOfferer
}

func inactivePlaceholder(m *MediaDescription) *MediaDescription {
	kind := MediaKind(0)
	if m != nil {
		kind = m.Kind
	}
	return &MediaDescription{Kind: kind, Direction: Inactive, Payloads: []Payload{}}
}
