package media

import "fmt"

const (
	DescriptionOffer  = "offer"
	DescriptionAnswer = "answer"
)

//Description sdp
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// NewDescription wraps the SDP text of s.
func NewDescription(typ string, s *SessionDescription) *Description {
	return &Description{Type: typ, SDP: s.Marshal()}
}

// Session parses the wrapped SDP text.
func (d *Description) Session() (*SessionDescription, error) {
	if d.Type != DescriptionOffer && d.Type != DescriptionAnswer {
		return nil, fmt.Errorf("unknown description type %q", d.Type)
	}
	return Parse([]byte(d.SDP))
}
