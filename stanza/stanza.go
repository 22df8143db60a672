package stanza

// Kind identifies which of the three top-level XMPP stanza types an
// Element represents.
type Kind int

// The stanza kinds. Unknown is a valid sentinel: an element whose name
// does not match one of the other three still produces a Stanza, just one
// callers should generally not forward to message/presence/iq-specific
// handlers.
const (
	KindUnknown Kind = iota
	KindMessage
	KindPresence
	KindIQ
)

// String returns the wire name associated with k ("message", "presence",
// "iq"), or "unknown".
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindPresence:
		return "presence"
	case KindIQ:
		return "iq"
	default:
		return "unknown"
	}
}

// KindOf derives the Kind from a top-level element's local name.
func KindOf(name string) Kind {
	switch name {
	case "message":
		return KindMessage
	case "presence":
		return KindPresence
	case "iq":
		return KindIQ
	default:
		return KindUnknown
	}
}

// A Stanza is a typed wrapper over an Element: one of message, presence,
// iq, or the unknown sentinel.
type Stanza struct {
	Kind    Kind
	Element *Element
}

// New constructs a new stanza of the given kind. If to is non-empty it is
// set as the "to" attribute.
func New(kind Kind, to string) *Stanza {
	e := NewElement(kind.String())
	if to != "" {
		e.SetAttr("to", to)
	}
	return &Stanza{Kind: kind, Element: e}
}

// FromElement wraps an already-parsed element, deriving Kind from its
// name. Elements whose name isn't one of message/presence/iq produce a
// Stanza with Kind == KindUnknown; callers that care about that case
// should log it themselves (KindOf is pure and side-effect free).
func FromElement(e *Element) *Stanza {
	return &Stanza{Kind: KindOf(e.Name), Element: e}
}

// String serializes the stanza to XML text.
func (s *Stanza) String() string {
	return s.Element.String()
}

// ID returns the stanza's id attribute.
func (s *Stanza) ID() string {
	v, _ := s.Element.Attr("id")
	return v
}

// SetID sets the stanza's id attribute.
func (s *Stanza) SetID(id string) {
	s.Element.SetAttr("id", id)
}

// To returns the stanza's to attribute.
func (s *Stanza) To() string {
	v, _ := s.Element.Attr("to")
	return v
}

// SetTo sets the stanza's to attribute.
func (s *Stanza) SetTo(to string) {
	s.Element.SetAttr("to", to)
}

// From returns the stanza's from attribute.
func (s *Stanza) From() string {
	v, _ := s.Element.Attr("from")
	return v
}

// SetFrom sets the stanza's from attribute.
func (s *Stanza) SetFrom(from string) {
	s.Element.SetAttr("from", from)
}

// Type returns the stanza's type attribute.
func (s *Stanza) Type() string {
	v, _ := s.Element.Attr("type")
	return v
}

// SetType sets the stanza's type attribute.
func (s *Stanza) SetType(t string) {
	s.Element.SetAttr("type", t)
}
