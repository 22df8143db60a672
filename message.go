package kfxmpp

import "github.com/elpescado/kfxmpp/stanza"

// MessageType is the XMPP message stanza's type attribute.
type MessageType string

const (
	MessageNormal   MessageType = "normal"
	MessageChat     MessageType = "chat"
	MessageHeadline MessageType = "headline"
)

// Message is a high-level convenience over <message/> stanza construction
// and parsing, per spec.md §4.5.
type Message struct {
	From    string
	To      string
	Type    MessageType
	Subject string
	Body    string
}

// Send builds a <message> stanza from m and transmits it through session.
// A non-empty Type other than "normal" is always written; "normal" is
// XMPP's implicit default and is omitted from the wire form, matching the
// convention the rest of the corpus uses for optional-with-a-default
// attributes.
func (m Message) Send(session *Session) (int, error) {
	st := stanza.New(stanza.KindMessage, m.To)
	if m.From != "" {
		st.SetFrom(m.From)
	}
	if m.Type != "" && m.Type != MessageNormal {
		st.SetType(string(m.Type))
	}
	if m.Subject != "" {
		st.Element.SetChildText("subject", m.Subject)
	}
	st.Element.SetChildText("body", m.Body)
	return session.Send(st)
}

// MessageFromStanza parses a <message> stanza into a Message. Stanzas of
// any other Kind are still accepted; the caller is expected to have
// checked Kind already.
func MessageFromStanza(st *stanza.Stanza) Message {
	return Message{
		From:    st.From(),
		To:      st.To(),
		Type:    MessageType(st.Type()),
		Subject: st.Element.ChildText("subject"),
		Body:    st.Element.ChildText("body"),
	}
}
