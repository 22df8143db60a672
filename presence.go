package kfxmpp

import (
	"strconv"

	"github.com/elpescado/kfxmpp/stanza"
)

// PresenceType restricts <presence/> stanzas to what a transport-only
// client needs: available (empty type) or unavailable. Subscription
// management (subscribe/subscribed/unsubscribe/unsubscribed) is out of
// scope per spec.md's Non-goal on roster/presence semantics.
type PresenceType string

const (
	PresenceAvailable   PresenceType = ""
	PresenceUnavailable PresenceType = "unavailable"
)

// Presence is a high-level convenience over <presence/> stanza
// construction and parsing, supplemented from the C original's message.h
// surface (see SPEC_FULL.md §4.6).
type Presence struct {
	From     string
	To       string
	Type     PresenceType
	Show     string
	Status   string
	Priority int
}

// Send builds a <presence> stanza from p and transmits it through session.
func (p Presence) Send(session *Session) (int, error) {
	st := stanza.New(stanza.KindPresence, p.To)
	if p.From != "" {
		st.SetFrom(p.From)
	}
	if p.Type != PresenceAvailable {
		st.SetType(string(p.Type))
	}
	if p.Show != "" {
		st.Element.SetChildText("show", p.Show)
	}
	if p.Status != "" {
		st.Element.SetChildText("status", p.Status)
	}
	if p.Priority != 0 {
		st.Element.SetChildText("priority", strconv.Itoa(p.Priority))
	}
	return session.Send(st)
}

// PresenceFromStanza parses a <presence> stanza into a Presence.
func PresenceFromStanza(st *stanza.Stanza) Presence {
	p := Presence{
		From: st.From(),
		To:   st.To(),
		Type: PresenceType(st.Type()),
	}
	p.Show = st.Element.ChildText("show")
	p.Status = st.Element.ChildText("status")
	if raw := st.Element.ChildText("priority"); raw != "" {
		p.Priority, _ = strconv.Atoi(raw)
	}
	return p
}
