package kfxmpp

import (
	"bufio"
	"testing"

	"github.com/elpescado/kfxmpp/stanza"
)

func TestMessageFromStanzaRoundTrip(t *testing.T) {
	m := Message{
		From:    "romeo@montague.lit/orchard",
		To:      "juliet@capulet.lit/balcony",
		Type:    MessageChat,
		Subject: "Ay me!",
		Body:    "O Romeo, Romeo, wherefore art thou Romeo?",
	}

	el := stanza.NewElement("message")
	st := stanza.FromElement(el)
	st.SetFrom(m.From)
	st.SetTo(m.To)
	st.SetType(string(m.Type))
	el.SetChildText("subject", m.Subject)
	el.SetChildText("body", m.Body)

	got := MessageFromStanza(st)
	if got != m {
		t.Fatalf("MessageFromStanza = %+v, want %+v", got, m)
	}
}

func TestMessageSendOmitsNormalType(t *testing.T) {
	s, server := testSession(t, nil)
	defer server.Close()
	r := bufio.NewReader(server)

	m := Message{To: "juliet@capulet.lit", Type: MessageNormal, Body: "hi"}
	if _, err := m.Send(s); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := readServerLine(t, r)
	if contains(out, "type=") {
		t.Fatalf("normal message type should be omitted from the wire form, got %q", out)
	}
	if !contains(out, "<body>hi</body>") {
		t.Fatalf("expected body element, got %q", out)
	}
}
