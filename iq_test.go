package kfxmpp

import (
	"bufio"
	"testing"
	"time"

	"github.com/elpescado/kfxmpp/stanza"
)

func TestSendIQResult(t *testing.T) {
	s, server := testSession(t, nil)
	defer server.Close()
	r := bufio.NewReader(server)

	payload := stanza.NewElementNS("jabber:iq:roster", "query")
	done := make(chan struct{})
	var gotReply *stanzaElementSnapshot

	_, err := s.SendIQ(IQGet, "", payload, func(reply *stanza.Element, err error) {
		defer close(done)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		gotReply = &stanzaElementSnapshot{name: reply.Name}
	})
	if err != nil {
		t.Fatalf("SendIQ: %v", err)
	}

	out := readServerLine(t, r)
	if !contains(out, "jabber:iq:roster") {
		t.Fatalf("expected roster query in request, got %q", out)
	}

	writeServer(t, server, `<iq type='result' id='msg1'><query xmlns='jabber:iq:roster'/></iq>`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reply handler never fired")
	}
	if gotReply == nil || gotReply.name != "iq" {
		t.Fatalf("gotReply = %+v", gotReply)
	}
}

func TestSendIQError(t *testing.T) {
	s, server := testSession(t, nil)
	defer server.Close()
	r := bufio.NewReader(server)

	done := make(chan error, 1)
	_, err := s.SendIQ(IQSet, "montague.lit", nil, func(reply *stanza.Element, err error) {
		done <- err
	})
	if err != nil {
		t.Fatalf("SendIQ: %v", err)
	}
	readServerLine(t, r)

	writeServer(t, server, `<iq type='error' id='msg1'><error type='cancel'><item-not-found xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></iq>`)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error")
		}
		se, ok := err.(stanza.Error)
		if !ok || se.Condition != stanza.ItemNotFound {
			t.Fatalf("err = %v, want stanza.Error{Condition: item-not-found}", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reply handler never fired")
	}
}

type stanzaElementSnapshot struct {
	name string
}
