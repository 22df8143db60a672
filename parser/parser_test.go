package parser_test

import (
	"strings"
	"testing"

	"github.com/elpescado/kfxmpp/parser"
	"github.com/elpescado/kfxmpp/stanza"
)

// feedChunks splits s into n-byte pieces (or one byte at a time if n<=0)
// and feeds them one at a time.
func feedChunks(t *testing.T, p *parser.Parser, s string, chunkSize int) {
	t.Helper()
	if chunkSize <= 0 {
		chunkSize = 1
	}
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		if err := p.Feed([]byte(s[i:end])); err != nil {
			t.Fatalf("Feed(%q): %v", s[i:end], err)
		}
	}
}

func TestStreamOpenThreeChunks(t *testing.T) {
	var opens int
	var version int
	var id string
	var stanzas int

	p := parser.New(parser.Callbacks{
		OnStreamOpen: func(v int, i string) {
			opens++
			version, id = v, i
		},
		OnStanza: func(e *stanza.Element) { stanzas++ },
	})

	full := `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0' id='S1'>`
	third := len(full) / 3
	parts := []string{full[:third], full[third : 2*third], full[2*third:]}
	for _, part := range parts {
		if err := p.Feed([]byte(part)); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}

	if opens != 1 {
		t.Fatalf("onStreamOpen fired %d times, want 1", opens)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if id != "S1" {
		t.Errorf("id = %q, want S1", id)
	}
	if stanzas != 0 {
		t.Errorf("stanza events fired = %d, want 0", stanzas)
	}
}

func TestSingleStanzaAfterOpen(t *testing.T) {
	var got []*stanza.Element
	p := parser.New(parser.Callbacks{
		OnStanza: func(e *stanza.Element) { got = append(got, e) },
	})
	feedChunks(t, p, `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0' id='S1'>`, 64)

	if err := p.Feed([]byte(`<message to='a@b'><body>hi</body></message>`)); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("stanza events = %d, want 1", len(got))
	}
	el := got[0]
	if el.Name != "message" {
		t.Errorf("Name = %q, want message", el.Name)
	}
	if to, _ := el.Attr("to"); to != "a@b" {
		t.Errorf("to = %q, want a@b", to)
	}
	if body := el.ChildText("body"); body != "hi" {
		t.Errorf("body = %q, want hi", body)
	}
}

func TestSingleStanzaByteByByte(t *testing.T) {
	var got []*stanza.Element
	p := parser.New(parser.Callbacks{
		OnStanza: func(e *stanza.Element) { got = append(got, e) },
	})
	feedChunks(t, p, `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0' id='S1'>`, 7)
	feedChunks(t, p, `<message to='a@b'><body>hi</body></message>`, 1)

	if len(got) != 1 {
		t.Fatalf("stanza events = %d, want 1", len(got))
	}
	if got[0].Name != "message" {
		t.Errorf("Name = %q, want message", got[0].Name)
	}
}

func TestMultipleStanzasInOrder(t *testing.T) {
	var names []string
	p := parser.New(parser.Callbacks{
		OnStanza: func(e *stanza.Element) { names = append(names, e.Name) },
	})
	feedChunks(t, p, `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>`, 32)
	feedChunks(t, p, `<presence/><message to='a'/><iq type='get' id='1'/>`, 3)

	want := []string{"presence", "message", "iq"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestStreamFeaturesNamespace(t *testing.T) {
	var el *stanza.Element
	p := parser.New(parser.Callbacks{
		OnStanza: func(e *stanza.Element) { el = e },
	})
	feedChunks(t, p, `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>`, 16)
	if err := p.Feed([]byte(`<stream:features><starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'/></stream:features>`)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if el == nil {
		t.Fatal("no stanza event fired")
	}
	if el.Name != "features" || el.Namespace != "http://etherx.jabber.org/streams" {
		t.Fatalf("got name=%q ns=%q", el.Name, el.Namespace)
	}
	tls := el.Child("starttls")
	if tls == nil || tls.Namespace != "urn:ietf:params:xml:ns:xmpp-tls" {
		t.Fatalf("starttls child missing or wrong namespace: %+v", tls)
	}
}

func TestVersionAbsentDefaultsToZero(t *testing.T) {
	var version int
	seen := false
	p := parser.New(parser.Callbacks{
		OnStreamOpen: func(v int, id string) { version, seen = v, true },
	})
	if err := p.Feed([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !seen {
		t.Fatal("onStreamOpen did not fire")
	}
	if version != 0 {
		t.Errorf("version = %d, want 0", version)
	}
}

func TestRootCloseProducesNoStanza(t *testing.T) {
	var stanzas int
	p := parser.New(parser.Callbacks{
		OnStanza: func(e *stanza.Element) { stanzas++ },
	})
	if err := p.Feed([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'></stream:stream>`)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if stanzas != 0 {
		t.Errorf("stanza events = %d, want 0", stanzas)
	}
}
