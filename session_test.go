package kfxmpp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/elpescado/kfxmpp/stanza"
)

// testSession wires a Session directly to the client side of a loopback
// TCP connection, bypassing Connect's dial step, and starts the reactor loop
// so the built-in xml handler and feature-negotiation code run exactly as
// they would over a real socket. The caller drives the "server" side
// directly, grounded on the teacher's clienttest.go/servertest.go pattern
// of testing session behavior over a local connection pair. A net.Pipe is
// not used because its Write blocks until the other end reads, which would
// stall the preamble and every Send a test makes before reading.
func testSession(t *testing.T, configure func(*Session)) (*Session, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	s := New("romeo", "montague.lit")
	if configure != nil {
		configure(s)
	}

	s.mu.Lock()
	s.state = StateConnecting
	s.connectDone = false
	s.mu.Unlock()

	s.mu.Lock()
	s.conn = newConn(client)
	s.state = StateConnected
	s.resetParserLocked()
	s.mu.Unlock()

	if err := s.sendPreamble(); err != nil {
		t.Fatalf("sendPreamble: %v", err)
	}
	go s.readLoop()

	t.Cleanup(func() {
		s.mu.Lock()
		c := s.conn
		s.mu.Unlock()
		if c != nil {
			c.Close()
		}
		server.Close()
	})

	// Drain the client's stream preamble off the server side so later
	// reads in the test body see only what the test writes itself.
	buf := make([]byte, 4096)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("reading preamble: %v", err)
	}
	_ = n
	server.SetReadDeadline(time.Time{})

	return s, server
}

func writeServer(t *testing.T, server net.Conn, data string) {
	t.Helper()
	if _, err := server.Write([]byte(data)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func readServerLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	// The elements under test are always written as a single Write call
	// without trailing newlines, so read whatever is currently buffered.
	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("reading from client: %v", err)
	}
	return string(buf[:n])
}

func TestLegacyAuthBeginsOnVersionZero(t *testing.T) {
	s, server := testSession(t, func(s *Session) {
		s.password = "montague"
	})
	defer server.Close()
	r := bufio.NewReader(server)

	writeServer(t, server, `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' id='3EE948B0'>`)

	out := readServerLine(t, r)
	if !contains(out, "jabber:iq:auth") || !contains(out, "<username>romeo</username>") {
		t.Fatalf("expected legacy auth probe, got %q", out)
	}
}

func TestFeatureNegotiationOrder(t *testing.T) {
	s, server := testSession(t, func(s *Session) {
		s.password = "montague"
		s.resource = "laptop"
		s.tlsPolicy = TLSIfAvailable
	})
	defer server.Close()
	r := bufio.NewReader(server)

	connected := make(chan error, 1)
	s.connectCB = func(_ *Session, err error) { connected <- err }

	writeServer(t, server, `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0' id='S1'>`)
	writeServer(t, server, `<stream:features><starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'/><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'><mechanism>PLAIN</mechanism></mechanisms></stream:features>`)

	out := readServerLine(t, r)
	if !contains(out, "<starttls") {
		t.Fatalf("expected <starttls/>, got %q", out)
	}

	// This harness doesn't perform a real TLS handshake (the test's server
	// side never speaks TLS), so only the first step of the order is
	// checked: <starttls/> is chosen ahead of SASL. The later steps are not
	// exercised by this package's tests.
	_ = s
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestSendAwaitResponseRemovesEntryOnce(t *testing.T) {
	s, server := testSession(t, nil)
	defer server.Close()
	r := bufio.NewReader(server)

	var calls int
	req := stanza.New(stanza.KindIQ, "montague.lit")
	req.SetType("get")
	n, err := s.SendAwaitResponse(req, func(source, data interface{}) bool {
		calls++
		return true
	})
	if err != nil {
		t.Fatalf("SendAwaitResponse: %v", err)
	}

	out := readServerLine(t, r)
	if !contains(out, "msg1") {
		t.Fatalf("expected id msg1 in request, got %q", out)
	}

	reply := `<iq type='result' id='msg1'/>`
	writeServer(t, server, reply)
	time.Sleep(50 * time.Millisecond)

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}

	s.mu.Lock()
	_, stillPending := s.correlation["msg1"]
	s.mu.Unlock()
	if stillPending {
		t.Fatal("correlation entry for msg1 was not removed")
	}

	if err := s.CancelResponse(n); err == nil {
		t.Fatal("CancelResponse on an already-delivered id should report an error")
	}
}

func TestDisconnectInvokesCallbackOnce(t *testing.T) {
	s, server := testSession(t, nil)
	defer server.Close()

	s.mu.Lock()
	s.connectDone = true
	s.state = StateOpen
	s.mu.Unlock()

	var calls int
	s.SetDisconnectCallback(func(_ *Session, status DisconnectStatus) {
		calls++
		if status != DisconnectUser {
			t.Errorf("status = %v, want DisconnectUser", status)
		}
	})

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := s.Disconnect(); err == nil {
		t.Fatal("second Disconnect should report SESSION_NOT_OPEN")
	}
	if calls != 1 {
		t.Fatalf("disconnect callback invoked %d times, want 1", calls)
	}
}

func TestConnectTimeout(t *testing.T) {
	s := New("romeo", "montague.lit")
	s.timeout = 200 * time.Millisecond
	s.hostAddress = "198.51.100.1:65535" // never actually dialed, see dialContext override
	s.dialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan error, 1)
	if err := s.Connect(func(_ *Session, err error) { done <- err }); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case err := <-done:
		xerr, ok := err.(*Error)
		if !ok || xerr.Kind != ErrTimeout {
			t.Fatalf("err = %v, want ErrTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connect callback never fired")
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", s.State())
	}
}
