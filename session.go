package kfxmpp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/elpescado/kfxmpp/event"
	"github.com/elpescado/kfxmpp/parser"
	"github.com/elpescado/kfxmpp/stanza"
)

// State is a Session's position in the connection lifecycle.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	default:
		return "invalid"
	}
}

// TLSPolicy controls whether and when a Session upgrades its transport to
// TLS via STARTTLS.
type TLSPolicy int

const (
	TLSAlways TLSPolicy = iota
	TLSIfAvailable
	TLSNever
)

// Protocol selects which authentication family a Session will negotiate.
type Protocol int

const (
	ProtocolAuto Protocol = iota
	ProtocolXMPP
	ProtocolJabber
)

// DisconnectStatus classifies why a Session left the Open state.
type DisconnectStatus int

const (
	DisconnectUser DisconnectStatus = iota
	DisconnectRemoteHost
	DisconnectUnknown
)

func (d DisconnectStatus) String() string {
	switch d {
	case DisconnectUser:
		return "user"
	case DisconnectRemoteHost:
		return "remote-host"
	default:
		return "unknown"
	}
}

// ConnectCallback is invoked at most once per call to Connect, either with
// a nil error on success or a non-nil *Error describing why the connect
// attempt failed. It is not invoked when CancelConnect aborts the attempt.
type ConnectCallback func(s *Session, err error)

// DisconnectCallback is invoked when an Open session stops being open for
// any reason other than a failed connect attempt.
type DisconnectCallback func(s *Session, status DisconnectStatus)

const defaultPort = 5222
const defaultTimeout = 60 * time.Second
const keepaliveInterval = 5 * time.Second

// Session owns a single XMPP connection: its transport, stream parser,
// event dispatchers, correlation table, and connection-lifecycle state
// machine. A Session is created Closed; identity and runtime fields may
// only be changed while Closed. Connect spawns the single goroutine that
// drives the session for the rest of its life.
type Session struct {
	mu sync.Mutex

	// Identity, mutable only while Closed.
	username    string
	server      string
	password    string
	resource    string
	hostAddress string
	port        int
	priority    int
	protocol    Protocol
	tlsPolicy   TLSPolicy
	timeout     time.Duration
	logger      Logger

	// Runtime.
	state       State
	conn        *conn
	parser      *parser.Parser
	idCounter   int
	streamID    string
	correlation map[string]event.Handler

	xmlEvent      *event.Event
	messageEvent  *event.Event
	presenceEvent *event.Event
	iqEvent       *event.Event

	connectCB     ConnectCallback
	connectDone   bool
	connectCancel context.CancelFunc
	cancelled     bool
	disconnectCB  DisconnectCallback
	closedLocally bool
	keepaliveStop chan struct{}

	// dialContext is overridable in tests so the connect-timeout scenario
	// doesn't depend on real, possibly-flaky network unreachability.
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New constructs a Session for the given username and server (the JID
// domainpart), closed and ready to be configured with the Set* methods.
func New(username, server string) *Session {
	s := &Session{
		username:      username,
		server:        server,
		port:          defaultPort,
		timeout:       defaultTimeout,
		logger:        defaultLogger,
		state:         StateClosed,
		correlation:   make(map[string]event.Handler),
		xmlEvent:      event.New(),
		messageEvent:  event.New(),
		presenceEvent: event.New(),
		iqEvent:       event.New(),
	}
	s.dialContext = (&net.Dialer{}).DialContext
	s.xmlEvent.Add(event.PriorityInternal, s.builtinXMLHandler, nil)
	return s
}

// EventType names the four typed events a Session dispatches incoming
// stanzas through.
type EventType int

const (
	EventXML EventType = iota
	EventMessage
	EventPresence
	EventIQ
)

func (s *Session) eventFor(t EventType) *event.Event {
	switch t {
	case EventMessage:
		return s.messageEvent
	case EventPresence:
		return s.presenceEvent
	case EventIQ:
		return s.iqEvent
	default:
		return s.xmlEvent
	}
}

// AddHandler subscribes handler to the named event at the given priority
// and returns a token that can later be passed to RemoveHandler.
func (s *Session) AddHandler(t EventType, priority int, handler event.Handler) event.Token {
	return s.eventFor(t).Add(priority, handler, nil)
}

// RemoveHandler unregisters a handler previously returned by AddHandler.
func (s *Session) RemoveHandler(t EventType, tok event.Token) {
	s.eventFor(t).Remove(tok)
}

func (s *Session) setterGuard() error {
	if s.state != StateClosed {
		return newError(ErrSessionAlreadyOpen, nil)
	}
	return nil
}

// SetPassword sets the password used for SASL PLAIN or legacy iq-auth.
func (s *Session) SetPassword(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.password = password
	return nil
}

// SetResource sets the resourcepart requested during bind. With an empty
// resource, bind requests a randomly generated name instead (legacy
// iq-auth sends the resource as given).
func (s *Session) SetResource(resource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.resource = resource
	return nil
}

// SetHostAddress overrides the address Connect dials, bypassing the
// server/port pair (useful when the XMPP domain doesn't resolve directly
// to the connect host).
func (s *Session) SetHostAddress(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.hostAddress = addr
	return nil
}

// SetPort sets the TCP port Connect dials when HostAddress is unset.
func (s *Session) SetPort(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.port = port
	return nil
}

// SetPriority stores a presence priority on the session. Nothing in this
// package reads it: Presence.Send writes only the Presence value's own
// Priority field.
func (s *Session) SetPriority(priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.priority = priority
	return nil
}

// SetProtocol sets the authentication family preference.
func (s *Session) SetProtocol(p Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.protocol = p
	return nil
}

// SetTLSPolicy sets when Connect will attempt STARTTLS.
func (s *Session) SetTLSPolicy(p TLSPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.tlsPolicy = p
	return nil
}

// SetTimeout sets the connect timeout. Zero disables it.
func (s *Session) SetTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	s.timeout = d
	return nil
}

// SetLogger installs a structured logger for connection lifecycle,
// negotiation, and error diagnostics. The default is silent.
func (s *Session) SetLogger(l Logger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setterGuard(); err != nil {
		return err
	}
	if l == nil {
		l = defaultLogger
	}
	s.logger = l
	return nil
}

// SetDisconnectCallback installs the callback invoked when an Open session
// stops being open.
func (s *Session) SetDisconnectCallback(cb DisconnectCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectCB = cb
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Secure reports whether the transport has completed a TLS handshake.
func (s *Session) Secure() bool {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	return c != nil && c.Secure()
}

// resetParserLocked installs a fresh stream parser, abandoning any pending
// queue the previous one held: stanzas a replaced parser is still draining
// are dropped instead of dispatched. Called with s.mu held.
func (s *Session) resetParserLocked() {
	var p *parser.Parser
	p = parser.New(parser.Callbacks{
		OnStreamOpen: s.onStreamOpen,
		OnStanza: func(el *stanza.Element) {
			s.mu.Lock()
			current := s.parser == p
			s.mu.Unlock()
			if current {
				s.onStanza(el)
			}
		},
	})
	s.parser = p
}

// Connect begins an asynchronous connection attempt. cb fires at most once,
// either when the session reaches Open or when the attempt fails; it does
// not fire if CancelConnect aborts the attempt.
func (s *Session) Connect(cb ConnectCallback) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return newError(ErrSessionAlreadyOpen, nil)
	}
	s.state = StateConnecting
	s.connectCB = cb
	s.connectDone = false
	s.cancelled = false
	s.closedLocally = false
	ctx, cancel := context.WithCancel(context.Background())
	s.connectCancel = cancel
	s.mu.Unlock()

	go s.runConnect(ctx)
	return nil
}

// CancelConnect aborts an in-flight connect attempt. The connect callback
// is not invoked; cancellation is only observable by the caller.
func (s *Session) CancelConnect() error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return newError(ErrSessionNotOpen, nil)
	}
	s.state = StateClosed
	s.cancelled = true
	s.connectDone = true
	cancel := s.connectCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *Session) runConnect(ctx context.Context) {
	s.mu.Lock()
	addr := s.hostAddress
	if addr == "" {
		addr = net.JoinHostPort(s.server, fmt.Sprintf("%d", s.port))
	}
	timeout := s.timeout
	dial := s.dialContext
	s.mu.Unlock()

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := dial(dialCtx, "tcp", addr)
	if err != nil {
		s.mu.Lock()
		cancelled := s.cancelled
		s.mu.Unlock()
		if cancelled {
			return
		}
		kind := ErrConnectFailed
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			kind = ErrAddressLookupFailed
		} else if dialCtx.Err() == context.DeadlineExceeded {
			kind = ErrTimeout
		}
		s.failConnect(kind, err)
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		raw.Close()
		return
	}
	s.conn = newConn(raw)
	s.state = StateConnected
	s.resetParserLocked()
	s.mu.Unlock()

	s.logger.Info("tcp connected", "addr", addr)

	if err := s.sendPreamble(); err != nil {
		s.failConnect(ErrConnectFailed, err)
		return
	}

	s.readLoop()
}

func (s *Session) sendPreamble() error {
	s.mu.Lock()
	server := s.server
	c := s.conn
	s.mu.Unlock()
	preamble := fmt.Sprintf(
		`<?xml version='1.0'?><stream:stream to='%s' xmlns='%s' xmlns:stream='%s' version='1.0'>`,
		server, nsClient, nsStream,
	)
	_, err := c.Write([]byte(preamble))
	return err
}

// readLoop is the body of the goroutine Connect spawns: it blocks reading
// bytes off the transport and feeding them to the parser until the
// transport closes, and is the only goroutine that ever touches s.conn's
// Read side or the parser, sidestepping any need to coordinate a STARTTLS
// swap against a concurrent reader.
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		s.mu.Lock()
		c := s.conn
		p := s.parser
		s.mu.Unlock()
		if c == nil {
			return
		}

		n, err := c.Read(buf)
		if n > 0 {
			if perr := p.Feed(buf[:n]); perr != nil {
				s.teardown(DisconnectUnknown, perr)
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			local := s.closedLocally
			s.mu.Unlock()
			if local {
				return
			}
			s.teardown(DisconnectRemoteHost, err)
			return
		}
	}
}

// failConnect fails an in-flight connect attempt exactly once and returns
// the session to Closed.
func (s *Session) failConnect(kind ErrorKind, cause error) {
	s.mu.Lock()
	if s.connectDone {
		s.mu.Unlock()
		return
	}
	s.connectDone = true
	s.state = StateClosed
	cb := s.connectCB
	c := s.conn
	s.conn = nil
	stopKeep := s.keepaliveStop
	s.keepaliveStop = nil
	s.mu.Unlock()

	if stopKeep != nil {
		close(stopKeep)
	}
	if c != nil {
		c.Close()
	}
	s.logger.Error("connect failed", "kind", kind.String(), "error", cause)
	if cb != nil {
		cb(s, newError(kind, cause))
	}
}

// succeedConnect completes an in-flight connect attempt successfully,
// exactly once, moves the session to Open, and starts the keepalive timer.
func (s *Session) succeedConnect() {
	s.mu.Lock()
	if s.connectDone {
		s.mu.Unlock()
		return
	}
	s.connectDone = true
	s.state = StateOpen
	cb := s.connectCB
	s.mu.Unlock()

	s.startKeepalive()
	s.logger.Info("session open")
	if cb != nil {
		cb(s, nil)
	}
}

// teardown handles a transport-level end of session: it is used both for
// parser faults (status Unknown, per spec §7) and for read errors/hangups
// (status RemoteHost). If the session hadn't finished its initial connect
// yet, the failure is routed to the connect callback instead, matching the
// "connect-phase errors go to the connect callback exactly once" rule.
func (s *Session) teardown(status DisconnectStatus, cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	connectDone := s.connectDone
	s.state = StateClosed
	cb := s.disconnectCB
	c := s.conn
	s.conn = nil
	stopKeep := s.keepaliveStop
	s.keepaliveStop = nil
	s.mu.Unlock()

	if stopKeep != nil {
		close(stopKeep)
	}
	if c != nil {
		c.Close()
	}

	if !connectDone {
		kind := ErrUnknown
		if status == DisconnectRemoteHost {
			kind = ErrConnectFailed
		}
		s.failConnect(kind, cause)
		return
	}

	s.logger.Warn("session disconnected", "status", status, "error", cause)
	if cb != nil {
		cb(s, status)
	}
}

// Disconnect sends the closing stream tag, closes the transport, and
// transitions the session to Closed. It is a no-op error if the session is
// already closed.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return newError(ErrSessionNotOpen, nil)
	}
	wasOpen := s.connectDone
	s.closedLocally = true
	s.state = StateClosed
	c := s.conn
	s.conn = nil
	cb := s.disconnectCB
	stopKeep := s.keepaliveStop
	s.keepaliveStop = nil
	s.mu.Unlock()

	if stopKeep != nil {
		close(stopKeep)
	}
	if c != nil {
		c.Write([]byte(`</stream:stream>`))
		c.Close()
	}
	if wasOpen && cb != nil {
		cb(s, DisconnectUser)
	}
	return nil
}

func (s *Session) startKeepalive() {
	s.mu.Lock()
	stop := make(chan struct{})
	s.keepaliveStop = stop
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(keepaliveInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.mu.Lock()
				open := s.state == StateOpen
				s.mu.Unlock()
				if !open {
					return
				}
				s.SendRaw([]byte(" "))
			}
		}
	}()
}

// sendRaw writes data to the transport without any framing, used
// internally for negotiation elements built as literal XML text.
func (s *Session) sendRaw(data []byte) (int, error) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return 0, newError(ErrSessionNotOpen, nil)
	}
	return c.Write(data)
}

// SendRaw writes data to the transport unmodified, bypassing stanza
// serialization.
func (s *Session) SendRaw(data []byte) (int, error) {
	return s.sendRaw(data)
}

// Send serializes st and writes it to the transport.
func (s *Session) Send(st *stanza.Stanza) (int, error) {
	return s.sendRaw([]byte(st.String()))
}

// SendAwaitResponse assigns st an auto-generated id of the form "msg<N>",
// sends it, and registers handler to be invoked when a reply carrying that
// id arrives. It returns N, which can later be passed to CancelResponse.
func (s *Session) SendAwaitResponse(st *stanza.Stanza, handler event.Handler) (int, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return 0, newError(ErrSessionNotOpen, nil)
	}
	id, n := s.nextMsgID()
	st.SetID(id)
	s.correlation[id] = handler
	s.mu.Unlock()

	if _, err := s.Send(st); err != nil {
		s.mu.Lock()
		delete(s.correlation, id)
		s.mu.Unlock()
		return 0, err
	}
	return n, nil
}

// CancelResponse removes the correlation registered under the id
// "msg<n>", if still pending.
func (s *Session) CancelResponse(n int) error {
	id := fmt.Sprintf("msg%d", n)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.correlation[id]; !ok {
		return newError(ErrUnknown, nil)
	}
	delete(s.correlation, id)
	return nil
}

// AwaitResponse registers handler under a caller-supplied id, for replies
// to stanzas whose id wasn't generated by SendAwaitResponse.
func (s *Session) AwaitResponse(id string, handler event.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlation[id] = handler
}

// CancelAwaitResponse removes a correlation registered by AwaitResponse.
func (s *Session) CancelAwaitResponse(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.correlation, id)
}

func (s *Session) onStreamOpen(version int, id string) {
	s.mu.Lock()
	s.streamID = id
	protocol := s.protocol
	s.mu.Unlock()

	s.logger.Debug("stream open", "version", version, "id", id)

	if protocol == ProtocolJabber || (protocol == ProtocolAuto && version < 1) {
		s.beginLegacyAuth()
	}
}
