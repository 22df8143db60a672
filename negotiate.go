package kfxmpp

import (
	"errors"

	"github.com/elpescado/kfxmpp/stanza"
)

// onStanza is the parser's OnStanza callback: every top-level element of
// the stream passes through the internal "xml" event first, where the
// built-in handler (registered at event.PriorityInternal) negotiates
// features/TLS/auth/bind and routes correlated replies. Anything the xml
// event doesn't consume is re-dispatched as a typed Message/Presence/IQ
// event based on its Kind.
func (s *Session) onStanza(el *stanza.Element) {
	if s.xmlEvent.Trigger(s, el) {
		return
	}
	st := stanza.FromElement(el)
	switch st.Kind {
	case stanza.KindMessage:
		s.messageEvent.Trigger(s, st)
	case stanza.KindPresence:
		s.presenceEvent.Trigger(s, st)
	case stanza.KindIQ:
		s.iqEvent.Trigger(s, st)
	default:
		s.logger.Debug("unrecognized stanza", "name", el.Name, "namespace", el.Namespace)
	}
}

// builtinXMLHandler is Session's own handler on the internal xml event. It
// recognizes the fixed set of negotiation elements by name/namespace, and
// falls back to the id-correlation table for everything else.
func (s *Session) builtinXMLHandler(source, data interface{}) bool {
	el, ok := data.(*stanza.Element)
	if !ok {
		return false
	}

	switch {
	case el.Name == "features" && el.Namespace == nsStream:
		s.handleFeatures(el)
		return true
	case el.Name == "proceed" && el.Namespace == nsTLS:
		s.handleProceed()
		return true
	case el.Name == "failure" && el.Namespace == nsTLS:
		s.failConnect(ErrTLSHandshakeFailed, errors.New("server refused starttls"))
		return true
	case el.Name == "success" && el.Namespace == nsSASL:
		s.handleSASLSuccess()
		return true
	case el.Name == "failure" && el.Namespace == nsSASL:
		s.handleSASLFailure(el)
		return true
	case el.Name == "error" && el.Namespace == nsStream:
		s.handleStreamError(el)
		return true
	}

	// Per the spec's open-question decision: the entry is removed
	// regardless of whether the handler reports the stanza consumed.
	if id, present := el.Attr("id"); present && id != "" {
		s.mu.Lock()
		handler, found := s.correlation[id]
		if found {
			delete(s.correlation, id)
		}
		s.mu.Unlock()
		if found {
			return handler(s, el)
		}
	}
	return false
}

// handleFeatures implements the feature-negotiation branch of the state
// machine described in spec.md §4.4.
func (s *Session) handleFeatures(el *stanza.Element) {
	features := map[string]bool{
		"starttls": el.Child("starttls") != nil,
		"sasl":     el.Child("mechanisms") != nil,
		"bind":     el.Child("bind") != nil,
	}

	s.mu.Lock()
	secure := s.conn != nil && s.conn.Secure()
	tlsPolicy := s.tlsPolicy
	protocol := s.protocol
	state := s.state
	s.mu.Unlock()

	switch {
	case tlsPolicy == TLSAlways && !secure && !features["starttls"]:
		s.failConnect(ErrTLSNotAvailable, errors.New("server did not offer starttls required by policy"))
	case tlsPolicy != TLSNever && features["starttls"] && !secure:
		s.sendRaw([]byte(`<starttls xmlns='` + nsTLS + `'/>`))
	case (secure || tlsPolicy != TLSAlways) && features["sasl"]:
		s.mu.Lock()
		s.state = StateAuthenticating
		s.mu.Unlock()
		s.beginSASL()
	case features["bind"]:
		s.beginBind()
	case state == StateConnected && !features["sasl"] && protocol != ProtocolXMPP:
		s.beginLegacyAuth()
	default:
		s.failConnect(ErrTLSHandshakeFailed, errors.New("feature negotiation exhausted without progress"))
	}
}

// handleProceed runs the TLS handshake after the server accepts <starttls/>,
// resets the parser and resends the stream preamble on success (spec.md
// §4.4: "On <proceed/>: run TLS handshake ... reset the parser, resend the
// stream preamble").
func (s *Session) handleProceed() {
	s.mu.Lock()
	c := s.conn
	server := s.server
	s.mu.Unlock()

	if err := c.UpgradeTLS(tlsConfigFor(server)); err != nil {
		s.failConnect(ErrTLSHandshakeFailed, err)
		return
	}
	s.logger.Info("tls handshake complete")

	s.mu.Lock()
	s.resetParserLocked()
	s.mu.Unlock()

	if err := s.sendPreamble(); err != nil {
		s.failConnect(ErrTLSHandshakeFailed, err)
	}
}

// handleSASLSuccess resets the parser, resends the preamble, and -
// matching the spec's literal (and explicitly preserved) behavior - moves
// the session to Open immediately, before any resource bind has happened.
func (s *Session) handleSASLSuccess() {
	s.logger.Info("sasl authentication succeeded")

	s.mu.Lock()
	s.resetParserLocked()
	s.mu.Unlock()

	if err := s.sendPreamble(); err != nil {
		s.failConnect(ErrAuthFailed, err)
		return
	}

	s.mu.Lock()
	s.state = StateOpen
	s.mu.Unlock()
}

func (s *Session) handleSASLFailure(el *stanza.Element) {
	text := el.ChildText("text")
	if text != "" {
		s.failConnect(ErrAuthFailed, errors.New(text))
		return
	}
	s.failConnect(ErrAuthFailed, errors.New("sasl authentication failed"))
}

func (s *Session) handleStreamError(el *stanza.Element) {
	text := el.ChildText("text")
	if text != "" {
		s.failConnect(ErrAuthFailed, errors.New(text))
		return
	}
	s.failConnect(ErrAuthFailed, errors.New("stream error"))
}
