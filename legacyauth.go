package kfxmpp

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"

	"github.com/elpescado/kfxmpp/stanza"
)

// beginLegacyAuth starts the two-round jabber:iq:auth exchange described in
// spec.md §4.4: a type="get" probe carrying just the username, followed
// on any reply by a type="set" carrying username/resource/digest.
func (s *Session) beginLegacyAuth() {
	s.mu.Lock()
	username := s.username
	server := s.server
	s.mu.Unlock()

	req := stanza.New(stanza.KindIQ, server)
	req.SetType("get")
	query := stanza.NewElementNS(nsAuth, "query")
	query.SetChildText("username", username)
	req.Element.AddChild(query)

	_, err := s.SendAwaitResponse(req, func(source, data interface{}) bool {
		s.sendLegacyAuthSet()
		return true
	})
	if err != nil {
		s.failConnect(ErrAuthFailed, err)
	}
}

// legacyDigest computes SHA1_hex(streamID || password) over the raw byte
// concatenation, per spec.md §8's test vector.
func legacyDigest(streamID, password string) string {
	sum := sha1.Sum([]byte(streamID + password))
	return hex.EncodeToString(sum[:])
}

func (s *Session) sendLegacyAuthSet() {
	s.mu.Lock()
	username := s.username
	resource := s.resource
	password := s.password
	streamID := s.streamID
	server := s.server
	s.mu.Unlock()

	req := stanza.New(stanza.KindIQ, server)
	req.SetType("set")
	query := stanza.NewElementNS(nsAuth, "query")
	query.SetChildText("username", username)
	query.SetChildText("resource", resource)
	query.SetChildText("digest", legacyDigest(streamID, password))
	req.Element.AddChild(query)

	_, err := s.SendAwaitResponse(req, func(source, data interface{}) bool {
		el, _ := data.(*stanza.Element)
		if el == nil {
			s.failConnect(ErrAuthFailed, errors.New("malformed legacy auth response"))
			return true
		}
		switch t, _ := el.Attr("type"); t {
		case "result":
			s.succeedConnect()
		case "error":
			if se, ok := stanza.ErrorFromElement(el); ok {
				s.failConnect(ErrAuthFailed, se)
			} else {
				s.failConnect(ErrAuthFailed, errors.New("legacy authentication failed"))
			}
		default:
			s.failConnect(ErrAuthFailed, errors.New("unexpected legacy auth reply type"))
		}
		return true
	})
	if err != nil {
		s.failConnect(ErrAuthFailed, err)
	}
}
