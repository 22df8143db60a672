package kfxmpp

import (
	"errors"

	"github.com/elpescado/kfxmpp/stanza"
)

// beginBind sends the resource-bind request described in spec.md §4.4 and
// registers a correlation handler that completes (or fails) the connect
// attempt when the reply arrives.
func (s *Session) beginBind() {
	s.mu.Lock()
	resource := s.resource
	s.mu.Unlock()

	if resource == "" {
		resource = newNonce()
	}

	req := stanza.New(stanza.KindIQ, "")
	req.SetType("set")
	bind := stanza.NewElementNS(nsBind, "bind")
	bind.SetChildText("resource", resource)
	req.Element.AddChild(bind)

	_, err := s.SendAwaitResponse(req, func(source, data interface{}) bool {
		el, _ := data.(*stanza.Element)
		if el == nil {
			s.failConnect(ErrUnknown, errors.New("malformed bind response"))
			return true
		}
		if t, _ := el.Attr("type"); t == "result" {
			s.succeedConnect()
			return true
		}
		if se, ok := stanza.ErrorFromElement(el); ok {
			s.failConnect(ErrUnknown, se)
			return true
		}
		s.failConnect(ErrUnknown, errors.New("resource bind failed"))
		return true
	})
	if err != nil {
		s.failConnect(ErrUnknown, err)
	}
}
