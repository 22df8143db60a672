package kfxmpp

import (
	"fmt"

	"mellium.im/sasl"
)

// beginSASL drives the single-step SASL PLAIN exchange described in
// spec.md §4.4: it builds the initial response through mellium.im/sasl's
// PLAIN mechanism and sends it as the <auth/> element's content, writing
// "=" itself for a zero-length response (the RFC6120 §6.4.2 special case).
func (s *Session) beginSASL() {
	s.mu.Lock()
	username := s.username
	password := s.password
	s.mu.Unlock()

	client := sasl.NewClient(sasl.Plain, sasl.Credentials(username, password))
	_, resp, err := client.Step(nil)
	if err != nil {
		s.failConnect(ErrAuthFailed, err)
		return
	}
	if len(resp) == 0 {
		resp = []byte{'='}
	}

	auth := fmt.Sprintf(`<auth xmlns='%s' mechanism='PLAIN'>%s</auth>`, nsSASL, resp)
	if _, err := s.sendRaw([]byte(auth)); err != nil {
		s.failConnect(ErrAuthFailed, err)
	}
}
