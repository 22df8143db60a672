package kfxmpp

import (
	"errors"

	"github.com/elpescado/kfxmpp/stanza"
)

// IQType is the <iq/> stanza's required type attribute.
type IQType string

const (
	IQGet    IQType = "get"
	IQSet    IQType = "set"
	IQResult IQType = "result"
	IQError  IQType = "error"
)

// NewIQ builds an <iq/> stanza of the given type and payload, addressed to
// to (which may be empty for a server-directed request). payload, if
// non-nil, is added as the iq's single child element.
func NewIQ(t IQType, to string, payload *stanza.Element) *stanza.Stanza {
	st := stanza.New(stanza.KindIQ, to)
	st.SetType(string(t))
	if payload != nil {
		st.Element.AddChild(payload)
	}
	return st
}

// IQReplyHandler is invoked with the reply element to a request sent via
// SendIQ. err is a stanza.Error (or a plain error for malformed replies)
// when the reply's type is "error"; reply is nil in that case.
type IQReplyHandler func(reply *stanza.Element, err error)

// SendIQ is sugar over Session.SendAwaitResponse for the common
// single-payload get/set request: it builds the <iq/>, sends it, and
// translates the eventual get/set reply into a single (reply, err) call to
// handler instead of requiring the caller to inspect the type attribute
// itself.
func (s *Session) SendIQ(t IQType, to string, payload *stanza.Element, handler IQReplyHandler) (int, error) {
	if t != IQGet && t != IQSet {
		return 0, errors.New("kfxmpp: SendIQ requires type get or set")
	}
	req := NewIQ(t, to, payload)
	return s.SendAwaitResponse(req, func(source, data interface{}) bool {
		el, _ := data.(*stanza.Element)
		if el == nil {
			if handler != nil {
				handler(nil, errors.New("kfxmpp: malformed iq reply"))
			}
			return true
		}
		switch rt, _ := el.Attr("type"); rt {
		case string(IQResult):
			if handler != nil {
				handler(el, nil)
			}
		case string(IQError):
			if handler != nil {
				if se, ok := stanza.ErrorFromElement(el); ok {
					handler(nil, se)
				} else {
					handler(nil, errors.New("kfxmpp: iq error with no <error/> child"))
				}
			}
		default:
			if handler != nil {
				handler(nil, errors.New("kfxmpp: iq reply has unexpected type "+rt))
			}
		}
		return true
	})
}
