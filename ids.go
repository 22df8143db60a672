package kfxmpp

import (
	"strconv"

	"github.com/google/uuid"
)

// nextMsgID returns the next auto-generated stanza id of the shape
// "msg<N>", per spec: a per-session monotonically increasing counter
// starting at 1.
func (s *Session) nextMsgID() (id string, n int) {
	s.idCounter++
	n = s.idCounter
	return "msg" + strconv.Itoa(n), n
}

// newNonce returns a globally-unique id used where no "msg<N>" counter
// value is appropriate, such as the client-generated resource name used
// for bind when the caller didn't configure one.
func newNonce() string {
	return uuid.NewString()
}
