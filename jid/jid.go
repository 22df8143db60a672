// Package jid implements the XMPP address format (historically "Jabber ID")
// defined by RFC 6122/7622: localpart@domainpart/resourcepart.
package jid

import (
	"encoding/xml"
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// Errors returned while parsing or constructing a JID.
var (
	ErrEmptyDomain   = errors.New("jid: domainpart must not be empty")
	ErrLongPart      = errors.New("jid: part exceeds 1023 bytes")
	ErrForbiddenChar = errors.New("jid: localpart contains a forbidden character")
)

// forbidden holds the characters RFC 7622 §3.3.1 disallows in a localpart
// even though the general identifier class would otherwise permit them.
const forbidden = "\"&'/:<>@"

// JID is an immutable XMPP address of the form localpart@domainpart/resourcepart.
// The zero value is not a valid JID; use Parse or New to construct one.
type JID struct {
	local    string
	domain   string
	resource string
}

// New builds a JID from its three parts. The domainpart is required; the
// localpart and resourcepart may be empty.
//
// The domainpart is prepared and normalized per RFC 7622 §3.2 using
// golang.org/x/net/idna (A-labels are converted to U-labels, matching
// RFC 5890's NR-LDH/U-label requirement for the domainpart slot); the
// localpart is case-mapped with golang.org/x/text/unicode/precis's
// UsernameCaseMapped profile, the same pairing the teacher's SafeJID uses.
func New(local, domain, resource string) (JID, error) {
	if domain == "" {
		return JID{}, ErrEmptyDomain
	}
	if len(local) > 1023 || len(domain) > 1023 || len(resource) > 1023 {
		return JID{}, ErrLongPart
	}
	if strings.ContainsAny(local, forbidden) {
		return JID{}, ErrForbiddenChar
	}

	domain, err := idna.ToUnicode(domain)
	if err != nil {
		return JID{}, err
	}
	domain = strings.TrimSuffix(domain, ".")

	if local != "" {
		local, err = precis.UsernameCaseMapped.String(local)
		if err != nil {
			return JID{}, err
		}
	}

	return JID{local: local, domain: domain, resource: resource}, nil
}

// Parse splits s into a JID following RFC 7622 §3.1's ordering: the
// resourcepart is separated at the first '/', then the localpart at the
// first '@' of what remains.
func Parse(s string) (JID, error) {
	var local, resource string
	domain := s

	if idx := strings.IndexByte(domain, '/'); idx >= 0 {
		resource = domain[idx+1:]
		domain = domain[:idx]
		if resource == "" {
			return JID{}, errors.New("jid: resourcepart must not be empty when '/' is present")
		}
	}
	if idx := strings.IndexByte(domain, '@'); idx >= 0 {
		local = domain[:idx]
		domain = domain[idx+1:]
		if local == "" {
			return JID{}, errors.New("jid: localpart must not be empty when '@' is present")
		}
	}
	return New(local, domain, resource)
}

// MustParse is like Parse but panics on error. It is intended for tests and
// package-level variable initialization with known-good literals.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return j
}

// Localpart returns the localpart, or "" if none is set.
func (j JID) Localpart() string { return j.local }

// Domainpart returns the domainpart.
func (j JID) Domainpart() string { return j.domain }

// Resourcepart returns the resourcepart, or "" if none is set.
func (j JID) Resourcepart() string { return j.resource }

// Bare returns the JID with any resourcepart stripped.
func (j JID) Bare() JID {
	j.resource = ""
	return j
}

// IsZero reports whether j is the zero value (no domainpart).
func (j JID) IsZero() bool { return j.domain == "" }

// Equal reports whether j and other refer to the same address.
func (j JID) Equal(other JID) bool {
	return j.local == other.local && j.domain == other.domain && j.resource == other.resource
}

// String formats the JID as localpart@domainpart/resourcepart, omitting the
// localpart and/or resourcepart when empty.
func (j JID) String() string {
	var b strings.Builder
	if j.local != "" {
		b.WriteString(j.local)
		b.WriteByte('@')
	}
	b.WriteString(j.domain)
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// MarshalXMLAttr implements xml.MarshalerAttr so a JID can be embedded
// directly as a stanza attribute (to/from).
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		*j = JID{}
		return nil
	}
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
