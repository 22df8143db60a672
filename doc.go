// Package kfxmpp is a client-side library for the XMPP 1.0 / legacy Jabber
// instant-messaging protocol. It establishes a long-lived TCP connection to
// a server, negotiates an XML stream, optionally upgrades to TLS, signs the
// user in (SASL PLAIN or legacy jabber:iq:auth), binds a resource, and then
// exchanges stanzas with the peer.
//
// A Session drives the whole lifecycle from a single goroutine: Connect
// starts that goroutine, which dials, sends the stream preamble, and then
// loops reading bytes off the wire and feeding them to the stream parser.
// Parsed stanzas are dispatched through Session's internal events, where a
// built-in handler negotiates features, TLS, authentication, and bind
// before the connect callback ever fires.
package kfxmpp
