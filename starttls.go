package kfxmpp

import "crypto/tls"

// tlsConfigFor builds the *tls.Config used for the STARTTLS handshake.
// Certificate verification policy is left to the standard library's
// default behavior, per spec.md's Non-goal on certificate pinning.
func tlsConfigFor(server string) *tls.Config {
	return &tls.Config{
		ServerName: server,
	}
}
