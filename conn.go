package kfxmpp

import (
	"crypto/tls"
	"net"
	"sync"
)

// conn wraps the session's transport so a STARTTLS upgrade can swap the
// active net.Conn out from under the reactor loop without the loop itself
// needing to know it happened: the next Read/Write after UpgradeTLS simply
// goes through the TLS record layer instead of the raw socket.
type conn struct {
	mu      sync.Mutex
	raw     net.Conn
	tls     *tls.Conn
	secure  bool
	closed  bool
}

func newConn(raw net.Conn) *conn {
	return &conn{raw: raw}
}

func (c *conn) active() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tls != nil {
		return c.tls
	}
	return c.raw
}

func (c *conn) Read(p []byte) (int, error) {
	return c.active().Read(p)
}

func (c *conn) Write(p []byte) (int, error) {
	return c.active().Write(p)
}

// UpgradeTLS performs a client-side TLS handshake over the raw connection
// and, on success, makes subsequent Read/Write calls go through it.
func (c *conn) UpgradeTLS(cfg *tls.Config) error {
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()

	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}

	c.mu.Lock()
	c.tls = tlsConn
	c.secure = true
	c.mu.Unlock()
	return nil
}

func (c *conn) Secure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secure
}

func (c *conn) ConnectionState() (tls.ConnectionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tls == nil {
		return tls.ConnectionState{}, false
	}
	return c.tls.ConnectionState(), true
}

// Close closes the raw connection, which also ends any TLS layer over it
// (no TLS close_notify is sent). It is idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	raw := c.raw
	c.mu.Unlock()
	return raw.Close()
}
