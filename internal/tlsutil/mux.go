package tlsutil

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// first byte of a TLS handshake record
	recordTypeHandshake = 0x16

	sniffTimeout = 5 * time.Second
	queueSize    = 128
)

// Mux splits one listener into a plain and a TLS listener by looking at the
// first byte each client sends
type Mux struct {
	inner  net.Listener
	config *tls.Config

	plain  chan net.Conn
	secure chan net.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// NewMux starts accepting on inner. Close stops it.
func NewMux(inner net.Listener, config *tls.Config) *Mux {
	m := &Mux{
		inner:  inner,
		config: config,
		plain:  make(chan net.Conn, queueSize),
		secure: make(chan net.Conn, queueSize),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mux) run() {
	for {
		conn, err := m.inner.Accept()
		if err != nil {
			select {
			case <-m.done:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			m.Close()
			return
		}
		go m.route(conn)
	}
}

func (m *Mux) route(conn net.Conn) {
	first := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(sniffTimeout))
	_, err := io.ReadFull(conn, first)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return
	}

	sniffed := &sniffedConn{Conn: conn, first: first}
	if first[0] == recordTypeHandshake {
		m.deliver(m.secure, tls.Server(sniffed, m.config))
		return
	}
	m.deliver(m.plain, sniffed)
}

func (m *Mux) deliver(queue chan net.Conn, conn net.Conn) {
	select {
	case queue <- conn:
	case <-m.done:
		conn.Close()
	}
}

// Plain returns the listener for connections that did not start a TLS handshake
func (m *Mux) Plain() net.Listener {
	return &queueListener{conns: m.plain, done: m.done, addr: m.inner.Addr()}
}

// Secure returns the listener for TLS connections
func (m *Mux) Secure() net.Listener {
	return &queueListener{conns: m.secure, done: m.done, addr: m.inner.Addr()}
}

// Close stops accepting and closes the underlying listener
func (m *Mux) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return m.inner.Close()
}

// Addr returns the underlying listener address
func (m *Mux) Addr() net.Addr {
	return m.inner.Addr()
}

// sniffedConn replays the byte read while sniffing
type sniffedConn struct {
	net.Conn
	first []byte
}

func (c *sniffedConn) Read(b []byte) (int, error) {
	if len(c.first) > 0 {
		n := copy(b, c.first)
		c.first = c.first[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

// queueListener hands out connections routed by the Mux. Closing it is a
// no-op; the Mux owns the socket.
type queueListener struct {
	conns chan net.Conn
	done  chan struct{}
	addr  net.Addr
}

func (l *queueListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *queueListener) Close() error { return nil }

func (l *queueListener) Addr() net.Addr { return l.addr }
