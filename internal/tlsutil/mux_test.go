package tlsutil

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T) *Mux {
	t.Helper()
	cert, err := NewCertSource("", "", t.TempDir()).Certificate(true)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	m := NewMux(ln, ServerConfig(cert))
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMux_ServesHTTPAndHTTPS(t *testing.T) {
	m := newTestMux(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		io.WriteString(w, scheme)
	})
	plain := &http.Server{Handler: handler}
	secure := &http.Server{Handler: handler}
	go plain.Serve(m.Plain())
	go secure.Serve(m.Secure())
	t.Cleanup(func() {
		plain.Close()
		secure.Close()
	})

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	addr := m.Addr().String()

	for _, scheme := range []string{"http", "https"} {
		resp, err := client.Get(scheme + "://" + addr + "/")
		require.NoError(t, err, scheme)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != scheme {
			t.Errorf("expected %q, got %q", scheme, string(body))
		}
	}
}

func TestMux_ClosedListenersStopAccepting(t *testing.T) {
	m := newTestMux(t)
	plain, secure := m.Plain(), m.Secure()
	assert.Equal(t, m.Addr(), plain.Addr())
	assert.Equal(t, m.Addr(), secure.Addr())
	assert.NoError(t, plain.Close(), "closing a split listener is a no-op")

	require.NoError(t, m.Close())
	_, err := plain.Accept()
	assert.True(t, errors.Is(err, net.ErrClosed))
	_, err = secure.Accept()
	assert.True(t, errors.Is(err, net.ErrClosed))
}

func TestSniffedConn_Read(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go client.Write([]byte("ET / HTTP/1.1"))

	conn := &sniffedConn{Conn: server, first: []byte("G")}
	buf := make([]byte, 32)

	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "G", string(buf[:n]))

	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix("ET / HTTP/1.1", string(buf[:n])))
}
