package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/go-oasmock/internal/config"
	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/models"
)

func TestGenerateRequest(t *testing.T) {
	genStatus, genMedia, genStrategy = 404, "text/plain", "schema-examples,jsf"
	genHeaders = []string{"Accept: application/json", "X-Trace:abc"}
	t.Cleanup(func() {
		genStatus, genMedia, genStrategy, genHeaders = 0, "", "", nil
	})

	req, err := generateRequest("get", "/pets/42?verbose=1")
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/pets/42", req.Path)
	assert.Equal(t, "1", req.Query.Get("verbose"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	assert.Equal(t, "true", req.Header.Get(models.HeaderMockEnable))
	assert.Equal(t, "404", req.Header.Get(models.HeaderMockStatus))
	assert.Equal(t, "text/plain", req.Header.Get(models.HeaderMockMedia))
	assert.Equal(t, "schema-examples,jsf", req.Header.Get(models.HeaderMockStrategyOrder))

	genHeaders = []string{"no-colon"}
	_, err = generateRequest("GET", "/pets")
	assert.Error(t, err)
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	initPath, initSpec, initForce = dir, "./petstore.yaml", false
	t.Cleanup(func() { initPath, initSpec, initForce = ".", "", false })

	var out bytes.Buffer
	initCmd.SetOut(&out)
	require.NoError(t, runInit(initCmd, nil))
	assert.Contains(t, out.String(), "Created config file")
	assert.DirExists(t, filepath.Join(dir, "recordings"))

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./petstore.yaml", cfg.Spec.Source)
	assert.Equal(t, config.Default().Spec.Timeout, cfg.Spec.Timeout)
	assert.Equal(t, config.Default().Mock.StrategyOrder, cfg.Mock.StrategyOrder)

	err = runInit(initCmd, nil)
	assert.ErrorContains(t, err, "already exists")

	initForce = true
	assert.NoError(t, runInit(initCmd, nil))
}

func TestStartTLSServer(t *testing.T) {
	cfg := config.Default()
	cfg.Server.TLS.Enabled = true
	cfg.Server.TLS.StoreDir = filepath.Join(t.TempDir(), "certs")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	})}
	errCh := make(chan error, 2)
	cleanup, err := startTLSServer(server, ln, cfg, logging.Nop(), errCh)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanup(context.Background())
		server.Shutdown(context.Background())
	})

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	for _, scheme := range []string{"http", "https"} {
		resp, err := client.Get(scheme + "://" + ln.Addr().String() + "/")
		require.NoError(t, err, scheme)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, scheme)
		if scheme == "https" && resp.TLS == nil {
			t.Error("expected a TLS connection state for https")
		}
	}
	assert.FileExists(t, filepath.Join(cfg.Server.TLS.StoreDir, "server.crt"))
}

func TestStartTLSServer_NoCertificate(t *testing.T) {
	cfg := config.Default()
	cfg.Server.TLS.Enabled = true
	cfg.Server.TLS.AutoGenerate = false
	cfg.Server.TLS.StoreDir = t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = startTLSServer(&http.Server{}, ln, cfg, logging.Nop(), make(chan error, 2))
	assert.ErrorContains(t, err, "tls certificate")
}
