package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/nikola1125/ashila-backend/internal/health"
	"github.com/nikola1125/ashila-backend/internal/version"
)

func TestStartMetricsServer_Endpoints(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	srv := startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", "http"), healthHandler)
	require.NotNil(t, srv)

	base := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, base+"/livez")

	for _, path := range []string{"/metrics", "/healthz", "/livez", "/readyz"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, body, path)
		if path == "/livez" {
			assert.Equal(t, "ok", string(body))
		}
	}
}

func TestStartMetricsServer_ReadyzReflectsStorage(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", pingChecker("memory", func(context.Context) error {
		return errors.New("connection refused")
	}))
	startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", "readyz"), healthHandler)

	base := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, base+"/livez")

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", "http-shutdown"), healthcheck.NewHandler("test"))

	url := fmt.Sprintf("http://localhost:%d/livez", port)
	waitForServer(t, url)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "http-shutdown-func")
	shutdownHTTP(nil, logger)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	go func() { _ = srv.Serve(lis) }()

	url := "http://" + lis.Addr().String()
	waitForServer(t, url)

	shutdownHTTP(srv, logger)
	_, err = http.Get(url)
	assert.Error(t, err)
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond, "server at %s did not start", url)
}

func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
