package cmd

import (
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestai/internal/config"
)

func TestServeUntilReturnsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := &http.Server{Addr: busy.Addr().String(), Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- serveUntil(srv, make(chan os.Signal)) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveUntil did not return after the listener failed")
	}
}

func TestServeUntilStopsOnSignal(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	done := make(chan error, 1)
	go func() { done <- serveUntil(srv, stop) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveUntil did not return after the stop signal")
	}
}

func TestNewTokenServiceGeneratesKey(t *testing.T) {
	svc, err := newTokenService(config.AuthConfig{TokenTTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.TokenTTL())
}
