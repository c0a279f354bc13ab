package waits

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getbay/bay/pkg/plugin"
)

func TestRegisterCatalogKindsRegistersAllFour(t *testing.T) {
	host := plugin.NewHost()
	require.NoError(t, RegisterCatalogKinds(host))
	assert.ElementsMatch(t, []string{"http", "https", "tcp", "time"}, host.CatalogKinds())
}

func TestHTTPWaitReadyOnExpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	w, err := newHTTPWait("http", map[string]interface{}{
		"ip_address": host,
		"port":       mustAtoi(portStr),
	})
	require.NoError(t, err)
	assert.True(t, w.Ready(context.Background()))
}

func TestHTTPWaitNotReadyOnUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	w, err := newHTTPWait("http", map[string]interface{}{
		"ip_address": host,
		"port":       mustAtoi(portStr),
	})
	require.NoError(t, err)
	assert.False(t, w.Ready(context.Background()))
}

func TestTCPWaitReadyWhenPortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	w, err := newTCPWait(map[string]interface{}{"ip_address": host, "port": mustAtoi(portStr)})
	require.NoError(t, err)
	assert.True(t, w.Ready(context.Background()))
}

func TestTCPWaitNotReadyWhenNothingListening(t *testing.T) {
	w, err := newTCPWait(map[string]interface{}{"ip_address": "127.0.0.1", "port": 1})
	require.NoError(t, err)
	w.Timeout = 50 * time.Millisecond
	assert.False(t, w.Ready(context.Background()))
}

func TestTimeWaitBecomesReadyAfterDelay(t *testing.T) {
	w, err := newTimeWait(map[string]interface{}{"seconds": 0})
	require.NoError(t, err)
	assert.True(t, w.Ready(context.Background()))
}

func TestTimeWaitDescription(t *testing.T) {
	w, err := newTimeWait(map[string]interface{}{"seconds": 5})
	require.NoError(t, err)
	assert.Equal(t, "5 seconds", w.Description())
}

func mustAtoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
