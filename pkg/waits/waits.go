// Package waits implements bay's built-in readiness probes (spec §4.7),
// grounded on bay/plugins/waits.py: http, https, tcp, and a fixed-delay
// time wait, each registered as a plugin.Host catalog kind under its own
// wait-type name.
package waits

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/getbay/bay/pkg/plugin"
)

// Wait is a single readiness probe attached to a container instance.
// Ready is polled repeatedly by PostStart until it returns true.
type Wait interface {
	Ready(ctx context.Context) bool
	Description() string
}

// RegisterCatalogKinds registers the four built-in wait kinds as catalog
// kinds on host, named "http", "https", "tcp" and "time", mirroring
// WaitsPlugin.load.
func RegisterCatalogKinds(host *plugin.Host) error {
	if err := host.RegisterCatalogKind("http", func(params map[string]interface{}) (interface{}, error) {
		return newHTTPWait("http", params)
	}); err != nil {
		return err
	}
	if err := host.RegisterCatalogKind("https", func(params map[string]interface{}) (interface{}, error) {
		return newHTTPWait("https", params)
	}); err != nil {
		return err
	}
	if err := host.RegisterCatalogKind("tcp", func(params map[string]interface{}) (interface{}, error) {
		return newTCPWait(params)
	}); err != nil {
		return err
	}
	return host.RegisterCatalogKind("time", func(params map[string]interface{}) (interface{}, error) {
		return newTimeWait(params)
	})
}

// HTTPWait checks that an HTTP(S) endpoint answers with an expected status
// code, grounded on HttpWait/HttpsWait.
type HTTPWait struct {
	Scheme        string
	IPAddress     string
	Port          int
	Path          string
	Timeout       time.Duration
	Method        string
	Headers       map[string]string
	ExpectedLow   int
	ExpectedHigh  int // exclusive, matching Python's range(200, 400)
	client        *http.Client
}

func newHTTPWait(scheme string, params map[string]interface{}) (*HTTPWait, error) {
	defaultPort := 80
	if scheme == "https" {
		defaultPort = 443
	}
	w := &HTTPWait{
		Scheme:       scheme,
		IPAddress:    paramString(params, "ip_address", ""),
		Port:         paramInt(params, "port", defaultPort),
		Path:         paramString(params, "path", "/"),
		Timeout:      time.Duration(paramInt(params, "timeout", 1)) * time.Second,
		Method:       paramString(params, "method", "GET"),
		Headers:      paramStringMap(params, "headers"),
		ExpectedLow:  200,
		ExpectedHigh: 400,
	}
	w.client = &http.Client{Timeout: w.Timeout}
	return w, nil
}

func (w *HTTPWait) Ready(ctx context.Context) bool {
	url := fmt.Sprintf("%s://%s:%d%s", w.Scheme, w.IPAddress, w.Port, w.Path)
	req, err := http.NewRequestWithContext(ctx, w.Method, url, nil)
	if err != nil {
		return false
	}
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= w.ExpectedLow && resp.StatusCode < w.ExpectedHigh
}

func (w *HTTPWait) Description() string {
	if w.Scheme == "https" {
		return fmt.Sprintf("HTTPS on port %d", w.Port)
	}
	return fmt.Sprintf("HTTP on port %d", w.Port)
}

// TCPWait checks that a TCP port accepts connections.
type TCPWait struct {
	IPAddress string
	Port      int
	Timeout   time.Duration
}

func newTCPWait(params map[string]interface{}) (*TCPWait, error) {
	return &TCPWait{
		IPAddress: paramString(params, "ip_address", ""),
		Port:      paramInt(params, "port", 80),
		Timeout:   time.Duration(paramInt(params, "timeout", 1)) * time.Second,
	}, nil
}

func (w *TCPWait) Ready(ctx context.Context) bool {
	addr := net.JoinHostPort(w.IPAddress, strconv.Itoa(w.Port))
	conn, err := net.DialTimeout("tcp", addr, w.Timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (w *TCPWait) Description() string {
	return fmt.Sprintf("TCP on port %d", w.Port)
}

// TimeWait is satisfied once a fixed delay from its creation has elapsed.
type TimeWait struct {
	seconds   int
	waitUntil time.Time
}

func newTimeWait(params map[string]interface{}) (*TimeWait, error) {
	seconds := paramInt(params, "seconds", 0)
	return &TimeWait{seconds: seconds, waitUntil: time.Now().Add(time.Duration(seconds) * time.Second)}, nil
}

func (w *TimeWait) Ready(ctx context.Context) bool {
	return !time.Now().Before(w.waitUntil)
}

func (w *TimeWait) Description() string {
	return fmt.Sprintf("%d seconds", w.seconds)
}

func paramString(params map[string]interface{}, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func paramInt(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func paramStringMap(params map[string]interface{}, key string) map[string]string {
	out := map[string]string{}
	raw, ok := params[key].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
