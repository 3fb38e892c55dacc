// Package endpoint discovers the browser-level DevTools websocket address of a
// Chrome instance listening for remote debugging.
//
// Chrome rejects discovery requests whose Host header is not localhost or an
// IP address, which breaks access through container DNS names such as
// host.docker.internal. The resolver therefore sends the request to the real
// host while claiming to be localhost, then points the loopback address Chrome
// hands back at the real host again.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SpoofedHost is the Host header sent with every discovery request.
const SpoofedHost = "localhost"

// ErrNoDebuggerURL is returned when the version document has no usable
// webSocketDebuggerUrl.
var ErrNoDebuggerURL = errors.New("no webSocketDebuggerUrl in discovery response")

// Version is the /json/version document.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Resolver finds the control-socket address for one host:port.
type Resolver struct {
	host   string
	port   int
	client *http.Client
}

// NewResolver returns a resolver for the debugging endpoint at host:port.
// timeout bounds each discovery request.
func NewResolver(host string, port int, timeout time.Duration) *Resolver {
	return &Resolver{
		host:   host,
		port:   port,
		client: &http.Client{Timeout: timeout},
	}
}

// Address is the real host:port requests are sent to.
func (r *Resolver) Address() string {
	return net.JoinHostPort(r.host, strconv.Itoa(r.port))
}

// Resolve returns a websocket URL reachable from this process.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	v, err := r.Discover(ctx)
	if err != nil {
		return "", err
	}
	return v.WebSocketDebuggerURL, nil
}

// Discover fetches the version document and rewrites its debugger URL so it
// targets the real host.
func (r *Resolver) Discover(ctx context.Context) (*Version, error) {
	discoveryURL := "http://" + r.Address() + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	// Bytes go to r.Address(); Chrome only sees this header.
	req.Host = SpoofedHost

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request to %s failed: %w", r.Address(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request to %s returned %s: %s",
			r.Address(), resp.Status, strings.TrimSpace(string(body)))
	}

	var v Version
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("malformed discovery response: %w", err)
	}
	if v.WebSocketDebuggerURL == "" {
		return nil, ErrNoDebuggerURL
	}

	rewritten, err := Rewrite(v.WebSocketDebuggerURL, r.Address())
	if err != nil {
		return nil, err
	}
	v.WebSocketDebuggerURL = rewritten
	return &v, nil
}

// Rewrite points a loopback-relative websocket URL at addr. URLs naming any
// other host are returned unchanged.
func Rewrite(wsURL, addr string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDebuggerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("%w: unexpected scheme %q", ErrNoDebuggerURL, u.Scheme)
	}
	if IsLoopback(u.Hostname()) {
		u.Host = addr
	}
	return u.String(), nil
}

// IsLoopback reports whether host only makes sense from inside the browser's
// own network namespace.
func IsLoopback(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}
