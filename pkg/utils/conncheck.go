package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mpapenbr/sequential/log"
)

var defaultPorts = map[string]string{
	"postgres":   "5432",
	"postgresql": "5432",
	"nats":       "4222",
	"tls":        "4222",
	"ws":         "80",
	"http":       "80",
	"wss":        "443",
	"https":      "443",
}

// WaitForTCP tries to connect addr until it succeeds or timeout is reached
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.String("timeout", timeout.String()))
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.String("duration", time.Since(start).String()))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s could not be reached after %v", addr, timeout)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// WaitForHTTPResponse polls url until any response is received or timeout is reached
//
//nolint:whitespace // can't make both editor and linter happy
func WaitForHTTPResponse(
	ctx context.Context, target string, timeout time.Duration,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	log.Debug("wait for http request",
		log.String("url", target),
		log.String("timeout", timeout.String()))
	cli := &http.Client{}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return err
		}
		if resp, err := cli.Do(req); err == nil {
			resp.Body.Close()
			log.Debug("http request successful",
				log.String("url", target),
				log.String("duration", time.Since(start).String()))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s could not be reached after %v", target, timeout)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// AddrFromURL returns host:port of a service url (postgres, nats, ws, http).
// The default port of the scheme is used if the url has none.
// An empty string is returned if the url cannot be used.
func AddrFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return ""
	}
	return net.JoinHostPort(u.Hostname(), port)
}
