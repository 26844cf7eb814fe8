// Package http builds the HTTP operations the harness dispatches against the
// system under test, plus the client they share and the pre-run health
// check.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a whole request, including reading the body.
	DefaultTimeout = 30 * time.Second
	// extraIdleConns is added to the concurrency limit when sizing the
	// idle pool, so a burst never has to dial.
	extraIdleConns = 50
)

// NewClient returns a client tuned for concurrency simultaneous requests
// to a single host. It is safe for concurrent use.
func NewClient(concurrency int, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency < 1 {
		concurrency = 1
	}
	idle := concurrency + extraIdleConns

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 90 * time.Second,
		}).DialContext,
		MaxIdleConns:          idle,
		MaxIdleConnsPerHost:   idle,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// JoinURL appends path to base without doubling the slash.
func JoinURL(base, path string) string {
	if path == "" {
		return strings.TrimRight(base, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(base, "/") + path
}

// do sends req and drains the response so the connection can be reused.
func do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, shortError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable
	return resp, nil
}

// shortError strips the request URL from client errors. URLs carry a fresh
// UUID per request, which would make every error message distinct.
func shortError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if errors.Is(uerr.Err, context.DeadlineExceeded) || uerr.Timeout() {
			return fmt.Errorf("%s: timeout", strings.ToLower(uerr.Op))
		}
		return fmt.Errorf("%s: %w", strings.ToLower(uerr.Op), uerr.Err)
	}
	return err
}
