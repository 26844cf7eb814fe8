package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnhealthy is returned by CheckHealth when the target cannot be reached.
var ErrUnhealthy = errors.New("target unreachable")

// CheckHealth sends GET {base}/. Any HTTP response counts as up; only a
// transport error fails the check.
func CheckHealth(ctx context.Context, client *http.Client, base string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, JoinURL(base, "/"), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	resp, err := do(client, req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnhealthy, base, err)
	}
	return resp.StatusCode, nil
}
