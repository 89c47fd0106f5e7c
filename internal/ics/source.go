package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// maxSourceBytes caps the size of an imported calendar.
const maxSourceBytes = 8 << 20

// Doer performs one HTTP round trip; *http.Client and remote.Client fit.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ReadSource returns the raw calendar named by src: an http(s) URL fetched
// with client, or a local file path.
func ReadSource(ctx context.Context, client Doer, src string) ([]byte, error) {
	if src == "" {
		return nil, errors.New("ics: source is empty")
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.ReadFile(src)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics: fetch: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSourceBytes {
		return nil, fmt.Errorf("ics: calendar exceeds %d bytes", maxSourceBytes)
	}
	return body, nil
}
