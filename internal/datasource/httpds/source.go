package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Source is a data source that streams the body of a GET request.
type Source struct {
	client  *Client
	url     string
	headers http.Header
}

// NewSource returns a Source for url. headers are sent with every attempt.
func NewSource(c *Client, url string, headers map[string]string) *Source {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &Source{client: c, url: url, headers: h}
}

// Open performs the request and returns the response body. Non-2xx
// responses are errors.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url, s.headers)
	if err != nil {
		return nil, fmt.Errorf("httpds: open %s: %w", s.url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpds: open %s: status %d", s.url, resp.StatusCode)
	}
	return resp.Body, nil
}
