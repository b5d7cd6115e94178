// Package capability is the credential-less side of the bucket: reading
// public objects and invoking capability URLs over plain HTTP.
package capability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Max object body the agent will read.
const maxBody = 16 << 20

type Client struct {
	HTTP *http.Client
}

func NewClient(timeout time.Duration) Client {
	return Client{HTTP: &http.Client{Timeout: timeout}}
}

func (c Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Fetch GETs url. ok is false for any non-200 status; absent and forbidden
// objects are indistinguishable to the caller.
func (c Client) Fetch(ctx context.Context, url string) (body []byte, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, false, nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Invoke calls capURL with the method it is bound to.
func (c Client) Invoke(ctx context.Context, method, capURL string, body []byte) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, capURL, r)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s capability: http %d", method, resp.StatusCode)
	}
	return nil
}
