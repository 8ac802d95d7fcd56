package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/web"
)

// client reads the kiosk's reporting interface.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		if body.Error != "" {
			return nil, fmt.Errorf("GET %s: %s: %s", path, resp.Status, body.Error)
		}
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return resp, nil
}

// Feed fetches the status feed. n <= 0 uses the kiosk's default window.
func (c *client) Feed(ctx context.Context, n int) (web.Feed, error) {
	var q url.Values
	if n > 0 {
		q = url.Values{"n": {strconv.Itoa(n)}}
	}
	resp, err := c.get(ctx, "/data", q)
	if err != nil {
		return web.Feed{}, err
	}
	defer resp.Body.Close()

	var feed web.Feed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return web.Feed{}, fmt.Errorf("decode feed: %w", err)
	}
	return feed, nil
}

// ExportCSV copies the session log to w.
func (c *client) ExportCSV(ctx context.Context, w io.Writer) error {
	resp, err := c.get(ctx, "/csv", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download csv: %w", err)
	}
	return nil
}
