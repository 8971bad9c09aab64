// Package exchanges connects to venues: catalogs, quote streams and server
// time, behind the Venue interface.
package exchanges

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"nhooyr.io/websocket"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

const (
	restTimeout  = 10 * time.Second
	wsReadLimit  = 1 << 20
	maxErrorBody = 512
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: restTimeout}
}

// getJSON issues a GET and decodes the body into out.
func getJSON(ctx context.Context, c *http.Client, url string, out any) error {
	return doJSON(ctx, c, http.MethodGet, url, nil, out)
}

// postJSON sends in as a JSON body and decodes the reply into out.
func postJSON(ctx context.Context, c *http.Client, url string, in, out any) error {
	body, err := sonnet.Marshal(in)
	if err != nil {
		return err
	}
	return doJSON(ctx, c, http.MethodPost, url, bytes.NewReader(body), out)
}

func doJSON(ctx context.Context, c *http.Client, method, url string, reqBody io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, body)
	}
	return sonnet.Unmarshal(body, out)
}

func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c.SetReadLimit(wsReadLimit)
	return c, nil
}

// parseFloat reads a decimal string, zero when empty or malformed.
func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func usToTime(us int64) time.Time {
	if us <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}

func connErr(venue, op string, err error) error {
	if err == nil {
		return nil
	}
	return &market.ConnectivityError{Venue: venue, Op: op, Err: err}
}
