package tms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
)

type MarketStatus int

const (
	MarketUnknown MarketStatus = iota
	MarketOpen
	MarketClosed
)

func (m MarketStatus) String() string {
	switch m {
	case MarketOpen:
		return "open"
	case MarketClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func parseMarketStatus(s string) MarketStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "close", "closed":
		return MarketClosed
	case "open":
		return MarketOpen
	default:
		return MarketUnknown
	}
}

type marketStatusResp struct {
	Data *struct {
		Status field `json:"status"`
	} `json:"data"`
}

// MarketStatus reports the exchange status. Any failure yields MarketUnknown
// together with the cause; callers decide whether unknown is good enough.
func (c *Client) MarketStatus(ctx context.Context, s *Session) (MarketStatus, error) {
	params := url.Values{}
	params.Set("action", "marketStatus")

	resp, err := c.do(ctx, http.MethodGet, pathHome, params, nil, s.Cookie())
	if err != nil {
		return MarketUnknown, err
	}
	if resp.status != http.StatusOK {
		return MarketUnknown, fmt.Errorf("market status: status %d", resp.status)
	}
	var mr marketStatusResp
	if err := json.Unmarshal(resp.body, &mr); err != nil {
		return MarketUnknown, fmt.Errorf("market status decode: %w (body=%s)", err, snippet(resp.body))
	}
	if mr.Data == nil || !mr.Data.Status.present {
		return MarketUnknown, fmt.Errorf("market status: response has no data.status")
	}
	return parseMarketStatus(mr.Data.Status.String()), nil
}
