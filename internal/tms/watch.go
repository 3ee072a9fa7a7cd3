package tms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"tms-autobuy/internal/quote"
)

type watchResp struct {
	Data *struct {
		TradePrice    field `json:"tradeprice"`
		VWAP          field `json:"vwap"`
		OpeningPrice  field `json:"openingprice"`
		PercentChange field `json:"perchange"`
		HighDPR       field `json:"highdpr"`
	} `json:"data"`
}

// PollQuote fetches one quote snapshot. The previous close is taken from the
// vwap field and the ceiling from highdpr, as the TMS watch endpoint reports
// them.
func (c *Client) PollQuote(ctx context.Context, s *Session, symbol string) (quote.Snapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	params := url.Values{}
	params.Set("action", "getWatchForSecurity")
	params.Set("format", "json")
	params.Set("securityid", symbol)
	params.Set("exchange", Exchange)
	params.Set("bookDefId", "1")

	resp, err := c.do(ctx, http.MethodGet, pathWatch, params, nil, s.Cookie())
	if err != nil {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Err: err}
	}
	if resp.status != http.StatusOK {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Status: resp.status, Err: errors.New("failed to fetch watch details")}
	}

	var wr watchResp
	if err := json.Unmarshal(resp.body, &wr); err != nil {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Err: fmt.Errorf("%w: decode: %v (body=%s)", quote.ErrMalformed, err, snippet(resp.body))}
	}
	if wr.Data == nil {
		return quote.Snapshot{}, malformedQuote(symbol, "response has no data")
	}
	w := wr.Data
	if !w.TradePrice.present {
		return quote.Snapshot{}, malformedQuote(symbol, "tradeprice missing")
	}

	prevClose, err := quote.ParsePrice(w.VWAP.String())
	if err != nil {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Err: fmt.Errorf("vwap: %w", err)}
	}
	opening, err := quote.ParseOptionalPrice(w.OpeningPrice.String())
	if err != nil {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Err: fmt.Errorf("openingprice: %w", err)}
	}
	pct, err := quote.ParsePercent(w.PercentChange.String())
	if err != nil {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Err: fmt.Errorf("perchange: %w", err)}
	}
	ceiling, err := quote.ParseCeiling(w.HighDPR.String())
	if err != nil {
		return quote.Snapshot{}, &QuoteError{Symbol: symbol, Err: fmt.Errorf("highdpr: %w", err)}
	}

	return quote.Snapshot{
		Symbol:        symbol,
		TradePriceRaw: w.TradePrice.String(),
		OpeningPrice:  opening,
		PercentChange: pct,
		CeilingPrice:  ceiling,
		PreviousClose: prevClose,
		At:            time.Now(),
	}, nil
}
