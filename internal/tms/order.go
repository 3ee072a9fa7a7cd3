package tms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// OrderRequest is one limit buy.
type OrderRequest struct {
	Symbol      string
	Quantity    int
	LimitPrice  decimal.Decimal
	MarketPrice decimal.Decimal // last trade, informational for the broker
	Token       string          // idempotency token (duplicateOrderId)
}

type OrderAck struct {
	Code    string
	Message string
	Latency time.Duration
}

type orderResp struct {
	Code    field `json:"code"`
	Message field `json:"message"`
}

// SubmitOrder places a buy order. It is never retried here: a retry with the
// same token may be dropped as a duplicate, one with a new token may double
// the position.
func (c *Client) SubmitOrder(ctx context.Context, s *Session, acct Account, o OrderRequest) (OrderAck, error) {
	if o.Quantity <= 0 {
		return OrderAck{}, &OrderError{Symbol: o.Symbol, Token: o.Token, Err: fmt.Errorf("quantity must be > 0, got %d", o.Quantity)}
	}
	if o.Token == "" {
		return OrderAck{}, &OrderError{Symbol: o.Symbol, Err: errors.New("idempotency token required")}
	}

	form := url.Values{}
	form.Set("action", "submitOrder")
	form.Set("market", Exchange)
	form.Set("broker", s.BrokerCode)
	form.Set("format", "json")
	form.Set("brokerClient", "1")
	form.Set("orderStatus", "Open")
	form.Set("acntid", acct.AccountID)
	form.Set("marketPrice", o.MarketPrice.String())
	form.Set("duplicateOrderId", o.Token)
	form.Set("clientAcc", acct.ClientAcc())
	form.Set("assetSelect", "1")
	form.Set("actionSelect", "1") // buy
	form.Set("txtSecurity", o.Symbol)
	form.Set("cmbTypeOfOrder", "1") // limit
	form.Set("spnQuantity", strconv.Itoa(o.Quantity))
	form.Set("spnPrice", o.LimitPrice.StringFixed(1))
	form.Set("cmbTif", "16")
	form.Set("cmbTifDays", "1")
	form.Set("cmbBoard", "1")
	form.Set("brokerClientVal", "1")

	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, pathOrder, nil, form, s.Cookie())
	latency := time.Since(start)
	if err != nil {
		return OrderAck{Latency: latency}, &OrderError{Symbol: o.Symbol, Token: o.Token, Err: err}
	}
	if resp.status != http.StatusOK {
		return OrderAck{Latency: latency}, &OrderError{Symbol: o.Symbol, Token: o.Token, Status: resp.status, Err: errors.New("failed to place buy order")}
	}

	var or orderResp
	if err := json.Unmarshal(resp.body, &or); err != nil {
		return OrderAck{Latency: latency}, &OrderError{Symbol: o.Symbol, Token: o.Token, Err: fmt.Errorf("decode: %w (body=%s)", err, snippet(resp.body))}
	}
	ack := OrderAck{Code: or.Code.String(), Message: or.Message.String(), Latency: latency}
	if !or.Code.present {
		return ack, &OrderError{Symbol: o.Symbol, Token: o.Token, Err: errors.New("response missing code")}
	}
	if ack.Code != "0" {
		return ack, &OrderError{Symbol: o.Symbol, Token: o.Token, Err: fmt.Errorf("rejected: code=%s message=%q", ack.Code, ack.Message)}
	}
	return ack, nil
}
