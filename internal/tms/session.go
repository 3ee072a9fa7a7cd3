package tms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
)

const sessionCookie = "JSESSIONID"

// Session is the authenticated context shared read-only by every symbol loop.
type Session struct {
	Username   string
	JSessionID string
	WatchID    string
	BrokerCode string
}

// Cookie returns the Cookie header value the TMS expects after login.
func (s *Session) Cookie() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("username=%s; watchID=%s; %s=%s; broker_code=%s",
		s.Username, s.WatchID, sessionCookie, s.JSessionID, s.BrokerCode)
}

// Bootstrap fetches the login page to obtain a fresh JSESSIONID. Transport
// failures and non-200 responses are retried with exponential backoff; a 200
// without the cookie is not.
func (c *Client) Bootstrap(ctx context.Context) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.bootstrapInitial

	op := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+pathLogin, nil)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "*/*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

		if resp.StatusCode != http.StatusOK {
			return "", &AuthError{Op: "bootstrap", Status: resp.StatusCode, Err: errors.New("unexpected status")}
		}
		for _, ck := range resp.Cookies() {
			if ck.Name == sessionCookie && ck.Value != "" {
				return ck.Value, nil
			}
		}
		return "", backoff.Permanent(&AuthError{Op: "bootstrap", Err: fmt.Errorf("no %s cookie", sessionCookie)})
	}

	id, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(c.bootstrapTries))
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return "", ae
		}
		return "", &AuthError{Op: "bootstrap", Err: err}
	}
	return id, nil
}

type loginResp struct {
	Code       field `json:"code"`
	WatchID    field `json:"watchID"`
	BrokerCode field `json:"broker_code"`
}

// Authenticate exchanges credentials for a session, bootstrapping the
// JSESSIONID first.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, &AuthError{Op: "login", Err: errors.New("username and password required")}
	}

	jsid, err := c.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("action", "login")
	form.Set("format", "json")
	form.Set("txtUserName", username)
	form.Set("txtPassword", password)

	resp, err := c.do(ctx, http.MethodPost, pathLogin, nil, form, sessionCookie+"="+jsid)
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}
	if resp.status != http.StatusOK {
		return nil, &AuthError{Op: "login", Status: resp.status, Err: errors.New("bad request")}
	}

	var lr loginResp
	if err := json.Unmarshal(resp.body, &lr); err != nil {
		return nil, &AuthError{Op: "login", Err: fmt.Errorf("decode: %w (body=%s)", err, snippet(resp.body))}
	}
	if lr.Code.String() != "0" {
		return nil, &AuthError{Op: "login", Err: fmt.Errorf("unexpected code %q", lr.Code.String())}
	}
	if !lr.WatchID.set() || !lr.BrokerCode.set() {
		return nil, &AuthError{Op: "login", Err: errors.New("response missing watchID or broker_code")}
	}

	return &Session{
		Username:   username,
		JSessionID: jsid,
		WatchID:    lr.WatchID.String(),
		BrokerCode: lr.BrokerCode.String(),
	}, nil
}
