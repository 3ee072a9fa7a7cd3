package tms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// Account holds the identifiers every order payload must carry.
type Account struct {
	AccountID  string
	ClientCode string
	ClientName string
	NationalID string
}

// ClientAcc renders the clientAcc order field. The trailing space is what the
// TMS web front end sends.
func (a Account) ClientAcc() string {
	return fmt.Sprintf("%s ( %s-%s) ", a.ClientCode, a.ClientName, a.NationalID)
}

type userDetailsResp struct {
	Data *struct {
		UserIDs []struct {
			AccountID  field `json:"clientacntid"`
			ClientCode field `json:"clientCode"`
			LastName   field `json:"lastName"`
			NIC        field `json:"nic"`
		} `json:"userids"`
	} `json:"data"`
}

func (c *Client) FetchAccount(ctx context.Context, s *Session) (Account, error) {
	params := url.Values{}
	params.Set("action", "getUserDetails")
	params.Set("format", "json")

	resp, err := c.do(ctx, http.MethodGet, pathOrder, params, nil, s.Cookie())
	if err != nil {
		return Account{}, &ProfileError{Err: err}
	}
	if resp.status != http.StatusOK {
		return Account{}, &ProfileError{Status: resp.status, Err: errors.New("failed to fetch details")}
	}

	var ud userDetailsResp
	if err := json.Unmarshal(resp.body, &ud); err != nil {
		return Account{}, &ProfileError{Err: fmt.Errorf("decode: %w (body=%s)", err, snippet(resp.body))}
	}
	if ud.Data == nil || len(ud.Data.UserIDs) == 0 {
		return Account{}, &ProfileError{Err: errors.New("response has no userids")}
	}
	u := ud.Data.UserIDs[0]
	if !u.AccountID.set() || !u.ClientCode.set() || !u.LastName.present || !u.NIC.present {
		return Account{}, &ProfileError{Err: errors.New("user details missing expected fields")}
	}
	return Account{
		AccountID:  u.AccountID.String(),
		ClientCode: u.ClientCode.String(),
		ClientName: u.LastName.String(),
		NationalID: u.NIC.String(),
	}, nil
}
