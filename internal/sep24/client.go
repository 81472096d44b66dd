// Package sep24 talks to an anchor's interactive transfer server on behalf
// of a wallet. Every call carries a session token from a sep10.TokenSource.
package sep24

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/netx"
	"github.com/dmitrijs2005/stellarkeeper/internal/sep10"
	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Transfer directions.
const (
	Deposit  = "deposit"
	Withdraw = "withdraw"
)

// Interactive is the anchor's answer to an interactive transfer request.
// URL is the page the user must open to complete the flow.
type Interactive struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	ID   string `json:"id"`
}

// Client is a transfer server client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     sep10.TokenSource
	logger     logging.Logger
}

func New(transferServer string, timeout time.Duration, tokens sep10.TokenSource, l logging.Logger) (*Client, error) {
	if transferServer == "" {
		return nil, fmt.Errorf("%w: transfer server URL required", common.ErrMisconfigured)
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(transferServer, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     l.With("module", "sep24"),
	}, nil
}

// Info returns the transfer server's /info document as is.
func (c *Client) Info(ctx context.Context, creds sep10.Credentials) (*structpb.Struct, error) {
	body, err := c.do(ctx, creds, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return nil, err
	}
	return toStruct(body)
}

// StartInteractive opens a deposit or withdrawal flow for assetCode.
func (c *Client) StartInteractive(ctx context.Context, creds sep10.Credentials, direction, assetCode string) (*Interactive, error) {
	if direction != Deposit && direction != Withdraw {
		return nil, fmt.Errorf("%w: transfer type %q", common.ErrInvalidArgument, direction)
	}
	if assetCode == "" {
		return nil, fmt.Errorf("%w: asset code required", common.ErrUnknownAsset)
	}

	payload := map[string]string{"asset_code": assetCode, "account": creds.PublicKey}
	body, err := c.do(ctx, creds, http.MethodPost, c.baseURL+"/transactions/"+direction+"/interactive", payload)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	out := &Interactive{
		Type: res.Get("type").String(),
		URL:  res.Get("url").String(),
		ID:   res.Get("id").String(),
	}
	c.logger.Info(ctx, "interactive transfer started", "account", creds.PublicKey, "direction", direction, "asset", assetCode, "id", out.ID)
	return out, nil
}

// Transactions lists the account's transfers of assetCode.
func (c *Client) Transactions(ctx context.Context, creds sep10.Credentials, assetCode string) (*structpb.Struct, error) {
	q := url.Values{}
	q.Set("asset_code", assetCode)

	body, err := c.do(ctx, creds, http.MethodGet, c.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return toStruct(body)
}

// do sends an authenticated request. When the token came from a source
// that keeps tokens and the anchor refuses it, the token is dropped and the
// request is sent once more with a fresh one.
func (c *Client) do(ctx context.Context, creds sep10.Credentials, method, u string, payload any) ([]byte, error) {
	body, status, err := c.send(ctx, creds, method, u, payload)
	if err == nil {
		return body, nil
	}

	inv, cached := c.tokens.(sep10.Invalidator)
	if !cached || (status != http.StatusUnauthorized && status != http.StatusForbidden) {
		return nil, err
	}

	c.logger.Info(ctx, "anchor refused cached token", "account", creds.PublicKey, "status", status)
	if ierr := inv.Invalidate(ctx, creds.PublicKey); ierr != nil {
		c.logger.Warn(ctx, "token cache invalidation failed", "account", creds.PublicKey, "error", ierr)
		return nil, err
	}
	body, _, err = c.send(ctx, creds, method, u, payload)
	return body, err
}

// send performs one request. On an anchor rejection the HTTP status is
// returned alongside the error.
func (c *Client) send(ctx context.Context, creds sep10.Credentials, method, u string, payload any) ([]byte, int, error) {
	token, err := c.tokens.Token(ctx, creds)
	if err != nil {
		return nil, 0, err
	}

	req, err := netx.NewJSONRequest(ctx, method, u, payload)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := netx.ReadBody(c.httpClient, req)
	if err != nil {
		var se *netx.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			msg := gjson.GetBytes(se.Body, "error").String()
			if msg == "" {
				msg = http.StatusText(se.StatusCode)
			}
			return nil, se.StatusCode, fmt.Errorf("%w: %s", common.ErrAuthRejected, msg)
		}
		return nil, 0, fmt.Errorf("%w: %v", common.ErrAnchorUnavailable, err)
	}
	return body, http.StatusOK, nil
}

func toStruct(body []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(body, s); err != nil {
		return nil, fmt.Errorf("%w: decode transfer server response: %v", common.ErrAnchorUnavailable, err)
	}
	return s, nil
}
