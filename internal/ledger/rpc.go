package ledger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/stellarkeeper/internal/netx"
	"github.com/tidwall/gjson"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Call makes a JSON-RPC call and returns the "result" member.
func (c *Client) Call(ctx context.Context, method string, params any) (gjson.Result, error) {
	req, err := netx.NewJSONRequest(ctx, http.MethodPost, c.rpcURL, RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return gjson.Result{}, err
	}

	body, err := netx.ReadBody(c.httpClient, req)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid json response", method)
	}

	resp := gjson.ParseBytes(body)
	if e := resp.Get("error"); e.Exists() {
		return gjson.Result{}, &RPCError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
	}
	return resp.Get("result"), nil
}

// SubmitTransaction sends a signed base64 envelope.
func (c *Client) SubmitTransaction(ctx context.Context, envelopeXDR string) (*SubmitResult, error) {
	res, err := c.Call(ctx, "sendTransaction", map[string]string{"transaction": envelopeXDR})
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return &SubmitResult{
		Status:         Status(res.Get("status").String()),
		Hash:           res.Get("hash").String(),
		ErrorResultXDR: res.Get("errorResultXdr").String(),
	}, nil
}

// GetTransactionStatus looks a submitted transaction up by hash.
func (c *Client) GetTransactionStatus(ctx context.Context, hash string) (*TxStatus, error) {
	res, err := c.Call(ctx, "getTransaction", map[string]string{"hash": hash})
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &TxStatus{
		Status:      Status(res.Get("status").String()),
		Ledger:      res.Get("ledger").Int(),
		ReturnValue: res.Get("returnValue").String(),
		ResultXDR:   res.Get("resultXdr").String(),
	}, nil
}
