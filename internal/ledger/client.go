package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"
)

// Config holds client configuration.
type Config struct {
	HorizonURL string
	RPCURL     string
	Timeout    time.Duration
}

// Client implements Port over Horizon (account state, fees, paths) and the
// Stellar RPC (submission and status).
type Client struct {
	horizon    horizonAPI
	rpcURL     string
	httpClient *http.Client
}

// NewClient creates a Client. Both endpoints are required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.HorizonURL == "" {
		return nil, errors.New("horizon URL required")
	}
	if cfg.RPCURL == "" {
		return nil, errors.New("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	hc := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       httpClient,
		AppName:    "stellarkeeper",
	}
	hc.SetHorizonTimeout(timeout)

	return &Client{
		horizon:    hc,
		rpcURL:     cfg.RPCURL,
		httpClient: httpClient,
	}, nil
}

var _ Port = (*Client)(nil)

// RPCError is an error object returned by the RPC server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
