// Package sep10 obtains anchor session tokens through the web authentication
// challenge protocol: fetch a challenge transaction, validate it, co-sign it
// with the wallet key and exchange it for a token.
package sep10

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/custody"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/metrics"
	"github.com/dmitrijs2005/stellarkeeper/internal/netx"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/tidwall/gjson"
)

// WebAuthDomainKey is the name of the optional ManageData operation that
// binds a challenge to the host serving the endpoint.
const WebAuthDomainKey = "web_auth_domain"

// Config describes the anchor to authenticate against.
type Config struct {
	// Endpoint is the WEB_AUTH_ENDPOINT URL.
	Endpoint string
	// HomeDomain is the anchor's home domain. A scheme prefix is ignored.
	HomeDomain string
	// WebAuthDomain defaults to the host of Endpoint.
	WebAuthDomain string
	// SigningKey is the anchor's challenge signing account.
	SigningKey        string
	NetworkPassphrase string
	Timeout           time.Duration
}

// Credentials identify the wallet being authenticated. The key stays sealed
// until the challenge has been validated.
type Credentials struct {
	PublicKey    string
	EncryptedKey string
	Passphrase   custody.Passphrase
}

// KeyOpener decrypts a sealed signing key.
type KeyOpener interface {
	Open(ctx context.Context, ciphertext string, p custody.Passphrase) (*custody.Signer, error)
}

// Authenticator runs the challenge protocol. It holds no per-account state.
type Authenticator struct {
	cfg        Config
	homeDomain string
	httpClient *http.Client
	keys       KeyOpener
	logger     logging.Logger
}

// New validates cfg and returns an Authenticator.
func New(cfg Config, keys KeyOpener, l logging.Logger) (*Authenticator, error) {
	if cfg.Endpoint == "" || cfg.SigningKey == "" || cfg.HomeDomain == "" {
		return nil, fmt.Errorf("%w: web auth endpoint, home domain and signing key are required", common.ErrMisconfigured)
	}
	if _, err := keypair.ParseAddress(cfg.SigningKey); err != nil {
		return nil, fmt.Errorf("%w: anchor signing key: %v", common.ErrMisconfigured, err)
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: web auth endpoint %q", common.ErrMisconfigured, cfg.Endpoint)
	}
	if cfg.WebAuthDomain == "" {
		cfg.WebAuthDomain = u.Host
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Authenticator{
		cfg:        cfg,
		homeDomain: stripScheme(cfg.HomeDomain),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		keys:       keys,
		logger:     l.With("module", "sep10"),
	}, nil
}

func stripScheme(s string) string {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimRight(s, "/")
}

// Challenge is the anchor's answer to a challenge request.
type Challenge struct {
	Transaction       string
	NetworkPassphrase string
}

// Authenticate performs the full protocol for creds and returns the session
// token. Protocol violations are never retried.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	token, err := a.authenticate(ctx, creds)
	metrics.RecordAuth(authResult(err))
	if err != nil {
		a.logger.Warn(ctx, "challenge authentication failed", "account", creds.PublicKey, "error", err)
		return "", err
	}
	a.logger.Info(ctx, "challenge authentication succeeded", "account", creds.PublicKey)
	return token, nil
}

func (a *Authenticator) authenticate(ctx context.Context, creds Credentials) (string, error) {
	ch, err := a.FetchChallenge(ctx, creds.PublicKey)
	if err != nil {
		return "", err
	}

	tx, err := a.Validate(ch, creds.PublicKey)
	if err != nil {
		return "", err
	}

	signer, err := a.keys.Open(ctx, creds.EncryptedKey, creds.Passphrase)
	if err != nil {
		return "", err
	}
	defer signer.Close()

	if signer.Address() != creds.PublicKey {
		return "", fmt.Errorf("%w: decrypted key does not match account", common.ErrDecryptionFailed)
	}

	signed, err := tx.Sign(a.cfg.NetworkPassphrase, signer.Keypair())
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	envelope, err := signed.Base64()
	if err != nil {
		return "", fmt.Errorf("encode challenge: %w", err)
	}

	return a.Submit(ctx, envelope)
}

// FetchChallenge requests a challenge for account.
func (a *Authenticator) FetchChallenge(ctx context.Context, account string) (*Challenge, error) {
	q := url.Values{}
	q.Set("account", account)

	sep := "?"
	if strings.Contains(a.cfg.Endpoint, "?") {
		sep = "&"
	}
	req, err := netx.NewJSONRequest(ctx, http.MethodGet, a.cfg.Endpoint+sep+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	body, err := netx.ReadBody(a.httpClient, req)
	if err != nil {
		return nil, anchorError("fetch challenge", err)
	}

	res := gjson.ParseBytes(body)
	ch := &Challenge{
		Transaction:       res.Get("transaction").String(),
		NetworkPassphrase: res.Get("network_passphrase").String(),
	}
	if ch.Transaction == "" {
		return nil, fmt.Errorf("%w: response has no transaction", common.ErrInvalidChallenge)
	}
	return ch, nil
}

// Validate checks a challenge before anything is signed and returns the
// decoded transaction.
//
// The home domain and web auth domain are checked first and yield
// ErrDomainMismatch whether or not the client account matches. Everything
// else the challenge protocol requires (source, sequence, time bounds,
// nonce, operation layout, anchor signature) is checked by
// txnbuild.ReadChallengeTx and yields ErrInvalidChallenge. A challenge
// issued for another account yields ErrClientMismatch.
func (a *Authenticator) Validate(ch *Challenge, clientAccount string) (*txnbuild.Transaction, error) {
	if ch.NetworkPassphrase != "" && ch.NetworkPassphrase != a.cfg.NetworkPassphrase {
		return nil, fmt.Errorf("%w: network passphrase %q", common.ErrInvalidChallenge, ch.NetworkPassphrase)
	}
	if err := a.checkDomains(ch.Transaction); err != nil {
		return nil, err
	}

	tx, client, matched, _, err := txnbuild.ReadChallengeTx(
		ch.Transaction, a.cfg.SigningKey, a.cfg.NetworkPassphrase, a.cfg.WebAuthDomain, []string{a.homeDomain})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidChallenge, err)
	}
	if matched != a.homeDomain {
		return nil, fmt.Errorf("%w: challenge is for %q", common.ErrDomainMismatch, matched)
	}
	if client != clientAccount {
		return nil, fmt.Errorf("%w: challenge issued for %s", common.ErrClientMismatch, client)
	}
	return tx, nil
}

// checkDomains reports a domain mismatch in the ManageData operations of an
// envelope. Envelopes that cannot be decoded are left to ReadChallengeTx.
func (a *Authenticator) checkDomains(envelope string) error {
	gtx, err := txnbuild.TransactionFromXDR(envelope)
	if err != nil {
		return nil
	}
	tx, ok := gtx.Transaction()
	if !ok {
		return nil
	}

	for i, op := range tx.Operations() {
		md, ok := op.(*txnbuild.ManageData)
		if !ok {
			continue
		}
		if i == 0 {
			if want := a.homeDomain + " auth"; md.Name != want {
				return fmt.Errorf("%w: challenge is for %q, expected %q", common.ErrDomainMismatch, md.Name, want)
			}
			continue
		}
		if md.Name == WebAuthDomainKey && string(md.Value) != a.cfg.WebAuthDomain {
			return fmt.Errorf("%w: web auth domain %q, expected %q", common.ErrDomainMismatch, md.Value, a.cfg.WebAuthDomain)
		}
	}
	return nil
}

// Submit posts a co-signed challenge and returns the issued token.
func (a *Authenticator) Submit(ctx context.Context, envelope string) (string, error) {
	req, err := netx.NewJSONRequest(ctx, http.MethodPost, a.cfg.Endpoint, map[string]string{"transaction": envelope})
	if err != nil {
		return "", err
	}

	body, err := netx.ReadBody(a.httpClient, req)
	if err != nil {
		return "", anchorError("submit challenge", err)
	}

	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return "", fmt.Errorf("%w: response has no token", common.ErrAuthRejected)
	}
	return token, nil
}

// anchorError maps a failed anchor call: 4xx responses are rejections
// carrying the anchor's error message, anything else is unavailability.
func anchorError(op string, err error) error {
	var se *netx.StatusError
	if errors.As(err, &se) && se.StatusCode < 500 {
		msg := gjson.GetBytes(se.Body, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(se.Body))
		}
		return fmt.Errorf("%w: %s: %s", common.ErrAuthRejected, op, msg)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrAnchorUnavailable, op, err)
}

func authResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrDomainMismatch):
		return "domain_mismatch"
	case errors.Is(err, common.ErrClientMismatch):
		return "client_mismatch"
	case errors.Is(err, common.ErrInvalidChallenge):
		return "invalid_challenge"
	case errors.Is(err, common.ErrAuthRejected):
		return "rejected"
	case errors.Is(err, common.ErrDecryptionFailed):
		return "decryption_failed"
	default:
		return "error"
	}
}
