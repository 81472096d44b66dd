package sep10

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/cache"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Token strategies.
const (
	StrategyAlways = "always"
	StrategyCache  = "cache"
)

// expirySkew is subtracted from a token's exp claim so a cached token is
// never presented right at its expiry.
const expirySkew = 30 * time.Second

// TokenSource hands out anchor session tokens.
type TokenSource interface {
	Token(ctx context.Context, creds Credentials) (string, error)
}

// Invalidator is implemented by token sources that keep tokens between
// calls. Invalidate drops the token held for account.
type Invalidator interface {
	Invalidate(ctx context.Context, account string) error
}

// Challenger runs a full challenge authentication.
type Challenger interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// AlwaysAuthenticate runs the full protocol on every call.
type AlwaysAuthenticate struct {
	auth Challenger
}

func NewAlwaysAuthenticate(auth Challenger) *AlwaysAuthenticate {
	return &AlwaysAuthenticate{auth: auth}
}

func (s *AlwaysAuthenticate) Token(ctx context.Context, creds Credentials) (string, error) {
	return s.auth.Authenticate(ctx, creds)
}

// CachedTokens reuses a token per account until the earlier of the
// configured TTL and the token's own expiry.
type CachedTokens struct {
	auth   Challenger
	store  cache.Store
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewCachedTokens(auth Challenger, store cache.Store, ttl time.Duration, l logging.Logger) *CachedTokens {
	return &CachedTokens{
		auth:   auth,
		store:  store,
		ttl:    ttl,
		logger: l.With("module", "sep10-cache"),
		now:    time.Now,
	}
}

func tokenKey(account string) string { return "sep10:token:" + account }

func (s *CachedTokens) Token(ctx context.Context, creds Credentials) (string, error) {
	key := tokenKey(creds.PublicKey)

	tok, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "token cache read failed", "error", err)
	} else if ok {
		return tok, nil
	}

	tok, err = s.auth.Authenticate(ctx, creds)
	if err != nil {
		return "", err
	}

	if ttl := s.lifetime(tok); ttl > 0 {
		if err := s.store.Set(ctx, key, tok, ttl); err != nil {
			s.logger.Warn(ctx, "token cache write failed", "error", err)
		}
	}
	return tok, nil
}

// Invalidate drops the cached token of account, e.g. after the anchor
// refused it.
func (s *CachedTokens) Invalidate(ctx context.Context, account string) error {
	return s.store.Delete(ctx, tokenKey(account))
}

// lifetime is min(ttl, exp - skew - now). Tokens whose exp cannot be read
// get the configured ttl.
func (s *CachedTokens) lifetime(token string) time.Duration {
	ttl := s.ttl
	exp, err := expiry(token)
	if err != nil || exp.IsZero() {
		return ttl
	}
	left := exp.Add(-expirySkew).Sub(s.now())
	if left < ttl {
		return left
	}
	return ttl
}

func expiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// NewTokenSource selects a strategy by name. An empty name means always.
func NewTokenSource(strategy string, auth Challenger, store cache.Store, ttl time.Duration, l logging.Logger) (TokenSource, error) {
	switch strategy {
	case "", StrategyAlways:
		return NewAlwaysAuthenticate(auth), nil
	case StrategyCache:
		if store == nil {
			return nil, fmt.Errorf("token strategy %q needs a cache store", strategy)
		}
		return NewCachedTokens(auth, store, ttl, l), nil
	default:
		return nil, fmt.Errorf("unknown token strategy %q", strategy)
	}
}
