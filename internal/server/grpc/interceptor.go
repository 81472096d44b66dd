package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/metrics"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/auth"
	"github.com/dmitrijs2005/stellarkeeper/internal/walletapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const AccountIDKey ctxKey = "accountID"

// walletMethod reports whether fullMethod belongs to the wallet service
// and is not one of its public methods.
func walletMethod(fullMethod string) bool {
	if !strings.HasPrefix(fullMethod, "/"+walletapi.ServiceName+"/") {
		return false
	}
	return !walletapi.PublicMethods[fullMethod]
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if !walletMethod(info.FullMethod) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	accountID, err := auth.GetAccountIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	ctx = context.WithValue(ctx, AccountIDKey, accountID)

	return handler(ctx, req)
}

func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter == nil {
		return handler(ctx, req)
	}
	accountID, ok := accountIDFromContext(ctx)
	if !ok {
		return handler(ctx, req)
	}
	if !s.limiter.Allow(accountID) {
		s.logger.Warn(ctx, "rate limit exceeded", "account_id", accountID, "method", info.FullMethod)
		return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return handler(ctx, req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	metrics.RecordGRPC(info.FullMethod, code.String())
	if err != nil {
		s.logger.Debug(ctx, "request failed", "method", info.FullMethod, "code", code.String(), "elapsed", time.Since(start))
	}
	return resp, err
}

func accountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AccountIDKey).(string)
	return id, ok && id != ""
}
