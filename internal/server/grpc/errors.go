package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrInvalidArgument, codes.InvalidArgument},
	{common.ErrInvalidAddress, codes.InvalidArgument},
	{common.ErrInvalidAmount, codes.InvalidArgument},
	{common.ErrInvalidSlippage, codes.InvalidArgument},
	{common.ErrUnknownAsset, codes.InvalidArgument},
	{common.ErrInvalidPIN, codes.InvalidArgument},

	{common.ErrNoPathFound, codes.FailedPrecondition},
	{common.ErrLedgerRejected, codes.FailedPrecondition},
	{common.ErrTransactionFailed, codes.FailedPrecondition},
	{common.ErrWalletExists, codes.FailedPrecondition},
	{common.ErrNoWallet, codes.FailedPrecondition},

	{common.ErrInvalidChallenge, codes.PermissionDenied},
	{common.ErrDomainMismatch, codes.PermissionDenied},
	{common.ErrClientMismatch, codes.PermissionDenied},
	{common.ErrAuthRejected, codes.PermissionDenied},

	{common.ErrorUnauthorized, codes.Unauthenticated},
	{common.ErrInvalidToken, codes.Unauthenticated},
	{common.ErrRefreshTokenExpired, codes.Unauthenticated},

	{common.ErrConflict, codes.Aborted},

	{common.ErrLedgerTimeout, codes.DeadlineExceeded},
	{common.ErrAnchorUnavailable, codes.Unavailable},
	{common.ErrLedgerUnavailable, codes.Unavailable},

	{common.ErrMisconfigured, codes.Unavailable},

	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorAlreadyExists, codes.AlreadyExists},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

// toStatus maps a service error to a gRPC status. Known errors keep their
// message; anything else, including key decryption failures, is reported
// as a bare internal error.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}
