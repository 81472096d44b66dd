// Package grpc exposes the wallet services as the stellarkeeper.v1.Wallet
// gRPC service.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/sep24"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/services"
	"github.com/dmitrijs2005/stellarkeeper/internal/walletapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Accounts is implemented by *services.AccountService.
type Accounts interface {
	Register(ctx context.Context, email, username, password, pin string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	CreateWallet(ctx context.Context, accountID string) (string, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	ChangePIN(ctx context.Context, accountID, oldPIN, newPIN string) error
	ExportPrivateKey(ctx context.Context, accountID, pin string) (string, error)
	AvatarUploadURL(ctx context.Context, accountID string) (key, url string, err error)
	AvatarURL(ctx context.Context, accountID string) (string, error)
}

// Wallet is implemented by *services.WalletService.
type Wallet interface {
	ChangeTrust(ctx context.Context, accountID, assetCode, limit string) (*services.OperationResult, error)
	RemoveTrust(ctx context.Context, accountID, assetCode string) (*services.OperationResult, error)
	Pay(ctx context.Context, accountID string, req services.PaymentRequest) (*services.OperationResult, error)
	StrictSend(ctx context.Context, accountID string, req services.ConversionRequest) (*services.OperationResult, error)
	StrictReceive(ctx context.Context, accountID string, req services.ConversionRequest) (*services.OperationResult, error)
	Swap(ctx context.Context, accountID string, req services.ConversionRequest) (*services.OperationResult, error)
	Balances(ctx context.Context, accountID string) (*services.Portfolio, error)
	History(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionRecord, error)
}

// Anchor is implemented by *services.AnchorService.
type Anchor interface {
	Info(ctx context.Context, accountID string) (*structpb.Struct, error)
	Interactive(ctx context.Context, accountID, direction, assetCode string) (*sep24.Interactive, error)
	Transactions(ctx context.Context, accountID, assetCode string) (*structpb.Struct, error)
}

type GRPCServer struct {
	walletapi.UnimplementedWalletServer
	address   string
	accounts  Accounts
	wallet    Wallet
	anchor    Anchor
	logger    logging.Logger
	jwtSecret []byte
	limiter   *RateLimiter
}

// NewGRPCServer builds the server. A nil limiter disables rate limiting.
func NewGRPCServer(a string, l logging.Logger, accounts Accounts, wallet Wallet, anchor Anchor,
	secretKey string, limiter *RateLimiter) (*GRPCServer, error) {
	if secretKey == "" {
		return nil, errors.New("grpc: empty token secret")
	}
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		accounts:  accounts,
		wallet:    wallet,
		anchor:    anchor,
		jwtSecret: []byte(secretKey),
		limiter:   limiter,
	}, nil
}

// NewServer returns a grpc.Server with the wallet and health services
// registered and the interceptor chain installed.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		s.metricsInterceptor,
		s.accessTokenInterceptor,
		s.rateLimitInterceptor,
	))
	srv := grpc.NewServer(opts...)

	walletapi.RegisterWalletServer(srv, s)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(walletapi.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, hs
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv, hs := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
