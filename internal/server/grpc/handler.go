package grpc

import (
	"context"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/services"
	"github.com/dmitrijs2005/stellarkeeper/internal/walletapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, req *walletapi.RegisterRequest) (*walletapi.RegisterResponse, error) {

	s.logger.Info(ctx, "Registration request")

	a, err := s.accounts.Register(ctx, req.Email, req.Username, req.Password, req.PIN)
	if err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}

	s.logger.Info(ctx, "Registered", "account_id", a.ID)
	return &walletapi.RegisterResponse{AccountID: a.ID}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *walletapi.LoginRequest) (*walletapi.TokenResponse, error) {

	tokens, err := s.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}

	return &walletapi.TokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *walletapi.RefreshTokenRequest) (*walletapi.TokenResponse, error) {

	tokens, err := s.accounts.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, "RefreshToken", err)
	}

	return &walletapi.TokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// caller returns the account the access token was issued for.
func caller(ctx context.Context) (string, error) {
	id, ok := accountIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func (s *GRPCServer) CreateWallet(ctx context.Context, _ *walletapi.Empty) (*walletapi.CreateWalletResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	pk, err := s.accounts.CreateWallet(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, "CreateWallet", err)
	}

	s.logger.Info(ctx, "Wallet created", "account_id", id, "public_key", pk)
	return &walletapi.CreateWalletResponse{PublicKey: pk}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *walletapi.ChangePasswordRequest) (*walletapi.Empty, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.ChangePassword(ctx, id, req.OldPassword, req.NewPassword); err != nil {
		return nil, s.toStatus(ctx, "ChangePassword", err)
	}
	return &walletapi.Empty{}, nil
}

func (s *GRPCServer) ChangePIN(ctx context.Context, req *walletapi.ChangePINRequest) (*walletapi.Empty, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.ChangePIN(ctx, id, req.OldPIN, req.NewPIN); err != nil {
		return nil, s.toStatus(ctx, "ChangePIN", err)
	}
	return &walletapi.Empty{}, nil
}

func (s *GRPCServer) ExportPrivateKey(ctx context.Context, req *walletapi.ExportPrivateKeyRequest) (*walletapi.ExportPrivateKeyResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	seed, err := s.accounts.ExportPrivateKey(ctx, id, req.PIN)
	if err != nil {
		return nil, s.toStatus(ctx, "ExportPrivateKey", err)
	}

	s.logger.Warn(ctx, "Private key exported", "account_id", id)
	return &walletapi.ExportPrivateKeyResponse{SecretSeed: seed}, nil
}

func toBalances(in []ledger.Balance) []walletapi.Balance {
	out := make([]walletapi.Balance, 0, len(in))
	for _, b := range in {
		out = append(out, walletapi.Balance{
			AssetType:   b.AssetType,
			AssetCode:   b.AssetCode,
			AssetIssuer: b.AssetIssuer,
			Balance:     b.Balance,
			Limit:       b.Limit,
		})
	}
	return out
}

func (s *GRPCServer) Balances(ctx context.Context, _ *walletapi.Empty) (*walletapi.BalancesResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.wallet.Balances(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, "Balances", err)
	}

	return &walletapi.BalancesResponse{
		PublicKey: p.PublicKey,
		Base:      toBalances(p.Base),
		Yield:     toBalances(p.Yield),
	}, nil
}

func (s *GRPCServer) History(ctx context.Context, req *walletapi.HistoryRequest) (*walletapi.HistoryResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.wallet.History(ctx, id, req.Limit, req.Offset)
	if err != nil {
		return nil, s.toStatus(ctx, "History", err)
	}

	out := make([]walletapi.Transaction, 0, len(records))
	for _, r := range records {
		out = append(out, walletapi.Transaction{
			ID:          r.ID,
			Kind:        r.Kind,
			Hash:        r.Hash,
			SourceAsset: r.SourceAsset,
			DestAsset:   r.DestAsset,
			Amount:      r.Amount,
			DestAmount:  r.DestAmount,
			Destination: r.Destination,
			CreatedAt:   r.CreatedAt,
		})
	}
	return &walletapi.HistoryResponse{Transactions: out}, nil
}

func toOperation(r *services.OperationResult) *walletapi.OperationResponse {
	return &walletapi.OperationResponse{Hash: r.Hash, Ledger: r.Ledger, Bound: r.Bound}
}

func (s *GRPCServer) ChangeTrust(ctx context.Context, req *walletapi.ChangeTrustRequest) (*walletapi.OperationResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.wallet.ChangeTrust(ctx, id, req.AssetCode, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, "ChangeTrust", err)
	}
	return toOperation(r), nil
}

func (s *GRPCServer) RemoveTrust(ctx context.Context, req *walletapi.RemoveTrustRequest) (*walletapi.OperationResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.wallet.RemoveTrust(ctx, id, req.AssetCode)
	if err != nil {
		return nil, s.toStatus(ctx, "RemoveTrust", err)
	}
	return toOperation(r), nil
}

func (s *GRPCServer) Pay(ctx context.Context, req *walletapi.PayRequest) (*walletapi.OperationResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	p := services.PaymentRequest{
		Destination: req.Destination,
		AssetCode:   req.AssetCode,
		Amount:      req.Amount,
		Memo:        req.Memo,
	}
	if req.Bank != nil {
		p.Bank = &services.BankDetails{
			AccountNumber: req.Bank.AccountNumber,
			AccountName:   req.Bank.AccountName,
			BankName:      req.Bank.BankName,
		}
	}

	r, err := s.wallet.Pay(ctx, id, p)
	if err != nil {
		return nil, s.toStatus(ctx, "Pay", err)
	}
	return toOperation(r), nil
}

func toConversion(req *walletapi.ConversionRequest) services.ConversionRequest {
	return services.ConversionRequest{
		Destination: req.Destination,
		SourceAsset: req.SourceAsset,
		DestAsset:   req.DestAsset,
		Amount:      req.Amount,
		DestAmount:  req.DestAmount,
		Slippage:    req.Slippage,
	}
}

func (s *GRPCServer) StrictSend(ctx context.Context, req *walletapi.ConversionRequest) (*walletapi.OperationResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.wallet.StrictSend(ctx, id, toConversion(req))
	if err != nil {
		return nil, s.toStatus(ctx, "StrictSend", err)
	}
	return toOperation(r), nil
}

func (s *GRPCServer) StrictReceive(ctx context.Context, req *walletapi.ConversionRequest) (*walletapi.OperationResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.wallet.StrictReceive(ctx, id, toConversion(req))
	if err != nil {
		return nil, s.toStatus(ctx, "StrictReceive", err)
	}
	return toOperation(r), nil
}

func (s *GRPCServer) Swap(ctx context.Context, req *walletapi.ConversionRequest) (*walletapi.OperationResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.wallet.Swap(ctx, id, toConversion(req))
	if err != nil {
		return nil, s.toStatus(ctx, "Swap", err)
	}
	return toOperation(r), nil
}

func toDocument(st *structpb.Struct) (*walletapi.AnchorDocument, error) {
	if st == nil {
		return &walletapi.AnchorDocument{Document: []byte("{}")}, nil
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}
	return &walletapi.AnchorDocument{Document: b}, nil
}

func (s *GRPCServer) AnchorInfo(ctx context.Context, _ *walletapi.Empty) (*walletapi.AnchorDocument, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.anchor.Info(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, "AnchorInfo", err)
	}
	return toDocument(st)
}

func (s *GRPCServer) AnchorInteractive(ctx context.Context, req *walletapi.AnchorInteractiveRequest) (*walletapi.AnchorInteractiveResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	in, err := s.anchor.Interactive(ctx, id, req.Type, req.AssetCode)
	if err != nil {
		return nil, s.toStatus(ctx, "AnchorInteractive", err)
	}
	return &walletapi.AnchorInteractiveResponse{Type: in.Type, URL: in.URL, ID: in.ID}, nil
}

func (s *GRPCServer) AnchorTransactions(ctx context.Context, req *walletapi.AnchorTransactionsRequest) (*walletapi.AnchorDocument, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.anchor.Transactions(ctx, id, req.AssetCode)
	if err != nil {
		return nil, s.toStatus(ctx, "AnchorTransactions", err)
	}
	return toDocument(st)
}

func (s *GRPCServer) AvatarUploadURL(ctx context.Context, _ *walletapi.Empty) (*walletapi.AvatarUploadURLResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	key, url, err := s.accounts.AvatarUploadURL(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, "AvatarUploadURL", err)
	}
	return &walletapi.AvatarUploadURLResponse{Key: key, URL: url}, nil
}

func (s *GRPCServer) AvatarURL(ctx context.Context, _ *walletapi.Empty) (*walletapi.AvatarURLResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.accounts.AvatarURL(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, "AvatarURL", err)
	}
	return &walletapi.AvatarURLResponse{URL: url}, nil
}
