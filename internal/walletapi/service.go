package walletapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "stellarkeeper.v1.Wallet"

// FullMethod returns the gRPC method path of method, e.g.
// "/stellarkeeper.v1.Wallet/Login".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// PublicMethods can be called without an access token.
var PublicMethods = map[string]bool{
	FullMethod("Register"):     true,
	FullMethod("Login"):        true,
	FullMethod("RefreshToken"): true,
}

// WalletServer is the server API of stellarkeeper.v1.Wallet.
type WalletServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error)
	CreateWallet(context.Context, *Empty) (*CreateWalletResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error)
	ChangePIN(context.Context, *ChangePINRequest) (*Empty, error)
	ExportPrivateKey(context.Context, *ExportPrivateKeyRequest) (*ExportPrivateKeyResponse, error)
	Balances(context.Context, *Empty) (*BalancesResponse, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
	ChangeTrust(context.Context, *ChangeTrustRequest) (*OperationResponse, error)
	RemoveTrust(context.Context, *RemoveTrustRequest) (*OperationResponse, error)
	Pay(context.Context, *PayRequest) (*OperationResponse, error)
	StrictSend(context.Context, *ConversionRequest) (*OperationResponse, error)
	StrictReceive(context.Context, *ConversionRequest) (*OperationResponse, error)
	Swap(context.Context, *ConversionRequest) (*OperationResponse, error)
	AnchorInfo(context.Context, *Empty) (*AnchorDocument, error)
	AnchorInteractive(context.Context, *AnchorInteractiveRequest) (*AnchorInteractiveResponse, error)
	AnchorTransactions(context.Context, *AnchorTransactionsRequest) (*AnchorDocument, error)
	AvatarUploadURL(context.Context, *Empty) (*AvatarUploadURLResponse, error)
	AvatarURL(context.Context, *Empty) (*AvatarURLResponse, error)
}

// UnimplementedWalletServer answers every method with codes.Unimplemented.
// Embed it to implement part of the service.
type UnimplementedWalletServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedWalletServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, unimplemented("Register")
}
func (UnimplementedWalletServer) Login(context.Context, *LoginRequest) (*TokenResponse, error) {
	return nil, unimplemented("Login")
}
func (UnimplementedWalletServer) RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error) {
	return nil, unimplemented("RefreshToken")
}
func (UnimplementedWalletServer) CreateWallet(context.Context, *Empty) (*CreateWalletResponse, error) {
	return nil, unimplemented("CreateWallet")
}
func (UnimplementedWalletServer) ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error) {
	return nil, unimplemented("ChangePassword")
}
func (UnimplementedWalletServer) ChangePIN(context.Context, *ChangePINRequest) (*Empty, error) {
	return nil, unimplemented("ChangePIN")
}
func (UnimplementedWalletServer) ExportPrivateKey(context.Context, *ExportPrivateKeyRequest) (*ExportPrivateKeyResponse, error) {
	return nil, unimplemented("ExportPrivateKey")
}
func (UnimplementedWalletServer) Balances(context.Context, *Empty) (*BalancesResponse, error) {
	return nil, unimplemented("Balances")
}
func (UnimplementedWalletServer) History(context.Context, *HistoryRequest) (*HistoryResponse, error) {
	return nil, unimplemented("History")
}
func (UnimplementedWalletServer) ChangeTrust(context.Context, *ChangeTrustRequest) (*OperationResponse, error) {
	return nil, unimplemented("ChangeTrust")
}
func (UnimplementedWalletServer) RemoveTrust(context.Context, *RemoveTrustRequest) (*OperationResponse, error) {
	return nil, unimplemented("RemoveTrust")
}
func (UnimplementedWalletServer) Pay(context.Context, *PayRequest) (*OperationResponse, error) {
	return nil, unimplemented("Pay")
}
func (UnimplementedWalletServer) StrictSend(context.Context, *ConversionRequest) (*OperationResponse, error) {
	return nil, unimplemented("StrictSend")
}
func (UnimplementedWalletServer) StrictReceive(context.Context, *ConversionRequest) (*OperationResponse, error) {
	return nil, unimplemented("StrictReceive")
}
func (UnimplementedWalletServer) Swap(context.Context, *ConversionRequest) (*OperationResponse, error) {
	return nil, unimplemented("Swap")
}
func (UnimplementedWalletServer) AnchorInfo(context.Context, *Empty) (*AnchorDocument, error) {
	return nil, unimplemented("AnchorInfo")
}
func (UnimplementedWalletServer) AnchorInteractive(context.Context, *AnchorInteractiveRequest) (*AnchorInteractiveResponse, error) {
	return nil, unimplemented("AnchorInteractive")
}
func (UnimplementedWalletServer) AnchorTransactions(context.Context, *AnchorTransactionsRequest) (*AnchorDocument, error) {
	return nil, unimplemented("AnchorTransactions")
}
func (UnimplementedWalletServer) AvatarUploadURL(context.Context, *Empty) (*AvatarUploadURLResponse, error) {
	return nil, unimplemented("AvatarUploadURL")
}
func (UnimplementedWalletServer) AvatarURL(context.Context, *Empty) (*AvatarURLResponse, error) {
	return nil, unimplemented("AvatarURL")
}

// unary adapts a typed WalletServer method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(WalletServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WalletServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(WalletServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes stellarkeeper.v1.Wallet for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WalletServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", WalletServer.Register),
		unary("Login", WalletServer.Login),
		unary("RefreshToken", WalletServer.RefreshToken),
		unary("CreateWallet", WalletServer.CreateWallet),
		unary("ChangePassword", WalletServer.ChangePassword),
		unary("ChangePIN", WalletServer.ChangePIN),
		unary("ExportPrivateKey", WalletServer.ExportPrivateKey),
		unary("Balances", WalletServer.Balances),
		unary("History", WalletServer.History),
		unary("ChangeTrust", WalletServer.ChangeTrust),
		unary("RemoveTrust", WalletServer.RemoveTrust),
		unary("Pay", WalletServer.Pay),
		unary("StrictSend", WalletServer.StrictSend),
		unary("StrictReceive", WalletServer.StrictReceive),
		unary("Swap", WalletServer.Swap),
		unary("AnchorInfo", WalletServer.AnchorInfo),
		unary("AnchorInteractive", WalletServer.AnchorInteractive),
		unary("AnchorTransactions", WalletServer.AnchorTransactions),
		unary("AvatarUploadURL", WalletServer.AvatarUploadURL),
		unary("AvatarURL", WalletServer.AvatarURL),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stellarkeeper/v1/wallet",
}

func RegisterWalletServer(s grpc.ServiceRegistrar, srv WalletServer) {
	s.RegisterService(&ServiceDesc, srv)
}
