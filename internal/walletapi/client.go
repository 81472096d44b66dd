package walletapi

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Dial opens a plaintext connection that uses the JSON codec by default.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	return grpc.NewClient(target, opts...)
}

// Client calls stellarkeeper.v1.Wallet. It attaches the access token to
// every call and, when the server reports it expired, refreshes the token
// pair once and retries.
type Client struct {
	cc grpc.ClientConnInterface

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// SetTokens installs a token pair, e.g. one restored from disk.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = access, refresh
}

// Tokens returns the current token pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	full := FullMethod(method)

	access, refresh := c.Tokens()
	if PublicMethods[full] || access == "" {
		return c.cc.Invoke(ctx, full, in, out, opts...)
	}

	err := c.cc.Invoke(withAccessToken(ctx, access), full, in, out, opts...)
	if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated ||
		st.Message() != common.ErrTokenExpired.Error() || refresh == "" {
		return err
	}

	pair := new(TokenResponse)
	if err := c.cc.Invoke(ctx, FullMethod("RefreshToken"), &RefreshTokenRequest{RefreshToken: refresh}, pair, opts...); err != nil {
		return err
	}
	c.SetTokens(pair.AccessToken, pair.RefreshToken)
	return c.cc.Invoke(withAccessToken(ctx, pair.AccessToken), full, in, out, opts...)
}

func call[Resp any](ctx context.Context, c *Client, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := c.invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return call[RegisterResponse](ctx, c, "Register", in, opts...)
}

// Login authenticates and keeps the returned token pair for later calls.
func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	out, err := call[TokenResponse](ctx, c, "Login", in, opts...)
	if err != nil {
		return nil, err
	}
	c.SetTokens(out.AccessToken, out.RefreshToken)
	return out, nil
}

func (c *Client) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return call[TokenResponse](ctx, c, "RefreshToken", in, opts...)
}

func (c *Client) CreateWallet(ctx context.Context, opts ...grpc.CallOption) (*CreateWalletResponse, error) {
	return call[CreateWalletResponse](ctx, c, "CreateWallet", &Empty{}, opts...)
}

func (c *Client) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) error {
	_, err := call[Empty](ctx, c, "ChangePassword", in, opts...)
	return err
}

func (c *Client) ChangePIN(ctx context.Context, in *ChangePINRequest, opts ...grpc.CallOption) error {
	_, err := call[Empty](ctx, c, "ChangePIN", in, opts...)
	return err
}

func (c *Client) ExportPrivateKey(ctx context.Context, in *ExportPrivateKeyRequest, opts ...grpc.CallOption) (*ExportPrivateKeyResponse, error) {
	return call[ExportPrivateKeyResponse](ctx, c, "ExportPrivateKey", in, opts...)
}

func (c *Client) Balances(ctx context.Context, opts ...grpc.CallOption) (*BalancesResponse, error) {
	return call[BalancesResponse](ctx, c, "Balances", &Empty{}, opts...)
}

func (c *Client) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return call[HistoryResponse](ctx, c, "History", in, opts...)
}

func (c *Client) ChangeTrust(ctx context.Context, in *ChangeTrustRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return call[OperationResponse](ctx, c, "ChangeTrust", in, opts...)
}

func (c *Client) RemoveTrust(ctx context.Context, in *RemoveTrustRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return call[OperationResponse](ctx, c, "RemoveTrust", in, opts...)
}

func (c *Client) Pay(ctx context.Context, in *PayRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return call[OperationResponse](ctx, c, "Pay", in, opts...)
}

func (c *Client) StrictSend(ctx context.Context, in *ConversionRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return call[OperationResponse](ctx, c, "StrictSend", in, opts...)
}

func (c *Client) StrictReceive(ctx context.Context, in *ConversionRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return call[OperationResponse](ctx, c, "StrictReceive", in, opts...)
}

func (c *Client) Swap(ctx context.Context, in *ConversionRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return call[OperationResponse](ctx, c, "Swap", in, opts...)
}

func (c *Client) AnchorInfo(ctx context.Context, opts ...grpc.CallOption) (*AnchorDocument, error) {
	return call[AnchorDocument](ctx, c, "AnchorInfo", &Empty{}, opts...)
}

func (c *Client) AnchorInteractive(ctx context.Context, in *AnchorInteractiveRequest, opts ...grpc.CallOption) (*AnchorInteractiveResponse, error) {
	return call[AnchorInteractiveResponse](ctx, c, "AnchorInteractive", in, opts...)
}

func (c *Client) AnchorTransactions(ctx context.Context, in *AnchorTransactionsRequest, opts ...grpc.CallOption) (*AnchorDocument, error) {
	return call[AnchorDocument](ctx, c, "AnchorTransactions", in, opts...)
}

func (c *Client) AvatarUploadURL(ctx context.Context, opts ...grpc.CallOption) (*AvatarUploadURLResponse, error) {
	return call[AvatarUploadURLResponse](ctx, c, "AvatarUploadURL", &Empty{}, opts...)
}

func (c *Client) AvatarURL(ctx context.Context, opts ...grpc.CallOption) (*AvatarURLResponse, error) {
	return call[AvatarURLResponse](ctx, c, "AvatarURL", &Empty{}, opts...)
}
