package walletapi

import (
	"encoding/json"
	"time"
)

type Empty struct{}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

type RegisterResponse struct {
	AccountID string `json:"account_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type CreateWalletResponse struct {
	PublicKey string `json:"public_key"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type ChangePINRequest struct {
	OldPIN string `json:"old_pin"`
	NewPIN string `json:"new_pin"`
}

type ExportPrivateKeyRequest struct {
	PIN string `json:"pin"`
}

type ExportPrivateKeyResponse struct {
	SecretSeed string `json:"secret_seed"`
}

type Balance struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	Balance     string `json:"balance"`
	Limit       string `json:"limit,omitempty"`
}

type BalancesResponse struct {
	PublicKey string    `json:"public_key"`
	Base      []Balance `json:"base"`
	Yield     []Balance `json:"yield"`
}

type HistoryRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type Transaction struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Hash        string    `json:"hash"`
	SourceAsset string    `json:"source_asset"`
	DestAsset   string    `json:"dest_asset"`
	Amount      string    `json:"amount"`
	DestAmount  string    `json:"dest_amount"`
	Destination string    `json:"destination,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type ChangeTrustRequest struct {
	AssetCode string `json:"asset_code"`
	// Limit defaults to the ledger maximum.
	Limit string `json:"limit,omitempty"`
}

type RemoveTrustRequest struct {
	AssetCode string `json:"asset_code"`
}

type BankDetails struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
}

type PayRequest struct {
	Destination string       `json:"destination"`
	AssetCode   string       `json:"asset_code"`
	Amount      string       `json:"amount"`
	Memo        string       `json:"memo,omitempty"`
	Bank        *BankDetails `json:"bank,omitempty"`
}

// ConversionRequest is shared by StrictSend, StrictReceive and Swap. Swap
// ignores Destination.
type ConversionRequest struct {
	Destination string  `json:"destination,omitempty"`
	SourceAsset string  `json:"source_asset"`
	DestAsset   string  `json:"dest_asset"`
	Amount      string  `json:"amount"`
	DestAmount  string  `json:"dest_amount,omitempty"`
	Slippage    float64 `json:"slippage"`
}

type OperationResponse struct {
	Hash   string `json:"hash"`
	Ledger int64  `json:"ledger,omitempty"`
	Bound  string `json:"bound,omitempty"`
}

type AnchorInteractiveRequest struct {
	// Type is "deposit" or "withdraw".
	Type      string `json:"type"`
	AssetCode string `json:"asset_code"`
}

type AnchorInteractiveResponse struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	ID   string `json:"id"`
}

type AnchorTransactionsRequest struct {
	AssetCode string `json:"asset_code"`
}

// AnchorDocument carries an anchor JSON response unchanged.
type AnchorDocument struct {
	Document json.RawMessage `json:"document"`
}

type AvatarUploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type AvatarURLResponse struct {
	URL string `json:"url"`
}
