// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a registered user and, once created, their wallet.
//
// PublicKey and EncryptedPrivateKey are empty until the wallet exists. The
// private key is sealed under Email+PasswordHash+PIN, so any change to
// those fields must re-seal it in the same transaction.
type Account struct {
	ID                  string
	Email               string
	Username            string
	PasswordHash        string
	PIN                 string
	PublicKey           string
	EncryptedPrivateKey string
	AvatarKey           string
	CreatedAt           time.Time
}

// HasWallet reports whether a keypair has been created for the account.
func (a *Account) HasWallet() bool { return a.PublicKey != "" && a.EncryptedPrivateKey != "" }
