// Package custody holds wallet signing keys encrypted at rest and hands out
// short-lived signers for the duration of one signing call.
package custody

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/cryptox"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
)

// Passphrase carries the three secrets the account already authenticates
// with. Their concatenation is the cipher passphrase; it is never stored.
type Passphrase struct {
	Email        string
	PasswordHash string
	PIN          string
}

func (p Passphrase) bytes() []byte {
	b := make([]byte, 0, len(p.Email)+len(p.PasswordHash)+len(p.PIN))
	b = append(b, p.Email...)
	b = append(b, p.PasswordHash...)
	b = append(b, p.PIN...)
	return b
}

// Signer is a decrypted keypair. Close must be called as soon as signing is
// done; the seed bytes are wiped and the signer becomes unusable.
type Signer struct {
	kp   *keypair.Full
	seed []byte
}

// Keypair returns the decrypted keypair or nil after Close.
func (s *Signer) Keypair() *keypair.Full { return s.kp }

// Address returns the public key of the signer.
func (s *Signer) Address() string {
	if s.kp == nil {
		return ""
	}
	return s.kp.Address()
}

// Close wipes the seed held by the signer. Safe to call more than once.
func (s *Signer) Close() {
	common.WipeByteArray(s.seed)
	s.seed = nil
	s.kp = nil
}

// Vault seals and opens wallet seeds. It keeps no state besides its logger;
// decrypt calls are counted by the metrics hook when one is set.
type Vault struct {
	logger logging.Logger
	onOpen func(ok bool)
}

// NewVault returns a Vault. onOpen, if non-nil, observes each Open result.
func NewVault(l logging.Logger, onOpen func(ok bool)) *Vault {
	return &Vault{logger: l.With("module", "custody"), onOpen: onOpen}
}

// Generate creates a fresh random keypair and seals its seed. The plaintext
// seed never leaves this function.
func (v *Vault) Generate(ctx context.Context, p Passphrase) (publicKey, ciphertext string, err error) {
	kp, err := keypair.Random()
	if err != nil {
		return "", "", fmt.Errorf("keypair: %w", err)
	}
	seed := []byte(kp.Seed())
	defer common.WipeByteArray(seed)

	ciphertext, err = v.Seal(ctx, seed, p)
	if err != nil {
		return "", "", err
	}
	return kp.Address(), ciphertext, nil
}

// Seal encrypts a Stellar secret seed under p.
func (v *Vault) Seal(ctx context.Context, seed []byte, p Passphrase) (string, error) {
	if !strkey.IsValidEd25519SecretSeed(string(seed)) {
		return "", fmt.Errorf("%w: not a secret seed", common.ErrorInternal)
	}
	pass := p.bytes()
	defer common.WipeByteArray(pass)

	return cryptox.Encrypt(seed, pass)
}

// Open decrypts ciphertext under p and returns a Signer. A wrong passphrase,
// a corrupted value or a plaintext that is not a seed all yield
// common.ErrDecryptionFailed.
func (v *Vault) Open(ctx context.Context, ciphertext string, p Passphrase) (*Signer, error) {
	s, err := v.open(ciphertext, p)
	if v.onOpen != nil {
		v.onOpen(err == nil)
	}
	if err != nil {
		v.logger.Warn(ctx, "key decryption failed")
		return nil, err
	}
	return s, nil
}

func (v *Vault) open(ciphertext string, p Passphrase) (*Signer, error) {
	pass := p.bytes()
	defer common.WipeByteArray(pass)

	seed, err := cryptox.Decrypt(ciphertext, pass)
	if err != nil {
		return nil, err
	}
	if !strkey.IsValidEd25519SecretSeed(string(seed)) {
		common.WipeByteArray(seed)
		return nil, fmt.Errorf("%w: plaintext is not a secret seed", common.ErrDecryptionFailed)
	}
	kp, err := keypair.ParseFull(string(seed))
	if err != nil {
		common.WipeByteArray(seed)
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return &Signer{kp: kp, seed: seed}, nil
}

// Reseal decrypts ciphertext under old and encrypts the same seed under
// next. It must run whenever any passphrase component changes, otherwise the
// stored key can no longer be opened.
func (v *Vault) Reseal(ctx context.Context, ciphertext string, old, next Passphrase) (string, error) {
	s, err := v.Open(ctx, ciphertext, old)
	if err != nil {
		return "", err
	}
	defer s.Close()

	out, err := v.Seal(ctx, s.seed, next)
	if err != nil {
		return "", err
	}
	v.logger.Info(ctx, "key re-sealed", "public_key", s.Address())
	return out, nil
}
