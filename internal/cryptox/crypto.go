// Package cryptox implements the passphrase cipher used to store wallet
// signing keys at rest.
//
// The format is the OpenSSL "Salted__" envelope produced by
// `openssl enc -aes-256-cbc -md md5` (and by CryptoJS passphrase mode): a
// random 8-byte salt is mixed with the passphrase through EVP_BytesToKey to
// obtain a 256-bit AES key and a 128-bit IV, the plaintext is PKCS#7 padded
// and encrypted in CBC mode. Stored values additionally carry a ":<hex iv>"
// suffix so that ciphertexts written by earlier deployments stay readable.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
)

const (
	saltMagic = "Salted__"
	saltSize  = 8
	keySize   = 32

	// Separator splits the OpenSSL envelope from the IV suffix.
	Separator = ":"
)

// randRead is a test seam for crypto/rand.Read.
var randRead = rand.Read

// BytesToKey derives keyLen+ivLen bytes of key material from passphrase and
// salt using OpenSSL's EVP_BytesToKey with MD5 and a single iteration:
//
//	D_1 = MD5(passphrase || salt)
//	D_i = MD5(D_{i-1} || passphrase || salt)
//
// and splits the concatenation D_1 || D_2 || ... into key and iv.
func BytesToKey(passphrase, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	need := keyLen + ivLen
	out := make([]byte, 0, need+md5.Size)
	var prev []byte
	for len(out) < need {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen:need]
}

// Encrypt seals plaintext under passphrase and returns the stored form
//
//	base64("Salted__" || salt || ciphertext) + ":" + hex(iv)
//
// A fresh salt is drawn for every call, so sealing the same plaintext twice
// never yields the same output (the salt determines both key and IV).
//
// Parameters:
//   - plaintext: the secret to protect; it is not modified.
//   - passphrase: key material; callers wipe it after use.
//
// Returns:
//   - the encoded ciphertext, or an error if the random source fails.
//
// Example:
//
//	enc, err := cryptox.Encrypt([]byte(seed), []byte(email+hash+pin))
//	if err != nil {
//	    return err
//	}
//	// store enc
func Encrypt(plaintext, passphrase []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := randRead(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key, iv := BytesToKey(passphrase, salt, keySize, aes.BlockSize)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer common.WipeByteArray(padded)

	envelope := make([]byte, len(saltMagic)+saltSize+len(padded))
	copy(envelope, saltMagic)
	copy(envelope[len(saltMagic):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(envelope[len(saltMagic)+saltSize:], padded)

	return base64.StdEncoding.EncodeToString(envelope) + Separator + hex.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. The IV suffix is parsed for well-formedness
// only; key and IV are always re-derived from the envelope salt.
//
// Any failure (malformed input, wrong passphrase, bad padding, non UTF-8
// plaintext) is reported as common.ErrDecryptionFailed. The caller owns the
// returned slice and should wipe it.
func Decrypt(encoded string, passphrase []byte) ([]byte, error) {
	body, ivHex, found := strings.Cut(encoded, Separator)
	if !found {
		return nil, fmt.Errorf("%w: missing iv separator", common.ErrDecryptionFailed)
	}
	if _, err := hex.DecodeString(ivHex); err != nil {
		return nil, fmt.Errorf("%w: malformed iv", common.ErrDecryptionFailed)
	}

	envelope, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", common.ErrDecryptionFailed)
	}
	if len(envelope) < len(saltMagic)+saltSize+aes.BlockSize || !bytes.HasPrefix(envelope, []byte(saltMagic)) {
		return nil, fmt.Errorf("%w: not a salted envelope", common.ErrDecryptionFailed)
	}

	salt := envelope[len(saltMagic) : len(saltMagic)+saltSize]
	ct := envelope[len(saltMagic)+saltSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not block aligned", common.ErrDecryptionFailed)
	}

	key, iv := BytesToKey(passphrase, salt, keySize, aes.BlockSize)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	out, ok := pkcs7Unpad(plain, aes.BlockSize)
	if !ok || !utf8.Valid(out) {
		common.WipeByteArray(plain)
		return nil, common.ErrDecryptionFailed
	}
	return out, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
