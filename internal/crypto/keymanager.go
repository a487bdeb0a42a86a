// Package crypto provides API key encryption at rest and EIP-712 signing of
// Hyperliquid exchange actions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	sealedVersion    = 1
)

// sealedKey is the stored form of an account's private key. encoding/json
// writes the byte fields as standard base64.
type sealedKey struct {
	Version    int    `json:"v"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// accountAAD binds a sealed key to its account row. A blob copied onto
// another account fails to open.
func accountAAD(accountID string) []byte {
	return []byte("unitbot/account/" + accountID)
}

// accountGCM derives the AES-256-GCM cipher for one sealed key.
func accountGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SealKey encrypts the private key of account accountID under password.
// The account id is authenticated with the ciphertext.
func SealKey(accountID, privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if accountID == "" {
		return nil, errors.New("crypto: account id must not be empty")
	}
	keyHex, err := NormalizeKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	keyBytes, _ := hex.DecodeString(keyHex)

	sk := sealedKey{Version: sealedVersion, Salt: make([]byte, saltLen)}
	if _, err := rand.Read(sk.Salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := accountGCM(password, sk.Salt)
	if err != nil {
		return nil, err
	}
	sk.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(sk.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	sk.Ciphertext = gcm.Seal(nil, sk.Nonce, keyBytes, accountAAD(accountID))
	return json.Marshal(sk)
}

// OpenKey decrypts a blob produced by SealKey for the same account and
// returns the hex private key without 0x prefix.
func OpenKey(accountID string, blob []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var sk sealedKey
	if err := json.Unmarshal(blob, &sk); err != nil {
		return "", fmt.Errorf("crypto: parsing sealed key: %w", err)
	}
	if sk.Version != sealedVersion {
		return "", fmt.Errorf("crypto: unsupported sealed key version %d", sk.Version)
	}

	gcm, err := accountGCM(password, sk.Salt)
	if err != nil {
		return "", err
	}
	if len(sk.Nonce) != gcm.NonceSize() {
		return "", errors.New("crypto: sealed key has a malformed nonce")
	}
	plaintext, err := gcm.Open(nil, sk.Nonce, sk.Ciphertext, accountAAD(accountID))
	if err != nil {
		return "", fmt.Errorf("crypto: cannot open key of account %s (wrong password or account): %w", accountID, err)
	}
	return hex.EncodeToString(plaintext), nil
}

// NormalizeKey strips an optional 0x prefix and checks that key is a
// 32-byte hex secp256k1 key.
func NormalizeKey(key string) (string, error) {
	k := strings.TrimPrefix(strings.TrimSpace(key), "0x")
	b, err := hex.DecodeString(k)
	if err != nil {
		return "", fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(b))
	}
	return k, nil
}
