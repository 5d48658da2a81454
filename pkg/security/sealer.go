package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/angelmondragon/marketsettle-backend/pkg/config"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	// ErrInvalidKey signals a key that is not 32 bytes once decoded.
	ErrInvalidKey = errors.New("sealing key must be 32 bytes")
	// ErrUnsealFailed signals a tampered or foreign ciphertext.
	ErrUnsealFailed = errors.New("unable to open sealed value")
)

// Sealer encrypts small secrets such as bank account numbers with
// NaCl secretbox. Output is base64(nonce || box).
type Sealer struct {
	key  [keySize]byte
	rand io.Reader
}

// NewSealer decodes the base64 key from config.
func NewSealer(cfg config.SecurityConfig) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.BankAccountKey))
	if err != nil {
		return nil, fmt.Errorf("decode sealing key: %w", err)
	}
	return NewSealerFromKey(raw)
}

func NewSealerFromKey(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	s := &Sealer{rand: rand.Reader}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrUnsealFailed
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}

// NormalizeIBAN strips spaces and upper-cases the account number.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

// MaskIBAN keeps the country code and the last four characters.
func MaskIBAN(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) <= 6 {
		return strings.Repeat("*", len(iban))
	}
	return iban[:2] + strings.Repeat("*", len(iban)-6) + iban[len(iban)-4:]
}

// Last4 returns the trailing four characters of the account number.
func Last4(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) <= 4 {
		return iban
	}
	return iban[len(iban)-4:]
}
