package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var errUndecodable = errors.New("undecodable cookie value")

// Codec turns token values into cookie-safe strings and back
type Codec interface {
	Encode(value string) (string, error)
	Decode(value string) (string, error)
}

// PlainCodec stores tokens as-is
type PlainCodec struct{}

func (PlainCodec) Encode(value string) (string, error) { return value, nil }
func (PlainCodec) Decode(value string) (string, error) { return value, nil }

// SecretboxCodec seals cookie values with NaCl secretbox under a key derived from a secret
type SecretboxCodec struct {
	key [32]byte
}

func NewSecretboxCodec(secret string) *SecretboxCodec {
	return &SecretboxCodec{key: sha256.Sum256([]byte(secret))}
}

// NewCodec returns a sealing codec when secret is set, otherwise PlainCodec
func NewCodec(secret string) Codec {
	if secret == "" {
		return PlainCodec{}
	}
	return NewSecretboxCodec(secret)
}

func (c *SecretboxCodec) Encode(value string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("SecretboxCodec.Encode rand.Read: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *SecretboxCodec) Decode(value string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < 24 {
		return "", errUndecodable
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &c.key)
	if !ok {
		return "", errUndecodable
	}
	return string(opened), nil
}
