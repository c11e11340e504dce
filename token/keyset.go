package token

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
)

// KeySet checks a JWT signature and returns its payload. oidc.KeySet satisfies it.
type KeySet interface {
	VerifySignature(ctx context.Context, jwt string) ([]byte, error)
}

// NewRemoteKeySet fetches signing keys from jwksURL on demand and caches them.
// ctx bounds the lifetime of background key refreshes.
func NewRemoteKeySet(ctx context.Context, jwksURL string) KeySet {
	if jwksURL == "" {
		return nil
	}
	return oidc.NewRemoteKeySet(ctx, jwksURL)
}
