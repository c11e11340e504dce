package token

import (
	"golang.org/x/oauth2"

	consoleerrors "github.com/jrsteele09/retail-console/internal/errors"
)

type storeTokenSource struct {
	store Store
}

// TokenSource exposes the access token held by store to oauth2.Transport
func TokenSource(store Store) oauth2.TokenSource {
	return storeTokenSource{store: store}
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	access, ok := s.store.GetAccessToken()
	if !ok {
		return nil, consoleerrors.ErrNoTokens
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}
