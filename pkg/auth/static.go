package auth

import (
	"context"

	"github.com/rmax-ai/proximl/pkg/client"
)

// Static returns a fixed id token. Useful in CI where a token is minted elsewhere.
type Static struct {
	IDToken string
}

// Tokens implements client.TokenProvider.
func (s Static) Tokens(ctx context.Context) (client.Tokens, error) {
	if s.IDToken == "" {
		return client.Tokens{}, &client.AuthError{Message: "static id token is empty"}
	}
	return client.Tokens{IDToken: s.IDToken}, nil
}
