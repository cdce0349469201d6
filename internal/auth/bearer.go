package auth

import (
	"context"
	"fmt"

	"github.com/sakif/leaseshield/internal/apperror"
)

// BearerSource hands out API credentials for the session found in a context.
// It is the only way outbound calls obtain a token, and it mints a new one
// every time.
type BearerSource struct {
	tokens *TokenService
}

func NewBearerSource(tokens *TokenService) *BearerSource {
	return &BearerSource{tokens: tokens}
}

// Token returns a fresh bearer for the current session.
func (b *BearerSource) Token(ctx context.Context) (string, error) {
	session := SessionFromContext(ctx)
	if !session.Present {
		return "", apperror.Unauthorized("sign in required")
	}
	token, err := b.tokens.Bearer(session.UserID, session.Email)
	if err != nil {
		return "", fmt.Errorf("auth: minting API bearer: %w", err)
	}
	return token, nil
}
