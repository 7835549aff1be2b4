package services

import "context"

// AccessTokenSource supplies a currently valid provider access token.
type AccessTokenSource interface {
	ValidAccessToken(ctx context.Context) (string, error)
}

var _ AccessTokenSource = (*TokenManager)(nil)
