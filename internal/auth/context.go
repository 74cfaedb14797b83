package auth

import "context"

type contextKey string

const authContextKey contextKey = "persona_auth"

// AuthInfo is the identity resolved from a session token.
type AuthInfo struct {
	SessionID string
	UserID    string
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
