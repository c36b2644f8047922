package cartapi

import "context"

type contextKey string

const credentialKey contextKey = "cartapi_credential"

// WithCredential stores the bearer token to attach to cart service calls made
// with ctx. The token is passed through untouched.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

// CredentialFromContext returns the bearer token stored by WithCredential.
func CredentialFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(credentialKey).(string); ok {
		return token
	}
	return ""
}
