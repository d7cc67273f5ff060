package service

import (
	"context"
	"errors"

	"smart_cash_power/internal/client/meterapi"
)

// ErrRemoteCredential is returned by remote services when ctx carries no
// user token or the remote backend rejects it.
var ErrRemoteCredential = errors.New("missing or rejected user credential for remote backend")

type credentialKey struct{}

// WithCredential attaches the caller's bearer token to ctx. Remote services
// forward it so every user acts on the remote backend as themselves.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey{}, token)
}

// CredentialFrom returns the token set by WithCredential, or "".
func CredentialFrom(ctx context.Context) string {
	v, _ := ctx.Value(credentialKey{}).(string)
	return v
}

// remoteContext turns the caller's credential into the client's
// Authorization header.
func remoteContext(ctx context.Context) (context.Context, error) {
	tok := CredentialFrom(ctx)
	if tok == "" {
		return nil, ErrRemoteCredential
	}
	return meterapi.ContextWithAuthorization(ctx, "Bearer "+tok), nil
}
