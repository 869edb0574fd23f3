package ports

import "context"

// SecretStore persists credentials such as the forum bearer token.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// TokenFunc resolves a credential at call time so a rotated value is picked up
// on the next connect. An empty string means no credential is configured.
type TokenFunc func(ctx context.Context) (string, error)
