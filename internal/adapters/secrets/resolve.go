// Package secrets turns configured credentials into ports.TokenFunc values.
package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/ports"
)

// TokenFunc resolves a credential on every call. A literal value from config
// or environment wins; otherwise the store is consulted under ref. A missing
// entry yields an empty token rather than an error.
func TokenFunc(literal string, store ports.SecretStore, ref string) ports.TokenFunc {
	literal = strings.TrimSpace(literal)
	return func(ctx context.Context) (string, error) {
		if literal != "" {
			return literal, nil
		}
		if store == nil || strings.TrimSpace(ref) == "" {
			return "", nil
		}

		value, err := store.Get(ctx, ref)
		if err != nil {
			if errors.Is(err, domain.ErrSecretNotFound) {
				return "", nil
			}
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}
