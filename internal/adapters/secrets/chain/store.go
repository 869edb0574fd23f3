// Package chain layers several secret backends behind one ports.SecretStore.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/forum-agent/internal/adapters/secrets/file"
	passstore "github.com/bnema/forum-agent/internal/adapters/secrets/pass"
	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/ports"
)

var errNoBackends = errors.New("secret chain has no backends")

// Store consults its backends in order. Reads return the first hit, writes
// land in the first backend that accepts them and deletes reach every backend
// so a stale copy cannot resurface.
type Store struct {
	backends []ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(backends ...ports.SecretStore) (*Store, error) {
	kept := make([]ports.SecretStore, 0, len(backends))
	for _, b := range backends {
		if b != nil {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return nil, errNoBackends
	}
	return &Store{backends: kept}, nil
}

// NewPassFirstWithFileFallback prefers pass and falls back to plain files
// below fileRoot when pass is missing or fails.
func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for i, backend := range s.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if isCancellation(err) {
			return "", err
		}
		if !errors.Is(err, domain.ErrSecretNotFound) {
			errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
		}
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("secret %q: %w", key, domain.ErrSecretNotFound)
	}
	return "", fmt.Errorf("get secret %q: %w", key, errors.Join(errs...))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		if isCancellation(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
	}
	return fmt.Errorf("put secret %q: %w", key, errors.Join(errs...))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Delete(ctx, key)
		if err == nil {
			continue
		}
		if isCancellation(err) {
			return err
		}
		if errors.Is(err, passstore.ErrUnavailable) {
			continue
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("delete secret %q: %w", key, errors.Join(errs...))
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
