package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound = errors.New("item not found")
	ErrEmptyKey = errors.New("empty key")
)

// KeyValueStore is the durable get/set store used for provider identity tokens.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
}

// ProviderStore is a KeyValueStore that can hand out per-provider namespaces.
type ProviderStore interface {
	KeyValueStore
	ListItems(ctx context.Context, provider string) (map[string]string, error)
	DeleteItem(ctx context.Context, key string) error
}

// Creator is implemented by stores that can write a key only when it is
// still absent, in one step.
type Creator interface {
	// SetIfAbsent stores value unless key already holds one, and returns the
	// value stored under key afterwards.
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
}

const scopeSeparator = ":"

// Scoped prefixes every key with the provider id so adapters cannot collide.
type Scoped struct {
	Provider string
	kv       KeyValueStore
}

func NewScoped(kv KeyValueStore, provider string) *Scoped {
	return &Scoped{Provider: provider, kv: kv}
}

func (s *Scoped) GetItem(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	return s.kv.GetItem(ctx, s.Provider+scopeSeparator+key)
}

func (s *Scoped) SetItem(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.kv.SetItem(ctx, s.Provider+scopeSeparator+key, value)
}

// SetIfAbsent forwards to the underlying store when it is a Creator.
// Otherwise it falls back to a read followed by a write.
func (s *Scoped) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if creator, ok := s.kv.(Creator); ok {
		return creator.SetIfAbsent(ctx, s.Provider+scopeSeparator+key, value)
	}
	existing, err := s.GetItem(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if err := s.SetItem(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}

// identityFlight collapses concurrent first reads of the same token.
var identityFlight singleflight.Group

// IdentityToken returns the token stored under key, creating and persisting a
// new UUID the first time. The token identifies this install to the provider.
func IdentityToken(ctx context.Context, kv KeyValueStore, key string) (string, error) {
	flightKey := fmt.Sprintf("%p/%s", kv, key)
	if scoped, ok := kv.(*Scoped); ok {
		flightKey = fmt.Sprintf("%p/%s%s%s", scoped.kv, scoped.Provider, scopeSeparator, key)
	}
	value, err, _ := identityFlight.Do(flightKey, func() (interface{}, error) {
		return identityToken(ctx, kv, key)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func identityToken(ctx context.Context, kv KeyValueStore, key string) (string, error) {
	value, err := kv.GetItem(ctx, key)
	if err == nil && value != "" {
		return value, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("unable to read identity token %s: %w", key, err)
	}

	value = uuid.New().String()
	if creator, ok := kv.(Creator); ok {
		stored, err := creator.SetIfAbsent(ctx, key, value)
		if err != nil {
			return "", fmt.Errorf("unable to persist identity token %s: %w", key, err)
		}
		return stored, nil
	}
	if err := kv.SetItem(ctx, key, value); err != nil {
		return "", fmt.Errorf("unable to persist identity token %s: %w", key, err)
	}
	return value, nil
}
