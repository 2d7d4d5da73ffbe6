// Package device issues the stable pseudonymous identifier a browser profile
// carries across events and sessions. The token is a replay/Sybil deterrent,
// not a verified identity; it only matters as a join key on attendance records.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token is the opaque per-device identifier.
type Token string

// Provider hands out the device token, creating it on first use. The token
// never expires and is never rotated.
type Provider interface {
	GetOrCreate(ctx context.Context) (Token, error)
}

// Store persists the token. Persist must be first-writer-wins: when a token
// already exists it returns the existing one, discarding the candidate.
type Store interface {
	Load(ctx context.Context) (Token, bool, error)
	Persist(ctx context.Context, tok Token) (Token, error)
}

// StoredProvider caches the token in memory on top of a Store.
type StoredProvider struct {
	store Store

	mu     sync.Mutex
	cached Token
}

// NewProvider creates a provider over the given store.
func NewProvider(store Store) *StoredProvider {
	return &StoredProvider{store: store}
}

// GetOrCreate returns the persisted token, generating and persisting a fresh
// random one on first use.
func (p *StoredProvider) GetOrCreate(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	tok, ok, err := p.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load device token: %w", err)
	}
	if !ok {
		tok, err = p.store.Persist(ctx, Token(uuid.NewString()))
		if err != nil {
			return "", fmt.Errorf("persist device token: %w", err)
		}
	}
	p.cached = tok
	return tok, nil
}

// FileStore keeps the token in a single local file, the server-side analog of
// browser local storage.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(ctx context.Context) (Token, bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	tok := Token(strings.TrimSpace(string(data)))
	if tok == "" {
		return "", false, nil
	}
	return tok, true, nil
}

func (s *FileStore) Persist(ctx context.Context, tok Token) (Token, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return "", err
	}
	// Re-check after taking the directory; another process may have won.
	if existing, ok, err := s.Load(ctx); err != nil {
		return "", err
	} else if ok {
		return existing, nil
	}
	if err := os.WriteFile(s.Path, []byte(tok), 0o600); err != nil {
		return "", err
	}
	return tok, nil
}

// RedisStore keeps the token under a fixed key, for deployments where the
// identity must survive the local filesystem.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func (s *RedisStore) key() string {
	if s.Key == "" {
		return "geolock:device_id"
	}
	return s.Key
}

func (s *RedisStore) Load(ctx context.Context) (Token, bool, error) {
	val, err := s.Client.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return Token(val), true, nil
}

func (s *RedisStore) Persist(ctx context.Context, tok Token) (Token, error) {
	set, err := s.Client.SetNX(ctx, s.key(), string(tok), 0).Result()
	if err != nil {
		return "", err
	}
	if set {
		return tok, nil
	}
	existing, _, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return existing, nil
}
