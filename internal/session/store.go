// Package session persists the operator's bearer token and profile in Redis
// so a console restart does not force a fresh login. It also owns the
// single-shot invalidation broadcast fired when the upstream rejects the
// token: concurrent rejections collapse into one logout event.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	tokenKey = "labconsole:session:token"
	userKey  = "labconsole:session:user"

	// Sessions outlive the upstream token by design; the upstream's 401 is
	// the authority on expiry, the TTL only garbage-collects dead keys.
	sessionTTL = 30 * 24 * time.Hour
)

// Store keeps the console session in Redis and fans out invalidation events.
type Store struct {
	client *goredis.Client
	logger *zap.Logger

	mu          sync.Mutex
	invalidated bool
	subscribers []chan string
}

func NewStore(client *goredis.Client, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		client: client,
		logger: logger,
	}, nil
}

// Save stores a fresh session and re-arms the invalidation broadcast.
func (s *Store) Save(ctx context.Context, token string, user json.RawMessage) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is required")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKey, token, sessionTTL)
	if len(user) > 0 {
		pipe.Set(ctx, userKey, string(user), sessionTTL)
	} else {
		pipe.Del(ctx, userKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.mu.Lock()
	s.invalidated = false
	s.mu.Unlock()

	return nil
}

// Token returns the stored bearer token, or empty when no session exists.
// It satisfies the upstream client's TokenSource.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, tokenKey).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	return token, nil
}

// User returns the cached operator profile, or nil when absent.
func (s *Store) User(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.client.Get(ctx, userKey).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session user: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Active reports whether a bearer token is currently stored.
func (s *Store) Active(ctx context.Context) (bool, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// Clear removes the session without broadcasting; used for explicit logout.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, tokenKey, userKey).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.mu.Lock()
	s.invalidated = false
	s.mu.Unlock()

	return nil
}

// Invalidate clears the session and notifies subscribers exactly once per
// session. Later calls before the next Save are absorbed silently, so a burst
// of in-flight requests all hitting a rejected token yields one broadcast.
func (s *Store) Invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	subscribers := make([]chan string, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	if err := s.client.Del(ctx, tokenKey, userKey).Err(); err != nil {
		s.logger.Warn("failed to clear rejected session", zap.Error(err))
	}

	s.logger.Info("session invalidated by upstream", zap.String("reason", reason))

	for _, ch := range subscribers {
		select {
		case ch <- reason:
		default:
		}
	}
}

// Subscribe registers a buffered channel that receives at most one reason per
// session lifetime.
func (s *Store) Subscribe() <-chan string {
	ch := make(chan string, 1)

	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	return ch
}
