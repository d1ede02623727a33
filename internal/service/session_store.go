package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/domain"
)

// SessionStore guarda las sesiones del lado servidor por clave de token.
// El registro en el store es la fuente de verdad: destruirlo invalida la
// cookie aunque su firma siga siendo válida.
type SessionStore interface {
	Create(key string, session domain.Session, ttl time.Duration) error
	Get(key string) (domain.Session, bool, error)
	Destroy(key string) error
}

type memorySessionStore struct {
	mu    sync.Mutex
	items map[string]memorySessionEntry
}

type memorySessionEntry struct {
	session   domain.Session
	expiresAt time.Time
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		items: make(map[string]memorySessionEntry),
	}
}

func (s *memorySessionStore) Create(key string, session domain.Session, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("session key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memorySessionEntry{
		session:   session,
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *memorySessionStore) Get(key string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[key]
	if !ok {
		return domain.Session{}, false, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.items, key)
		return domain.Session{}, false, nil
	}
	return entry.session, true, nil
}

func (s *memorySessionStore) Destroy(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

type redisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	if client == nil {
		return nil
	}
	return &redisSessionStore{
		client: client,
		prefix: "auth:session:",
	}
}

func (s *redisSessionStore) Create(key string, session domain.Session, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("session key is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, payload, ttl).Err()
}

func (s *redisSessionStore) Get(key string) (domain.Session, bool, error) {
	if strings.TrimSpace(key) == "" {
		return domain.Session{}, false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	payload, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return domain.Session{}, false, err
	}
	return session, true, nil
}

func (s *redisSessionStore) Destroy(key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, s.prefix+key).Err()
}
