package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"recipe-api/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrSessionNotFound means the session was revoked, expired or never existed.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore tracks live tokens by jti. Touch slides the expiry forward and
// returns the owning user id.
type SessionStore interface {
	Create(ctx context.Context, id string, userID uint, ttl time.Duration) error
	Touch(ctx context.Context, id string, ttl time.Duration) (uint, error)
	Delete(ctx context.Context, id string) error
}

type redisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (s *redisSessionStore) Create(ctx context.Context, id string, userID uint, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(id), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", id, err)
	}
	return nil
}

func (s *redisSessionStore) Touch(ctx context.Context, id string, ttl time.Duration) (uint, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, sessionKey(id))
		pipe.Expire(ctx, sessionKey(id), ttl)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to touch session %s: %w", id, err)
	}

	val, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return uint(userID), nil
}

func (s *redisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

type sqlSessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLSessionStore keeps sessions in the sessions table. It is used when
// no Redis address is configured.
func NewSQLSessionStore(db *gorm.DB) SessionStore {
	return &sqlSessionStore{db: db, now: time.Now}
}

func (s *sqlSessionStore) Create(ctx context.Context, id string, userID uint, ttl time.Duration) error {
	session := models.Session{ID: id, UserID: userID, ExpiresAt: s.now().Add(ttl)}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return fmt.Errorf("failed to store session %s: %w", id, err)
	}
	return nil
}

func (s *sqlSessionStore) Touch(ctx context.Context, id string, ttl time.Duration) (uint, error) {
	now := s.now()

	var session models.Session
	err := s.db.WithContext(ctx).Where("id = ? AND expires_at > ?", id, now).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	err = s.db.WithContext(ctx).Model(&session).Update("expires_at", now.Add(ttl)).Error
	if err != nil {
		return 0, fmt.Errorf("failed to extend session %s: %w", id, err)
	}
	return session.UserID, nil
}

func (s *sqlSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}
