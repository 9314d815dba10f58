// cache: индекс refresh-токенов в Redis.
//
// Кэш только ускоряет отказ: запись с rev=1 или истёкшим exp позволяет
// отклонить токен без обращения к хранилищу. Активная запись ничего
// не разрешает, решение всегда принимает хранилище.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshEntry описывает данные, которые хранятся в Redis по хэшу refresh-токена.
type RefreshEntry struct {
	AccountID int64
	Revoked   bool
	ExpiresAt time.Time
}

// RefreshCache: минимальный контракт кэша refresh-токенов.
type RefreshCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, token string) (*RefreshEntry, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now).
	Set(ctx context.Context, token string, e *RefreshEntry, ttl time.Duration) error
	// MarkRevoked помечает существующую запись revoked=true, сохраняя остаточный TTL.
	MarkRevoked(ctx context.Context, token string) error
	// Close закрывает клиент Redis.
	Close() error
}

// markRevoked не создаёт ключ, если его нет: запись без exp и TTL не нужна.
var markRevoked = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('HSET', KEYS[1], 'rev', '1')
end
return 0
`)

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой: используется "account:rt:".
func NewRedisCache(ctx context.Context, redisURL, prefix string) (RefreshCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return newRedisCache(rdb, prefix), nil
}

func newRedisCache(rdb *redis.Client, prefix string) *redisCache {
	if prefix == "" {
		prefix = "account:rt:"
	}

	return &redisCache{rdb: rdb, prefix: prefix}
}

// key строит ключ по sha256 токена: сам токен в Redis не попадает.
func (c *redisCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Храним как Redis Hash с полями: aid, rev (0/1), exp (unix).
func (c *redisCache) Get(ctx context.Context, token string) (*RefreshEntry, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.key(token)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	aid, err := strconv.ParseInt(m["aid"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	expUnix, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	return &RefreshEntry{
		AccountID: aid,
		Revoked:   m["rev"] == "1",
		ExpiresAt: time.Unix(expUnix, 0).UTC(),
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, token string, e *RefreshEntry, ttl time.Duration) error {
	kv := map[string]string{
		"aid": strconv.FormatInt(e.AccountID, 10),
		"rev": boolTo01(e.Revoked),
		"exp": strconv.FormatInt(e.ExpiresAt.Unix(), 10),
	}

	key := c.key(token)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, kv)
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) MarkRevoked(ctx context.Context, token string) error {
	return markRevoked.Run(ctx, c.rdb, []string{c.key(token)}).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
